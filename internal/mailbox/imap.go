package mailbox

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/models"
)

// IMAPSource implements Source over IMAP. Every call dials, logs in with the
// identity's credentials, and logs out before returning.
type IMAPSource struct {
	cfg *config.MailboxConfig
}

// NewIMAPSource creates a new IMAP mailbox source
func NewIMAPSource(cfg *config.MailboxConfig) *IMAPSource {
	return &IMAPSource{cfg: cfg}
}

// connect dials and logs in for one identity. The returned cleanup logs out
// and is safe to defer even when a later step fails.
func (s *IMAPSource) connect(identity models.Identity) (*client.Client, func(), error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", s.cfg.IMAPHost, s.cfg.IMAPPort), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(identity.Address, identity.Secret); err != nil {
		c.Logout()
		return nil, nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	cleanup := func() {
		if err := c.Logout(); err != nil {
			logrus.Warnf("IMAP logout failed for %s: %v", identity.StudentID, err)
		}
	}
	return c, cleanup, nil
}

func (s *IMAPSource) searchUnseen(c *client.Client) ([]uint32, error) {
	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return uids, nil
}

// CountUnread probes the unread message count for one identity
func (s *IMAPSource) CountUnread(ctx context.Context, identity models.Identity) (int, error) {
	c, cleanup, err := s.connect(identity)
	if err != nil {
		return 0, err
	}
	defer cleanup()

	uids, err := s.searchUnseen(c)
	if err != nil {
		return 0, err
	}
	return len(uids), nil
}

// ListUnread fetches all unread messages for one identity, oldest first.
// Bodies are fetched with PEEK so messages stay unread until MarkRead.
func (s *IMAPSource) ListUnread(ctx context.Context, identity models.Identity) ([]models.RawMessage, error) {
	c, cleanup, err := s.connect(identity)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	uids, err := s.searchUnseen(c)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return []models.RawMessage{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var fetched []models.RawMessage
	for msg := range messages {
		raw, err := s.parseMessage(identity, msg, section)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message for %s: %v", identity.StudentID, err)
			continue
		}
		fetched = append(fetched, raw)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	// UIDs are assigned in arrival order, so this restores oldest-first
	sort.Slice(fetched, func(i, j int) bool {
		a, _ := strconv.ParseUint(fetched[i].UID, 10, 32)
		b, _ := strconv.ParseUint(fetched[j].UID, 10, 32)
		return a < b
	})
	return fetched, nil
}

// MarkRead flags the given messages as seen in a fresh scoped connection
func (s *IMAPSource) MarkRead(ctx context.Context, identity models.Identity, uids []string) error {
	if len(uids) == 0 {
		return nil
	}

	c, cleanup, err := s.connect(identity)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := c.Select("INBOX", false); err != nil {
		return fmt.Errorf("failed to select INBOX: %w", err)
	}

	seqset := new(imap.SeqSet)
	for _, uid := range uids {
		n, err := strconv.ParseUint(uid, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid message UID %q: %w", uid, err)
		}
		seqset.AddNum(uint32(n))
	}

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}
	if err := c.UidStore(seqset, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark messages seen: %w", err)
	}
	return nil
}

func (s *IMAPSource) parseMessage(identity models.Identity, msg *imap.Message, section *imap.BodySectionName) (models.RawMessage, error) {
	raw := models.RawMessage{
		StudentID: identity.StudentID,
		UID:       strconv.FormatUint(uint64(msg.Uid), 10),
		FetchedAt: time.Now(),
	}

	messageID := raw.UID
	receivedAt := time.Now()
	if msg.Envelope != nil {
		raw.Subject = msg.Envelope.Subject
		if msg.Envelope.MessageId != "" {
			messageID = msg.Envelope.MessageId
		}
		if !msg.Envelope.Date.IsZero() {
			receivedAt = msg.Envelope.Date
		}
	}
	raw.Fingerprint = models.Fingerprint(messageID, receivedAt)

	body, err := s.readBody(msg, section)
	if err != nil {
		return raw, err
	}
	raw.Body = body
	return raw, nil
}

// readBody extracts the text/plain content of a message
func (s *IMAPSource) readBody(msg *imap.Message, section *imap.BodySectionName) (string, error) {
	r := msg.GetBody(section)
	if r == nil {
		return "", fmt.Errorf("failed to get message body")
	}

	entity, err := message.Read(r)
	if err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return "", fmt.Errorf("failed to read part: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if !strings.Contains(contentType, "text/plain") {
				continue
			}
			content, err := io.ReadAll(p.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read part body: %w", err)
			}
			return string(content), nil
		}
		return "", nil
	}

	content, err := io.ReadAll(entity.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read message body: %w", err)
	}
	return string(content), nil
}

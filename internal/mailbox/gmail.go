package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/models"
)

// GmailSource implements Source over the Gmail API. The identity's secret is
// an OAuth2 refresh token issued for the configured client (see
// tools/get_token.go).
type GmailSource struct {
	cfg *config.MailboxConfig
}

// NewGmailSource creates a new Gmail API mailbox source
func NewGmailSource(cfg *config.MailboxConfig) *GmailSource {
	return &GmailSource{cfg: cfg}
}

// service builds a Gmail client scoped to one identity
func (s *GmailSource) service(ctx context.Context, identity models.Identity, scope string) (*gmail.Service, error) {
	oauth2Config := &oauth2.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		Scopes:       []string{scope},
		Endpoint:     google.Endpoint,
	}

	token := &oauth2.Token{RefreshToken: identity.Secret}
	tokenSource := oauth2Config.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return service, nil
}

// CountUnread probes the unread message count for one identity
func (s *GmailSource) CountUnread(ctx context.Context, identity models.Identity) (int, error) {
	service, err := s.service(ctx, identity, gmail.GmailReadonlyScope)
	if err != nil {
		return 0, err
	}
	return countUnread(ctx, service, identity.Address)
}

// countUnread reads the UNREAD label counter rather than listing messages,
// so the probe stays one cheap call regardless of mailbox size.
func countUnread(ctx context.Context, service *gmail.Service, address string) (int, error) {
	label, err := service.Users.Labels.Get(address, "UNREAD").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to get unread label: %w", err)
	}
	return int(label.MessagesUnread), nil
}

// ListUnread fetches all unread messages for one identity, oldest first
func (s *GmailSource) ListUnread(ctx context.Context, identity models.Identity) ([]models.RawMessage, error) {
	service, err := s.service(ctx, identity, gmail.GmailReadonlyScope)
	if err != nil {
		return nil, err
	}
	return listUnread(ctx, service, identity)
}

func listUnread(ctx context.Context, service *gmail.Service, identity models.Identity) ([]models.RawMessage, error) {
	refs, err := listUnreadRefs(ctx, service, identity.Address)
	if err != nil {
		return nil, err
	}

	var fetched []models.RawMessage
	// The list endpoint returns newest first; walk backwards for fetch order
	for i := len(refs) - 1; i >= 0; i-- {
		msg, err := service.Users.Messages.Get(identity.Address, refs[i].Id).Format("full").Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logrus.Warnf("Failed to get message %s for %s: %v", refs[i].Id, identity.StudentID, err)
			continue
		}
		fetched = append(fetched, parseGmailMessage(identity, msg))
	}
	return fetched, nil
}

// listUnreadRefs pages through the full unread listing. A mailbox with more
// unread mail than one page must not silently lose the rest.
func listUnreadRefs(ctx context.Context, service *gmail.Service, address string) ([]*gmail.Message, error) {
	var refs []*gmail.Message
	pageToken := ""
	for {
		call := service.Users.Messages.List(address).Q("is:unread").Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		response, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		refs = append(refs, response.Messages...)
		if response.NextPageToken == "" {
			return refs, nil
		}
		pageToken = response.NextPageToken
	}
}

// MarkRead removes the UNREAD label from the given messages
func (s *GmailSource) MarkRead(ctx context.Context, identity models.Identity, uids []string) error {
	if len(uids) == 0 {
		return nil
	}

	service, err := s.service(ctx, identity, gmail.GmailModifyScope)
	if err != nil {
		return err
	}

	request := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}}
	for _, uid := range uids {
		if _, err := service.Users.Messages.Modify(identity.Address, uid, request).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to mark message %s read: %w", uid, err)
		}
	}
	return nil
}

func parseGmailMessage(identity models.Identity, msg *gmail.Message) models.RawMessage {
	raw := models.RawMessage{
		StudentID: identity.StudentID,
		UID:       msg.Id,
		FetchedAt: time.Now(),
	}

	receivedAt := time.UnixMilli(msg.InternalDate)
	raw.Fingerprint = models.Fingerprint(msg.Id, receivedAt)

	if msg.Payload == nil {
		return raw
	}
	for _, header := range msg.Payload.Headers {
		if header.Name == "Subject" {
			raw.Subject = header.Value
			break
		}
	}
	raw.Body = extractPlainText(msg.Payload)
	return raw
}

// extractPlainText recursively walks message parts for text/plain content
func extractPlainText(part *gmail.MessagePart) string {
	if part.Body != nil && part.Body.Data != "" && part.MimeType == "text/plain" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err == nil {
			return string(data)
		}
		logrus.Warnf("Failed to decode body data: %v", err)
	}
	for _, sub := range part.Parts {
		if text := extractPlainText(sub); text != "" {
			return text
		}
	}
	return ""
}

package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"schedule-sync-go/internal/models"
)

func newTestGmailService(t *testing.T, handler http.HandlerFunc) (*gmail.Service, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	service, err := gmail.NewService(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication())
	require.NoError(t, err)
	return service, server
}

func gmailAPIHandler(t *testing.T) http.HandlerFunc {
	t.Helper()
	body := base64.URLEncoding.EncodeToString([]byte("please reschedule"))

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "/labels/UNREAD"):
			fmt.Fprint(w, `{"id":"UNREAD","messagesUnread":7}`)
		case strings.Contains(r.URL.Path, "/messages/"):
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			fmt.Fprintf(w, `{"id":%q,"internalDate":"1700000000000","payload":{"mimeType":"text/plain","body":{"data":%q},"headers":[{"name":"Subject","value":"Mail %s"}]}}`, id, body, id)
		default:
			// two pages of unread listing, newest first
			if r.URL.Query().Get("pageToken") == "" {
				fmt.Fprint(w, `{"messages":[{"id":"m1"},{"id":"m2"}],"nextPageToken":"page2"}`)
			} else {
				fmt.Fprint(w, `{"messages":[{"id":"m3"}]}`)
			}
		}
	}
}

func TestGmailListUnreadPagesAndOrders(t *testing.T) {
	service, _ := newTestGmailService(t, gmailAPIHandler(t))
	identity := models.Identity{StudentID: "stu-1", Address: "stu1@example.com"}

	messages, err := listUnread(context.Background(), service, identity)
	require.NoError(t, err)

	// all pages fetched, returned oldest first
	require.Len(t, messages, 3)
	assert.Equal(t, "m3", messages[0].UID)
	assert.Equal(t, "m2", messages[1].UID)
	assert.Equal(t, "m1", messages[2].UID)

	assert.Equal(t, "Mail m3", messages[0].Subject)
	assert.Equal(t, "please reschedule", messages[0].Body)
	assert.NotEmpty(t, messages[0].Fingerprint)
}

func TestGmailCountUnreadUsesLabelCounter(t *testing.T) {
	service, _ := newTestGmailService(t, gmailAPIHandler(t))

	count, err := countUnread(context.Background(), service, "stu1@example.com")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}

func TestGmailListUnreadHonorsContext(t *testing.T) {
	service, _ := newTestGmailService(t, gmailAPIHandler(t))
	identity := models.Identity{StudentID: "stu-1", Address: "stu1@example.com"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := listUnread(ctx, service, identity)
	assert.Error(t, err)
}

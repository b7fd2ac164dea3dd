// Package mailbox provides access to per-student mail accounts. Connections
// are scoped to a single call: opened, used, and released before the caller
// moves on, so a worker never holds a mailbox connection while waiting on
// the extraction service.
package mailbox

import (
	"context"

	"schedule-sync-go/internal/config"
	"schedule-sync-go/internal/models"
)

// Source lists and acknowledges unread messages for one mailbox identity
type Source interface {
	// CountUnread cheaply probes the number of unread messages, used to seed
	// the priority queue before any full fetch happens.
	CountUnread(ctx context.Context, identity models.Identity) (int, error)

	// ListUnread fetches all unread messages, oldest first, without marking
	// them read.
	ListUnread(ctx context.Context, identity models.Identity) ([]models.RawMessage, error)

	// MarkRead acknowledges the given messages so they are not listed again
	MarkRead(ctx context.Context, identity models.Identity, uids []string) error
}

// NewSource selects the mailbox transport from configuration
func NewSource(cfg *config.MailboxConfig) Source {
	if cfg.UseIMAP {
		return NewIMAPSource(cfg)
	}
	return NewGmailSource(cfg)
}

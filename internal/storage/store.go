package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"hoyn/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNotOwner = errors.New("not owner")
)

// ConversationsHandler receives the full, lastUpdated-descending conversation
// list of the subscribed user after every write that touches it.
type ConversationsHandler func(conversations []*models.Conversation)

// Store is the persistence collaborator the messaging core depends on.
type Store interface {
	// EnsureConversation creates the conversation on first call and is a no-op afterwards.
	EnsureConversation(ctx context.Context, id string, participants []string, anonymous bool) (*models.Conversation, error)
	// AppendMessageAtomic stores msg, updates lastMessage/lastUpdated and increments
	// the unread counter of every id in incrementFor, all or nothing.
	AppendMessageAtomic(ctx context.Context, conversationID string, msg *models.Message, incrementFor []string) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	GetConversationsForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
	// GetMessages returns page (1-based) of at most limit messages, newest first.
	GetMessages(ctx context.Context, conversationID string, page, limit int) ([]*models.Message, error)
	// ResetUnread zeroes the viewer's counter and marks the viewer's received messages read.
	ResetUnread(ctx context.Context, conversationID, viewerID string) error
	// DeleteMessage removes a message; only its recipient may do so. An unread
	// message gives back its counter slot and the preview falls back to the
	// newest remaining message.
	DeleteMessage(ctx context.Context, conversationID, messageID, requesterID string) error

	GetUserMessagingSettings(ctx context.Context, userID string) (models.UserMessagingSettings, error)
	UpsertProfile(ctx context.Context, profile *models.Profile) error
	ProfileBySlug(ctx context.Context, slug string) (*models.Profile, error)
	ProfileByID(ctx context.Context, id string) (*models.Profile, error)
	ProfileByUsername(ctx context.Context, username string) (*models.Profile, error)

	SubscribeConversations(userID string, handler ConversationsHandler) (cancel func())
	Close() error
}

// Snapshotter is implemented by stores that keep their state in process memory
// and rely on the file manager for durability.
type Snapshotter interface {
	Snapshot() *models.Snapshot
	Restore(snapshot *models.Snapshot) error
}

// NormalizePage clamps paging input to page >= 1 and 1 <= limit <= MaxPageSize.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// SortConversations orders conversations by lastUpdated descending, ties broken by id.
func SortConversations(convs []*models.Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		if convs[i].LastUpdated.Equal(convs[j].LastUpdated) {
			return convs[i].ID < convs[j].ID
		}
		return convs[i].LastUpdated.After(convs[j].LastUpdated)
	})
}

// ApplyDeletion updates conv after deleted was removed. newest is the last
// remaining message in append order, nil when the conversation is now empty.
func ApplyDeletion(conv *models.Conversation, deleted, newest *models.Message) {
	if !deleted.IsRead && conv.UnreadCounts[deleted.RecipientID] > 0 {
		conv.UnreadCounts[deleted.RecipientID]--
	}
	if newest == nil {
		conv.LastMessage = ""
		conv.LastUpdated = time.Time{}
		return
	}
	conv.LastMessage = newest.Text
	conv.LastUpdated = newest.Timestamp
}

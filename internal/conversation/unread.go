package conversation

import (
	"context"
	"fmt"
)

type UnreadResetter interface {
	ResetUnread(ctx context.Context, conversationID, viewerID string) error
}

type UnreadTrackerInterface interface {
	OnMessageAppended(conversationID, senderID string, participants []string) []string
	OnConversationOpened(ctx context.Context, conversationID, viewerID string) error
}

// UnreadTracker decides whose counters move. Increments themselves are applied by the
// store inside the append transaction, never read-modify-written here.
type UnreadTracker struct {
	store UnreadResetter
}

func NewUnreadTracker(store UnreadResetter) UnreadTrackerInterface {
	return &UnreadTracker{store: store}
}

// OnMessageAppended returns every participant except the sender. An anonymous sender
// has no id, so the inbox owner is returned.
func (u *UnreadTracker) OnMessageAppended(_ string, senderID string, participants []string) []string {
	out := make([]string, 0, len(participants))
	for _, p := range participants {
		if p != senderID {
			out = append(out, p)
		}
	}
	return out
}

// OnConversationOpened must only be driven by an explicit viewed action.
func (u *UnreadTracker) OnConversationOpened(ctx context.Context, conversationID, viewerID string) error {
	if err := u.store.ResetUnread(ctx, conversationID, viewerID); err != nil {
		return fmt.Errorf("open %s by %s: %w", conversationID, viewerID, err)
	}
	return nil
}

package conversation

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"hoyn/internal/models"
)

const (
	idPrefix        = "conv_"
	anonymousSuffix = "_anonymous"
)

// ResolveConversationID derives the stable conversation id. Anonymous sends share one
// inbox per recipient; identified pairs are order independent.
func ResolveConversationID(senderID, recipientID string, anonymous bool) string {
	if anonymous {
		return recipientID + anonymousSuffix
	}
	pair := []string{senderID, recipientID}
	sort.Strings(pair)
	return idPrefix + strings.Join(pair, "_")
}

// Participants lists who belongs to the conversation; the anonymous inbox only has its owner.
func Participants(senderID, recipientID string, anonymous bool) []string {
	if anonymous {
		return []string{recipientID}
	}
	pair := []string{senderID, recipientID}
	sort.Strings(pair)
	return pair
}

type Creator interface {
	EnsureConversation(ctx context.Context, id string, participants []string, anonymous bool) (*models.Conversation, error)
}

type DirectoryInterface interface {
	GetOrCreate(ctx context.Context, id string, participants []string, anonymous bool) (*models.Conversation, error)
}

type Directory struct {
	store Creator
}

func NewDirectory(store Creator) DirectoryInterface {
	return &Directory{store: store}
}

// GetOrCreate is idempotent: an existing conversation keeps its counters and history.
func (d *Directory) GetOrCreate(ctx context.Context, id string, participants []string, anonymous bool) (*models.Conversation, error) {
	if id == "" || len(participants) == 0 {
		return nil, fmt.Errorf("conversation id and participants are required")
	}
	conv, err := d.store.EnsureConversation(ctx, id, participants, anonymous)
	if err != nil {
		return nil, fmt.Errorf("get or create %s: %w", id, err)
	}
	return conv, nil
}

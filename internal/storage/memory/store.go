package memory

import (
	"context"
	"fmt"
	"sync"

	"hoyn/internal/models"
	"hoyn/internal/pubsub"
	"hoyn/internal/storage"
)

// Store keeps everything in process memory behind one RWMutex. Durability comes
// from periodic snapshots written by the persistence file manager.
type Store struct {
	mu            sync.RWMutex
	profiles      map[string]*models.Profile
	bySlug        map[string]string
	byUsername    map[string]string
	byOwner       map[string]string
	conversations map[string]*models.Conversation
	messages      map[string][]*models.Message
	hub           *pubsub.Hub[[]*models.Conversation]
}

func New(onError pubsub.ErrorHandler) *Store {
	s := &Store{}
	s.reset()
	s.hub = pubsub.NewHub(func(ctx context.Context, userID string) ([]*models.Conversation, error) {
		return s.GetConversationsForUser(ctx, userID)
	}, onError)
	return s
}

func (s *Store) reset() {
	s.profiles = make(map[string]*models.Profile)
	s.bySlug = make(map[string]string)
	s.byUsername = make(map[string]string)
	s.byOwner = make(map[string]string)
	s.conversations = make(map[string]*models.Conversation)
	s.messages = make(map[string][]*models.Message)
}

func (s *Store) EnsureConversation(_ context.Context, id string, participants []string, anonymous bool) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv, ok := s.conversations[id]; ok {
		return conv.Clone(), nil
	}
	conv := &models.Conversation{
		ID:                id,
		Participants:      append([]string(nil), participants...),
		IsAnonymousThread: anonymous,
		UnreadCounts:      make(map[string]int, len(participants)),
	}
	for _, p := range participants {
		conv.UnreadCounts[p] = 0
	}
	s.conversations[id] = conv
	return conv.Clone(), nil
}

func (s *Store) AppendMessageAtomic(_ context.Context, conversationID string, msg *models.Message, incrementFor []string) error {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}
	stored := msg.Clone()
	stored.ConversationID = conversationID
	s.messages[conversationID] = append(s.messages[conversationID], stored)
	conv.LastMessage = msg.Text
	conv.LastUpdated = msg.Timestamp
	for _, p := range incrementFor {
		conv.UnreadCounts[p]++
	}
	participants := append([]string(nil), conv.Participants...)
	s.mu.Unlock()

	s.hub.Notify(participants...)
	return nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	return conv.Clone(), nil
}

func (s *Store) GetConversationsForUser(_ context.Context, userID string) ([]*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Conversation, 0)
	for _, conv := range s.conversations {
		if conv.HasParticipant(userID) {
			out = append(out, conv.Clone())
		}
	}
	storage.SortConversations(out)
	return out, nil
}

func (s *Store) GetMessages(_ context.Context, conversationID string, page, limit int) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}
	page, limit = storage.NormalizePage(page, limit)
	all := s.messages[conversationID]
	skip := (page - 1) * limit

	out := make([]*models.Message, 0, limit)
	for i := len(all) - 1 - skip; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i].Clone())
	}
	return out, nil
}

func (s *Store) ResetUnread(_ context.Context, conversationID, viewerID string) error {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("conversation %s: %w", conversationID, storage.ErrNotFound)
	}
	conv.UnreadCounts[viewerID] = 0
	for _, m := range s.messages[conversationID] {
		if m.RecipientID == viewerID {
			m.IsRead = true
		}
	}
	participants := append([]string(nil), conv.Participants...)
	s.mu.Unlock()

	s.hub.Notify(participants...)
	return nil
}

func (s *Store) DeleteMessage(_ context.Context, conversationID, messageID, requesterID string) error {
	s.mu.Lock()
	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("message %s: %w", messageID, storage.ErrNotFound)
	}

	msgs := s.messages[conversationID]
	idx := -1
	for i, m := range msgs {
		if m.ID == messageID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return fmt.Errorf("message %s: %w", messageID, storage.ErrNotFound)
	}
	deleted := msgs[idx]
	if deleted.RecipientID != requesterID {
		s.mu.Unlock()
		return storage.ErrNotOwner
	}

	remaining := append(msgs[:idx:idx], msgs[idx+1:]...)
	s.messages[conversationID] = remaining
	var newest *models.Message
	if len(remaining) > 0 {
		newest = remaining[len(remaining)-1]
	}
	storage.ApplyDeletion(conv, deleted, newest)
	participants := append([]string(nil), conv.Participants...)
	s.mu.Unlock()

	s.hub.Notify(participants...)
	return nil
}

func (s *Store) GetUserMessagingSettings(_ context.Context, userID string) (models.UserMessagingSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[userID]
	if !ok {
		return models.UserMessagingSettings{}, fmt.Errorf("settings for %s: %w", userID, storage.ErrNotFound)
	}
	return s.profiles[id].Settings, nil
}

func (s *Store) UpsertProfile(_ context.Context, profile *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putProfile(profile)
	return nil
}

func (s *Store) putProfile(profile *models.Profile) {
	if old, ok := s.profiles[profile.ID]; ok {
		delete(s.bySlug, old.Slug)
		delete(s.byUsername, old.Username)
		delete(s.byOwner, old.OwnerUID)
	}
	cp := *profile
	s.profiles[cp.ID] = &cp
	if cp.Slug != "" {
		s.bySlug[cp.Slug] = cp.ID
	}
	if cp.Username != "" {
		s.byUsername[cp.Username] = cp.ID
	}
	if cp.OwnerUID != "" {
		s.byOwner[cp.OwnerUID] = cp.ID
	}
}

func (s *Store) ProfileBySlug(ctx context.Context, slug string) (*models.Profile, error) {
	return s.profileByIndex(s.bySlug, slug)
}

func (s *Store) ProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	return s.profileByIndex(s.byUsername, username)
}

func (s *Store) ProfileByID(_ context.Context, id string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (s *Store) profileByIndex(index map[string]string, key string) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := index[key]
	if !ok {
		return nil, fmt.Errorf("profile %s: %w", key, storage.ErrNotFound)
	}
	cp := *s.profiles[id]
	return &cp, nil
}

func (s *Store) SubscribeConversations(userID string, handler storage.ConversationsHandler) func() {
	return s.hub.Subscribe(userID, pubsub.Handler[[]*models.Conversation](handler))
}

func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

// Snapshot copies the full store state.
func (s *Store) Snapshot() *models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &models.Snapshot{
		Version:       models.SnapshotVersion,
		Profiles:      make([]*models.Profile, 0, len(s.profiles)),
		Conversations: make([]*models.Conversation, 0, len(s.conversations)),
	}
	for _, p := range s.profiles {
		cp := *p
		snap.Profiles = append(snap.Profiles, &cp)
	}
	for id, conv := range s.conversations {
		snap.Conversations = append(snap.Conversations, conv.Clone())
		for _, m := range s.messages[id] {
			snap.Messages = append(snap.Messages, m.Clone())
		}
	}
	return snap
}

// Restore replaces the store state. Messages keep the order they have in the snapshot.
func (s *Store) Restore(snap *models.Snapshot) error {
	if snap == nil {
		return nil
	}
	if snap.Version > models.SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	s.mu.Lock()
	s.reset()
	for _, p := range snap.Profiles {
		s.putProfile(p)
	}
	users := make(map[string]struct{})
	for _, conv := range snap.Conversations {
		cp := conv.Clone()
		if cp.UnreadCounts == nil {
			cp.UnreadCounts = make(map[string]int)
		}
		s.conversations[cp.ID] = cp
		for _, p := range cp.Participants {
			users[p] = struct{}{}
		}
	}
	for _, m := range snap.Messages {
		if _, ok := s.conversations[m.ConversationID]; !ok {
			continue
		}
		s.messages[m.ConversationID] = append(s.messages[m.ConversationID], m.Clone())
	}
	s.mu.Unlock()

	for u := range users {
		s.hub.Notify(u)
	}
	return nil
}

var (
	_ storage.Store       = (*Store)(nil)
	_ storage.Snapshotter = (*Store)(nil)
)

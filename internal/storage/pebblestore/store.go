package pebblestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/cockroachdb/pebble"
	json "github.com/goccy/go-json"

	"hoyn/internal/models"
	"hoyn/internal/pubsub"
	"hoyn/internal/storage"
)

// Key layout:
//
//	p/{profileID}            profile document
//	ps/{slug}                profile id
//	pu/{username}            profile id
//	po/{ownerUID}            profile id
//	c/{convID}               conversation document
//	cs/{convID}              last message sequence
//	uc/{userID}/{convID}     membership index
//	m/{convID}/{seq}         message document, seq zero padded
//	mi/{convID}/{messageID}  message key
type Store struct {
	db  *pebble.DB
	hub *pubsub.Hub[[]*models.Conversation]

	locksMu    sync.Mutex
	convLocks  map[string]*sync.Mutex
	profilesMu sync.Mutex
}

func Open(dir string, onError pubsub.ErrorHandler) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", dir, err)
	}
	s := &Store{
		db:        db,
		convLocks: make(map[string]*sync.Mutex),
	}
	s.hub = pubsub.NewHub(func(ctx context.Context, userID string) ([]*models.Conversation, error) {
		return s.GetConversationsForUser(ctx, userID)
	}, onError)
	return s, nil
}

func (s *Store) convLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	if l, ok := s.convLocks[id]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.convLocks[id] = l
	return l
}

func profileKey(id string) []byte          { return []byte("p/" + id) }
func slugKey(slug string) []byte           { return []byte("ps/" + slug) }
func usernameKey(username string) []byte   { return []byte("pu/" + username) }
func ownerKey(uid string) []byte           { return []byte("po/" + uid) }
func convKey(id string) []byte             { return []byte("c/" + id) }
func convSeqKey(id string) []byte          { return []byte("cs/" + id) }
func userConvPrefix(uid string) []byte     { return []byte("uc/" + uid + "/") }
func msgPrefix(convID string) []byte       { return []byte("m/" + convID + "/") }
func msgIndexKey(convID, id string) []byte { return []byte("mi/" + convID + "/" + id) }

func msgKey(convID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("m/%s/%020d", convID, seq))
}

func userConvKey(uid, convID string) []byte {
	return append(userConvPrefix(uid), convID...)
}

// upperBound returns the smallest key greater than every key with the given prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *Store) get(key []byte) ([]byte, error) {
	val, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (s *Store) getJSON(key []byte, out any) error {
	val, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(val, out)
}

func setJSON(b *pebble.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Set(key, data, nil)
}

func (s *Store) loadConversation(id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.getJSON(convKey(id), &conv); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
		}
		return nil, err
	}
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = make(map[string]int)
	}
	return &conv, nil
}

func (s *Store) EnsureConversation(_ context.Context, id string, participants []string, anonymous bool) (*models.Conversation, error) {
	l := s.convLock(id)
	l.Lock()
	defer l.Unlock()

	conv, err := s.loadConversation(id)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	conv = &models.Conversation{
		ID:                id,
		Participants:      append([]string(nil), participants...),
		IsAnonymousThread: anonymous,
		UnreadCounts:      make(map[string]int, len(participants)),
	}
	for _, p := range participants {
		conv.UnreadCounts[p] = 0
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, convKey(id), conv); err != nil {
		return nil, err
	}
	for _, p := range participants {
		if err := b.Set(userConvKey(p, id), nil, nil); err != nil {
			return nil, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("create conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *Store) AppendMessageAtomic(_ context.Context, conversationID string, msg *models.Message, incrementFor []string) error {
	l := s.convLock(conversationID)
	l.Lock()
	conv, err := s.appendLocked(conversationID, msg, incrementFor)
	l.Unlock()
	if err != nil {
		return err
	}
	s.hub.Notify(conv.Participants...)
	return nil
}

func (s *Store) appendLocked(conversationID string, msg *models.Message, incrementFor []string) (*models.Conversation, error) {
	conv, err := s.loadConversation(conversationID)
	if err != nil {
		return nil, err
	}
	seq, err := s.lastSeq(conversationID)
	if err != nil {
		return nil, err
	}
	seq++

	stored := msg.Clone()
	stored.ConversationID = conversationID
	conv.LastMessage = msg.Text
	conv.LastUpdated = msg.Timestamp
	for _, p := range incrementFor {
		conv.UnreadCounts[p]++
	}

	key := msgKey(conversationID, seq)
	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, key, stored); err != nil {
		return nil, err
	}
	if err := b.Set(msgIndexKey(conversationID, stored.ID), key, nil); err != nil {
		return nil, err
	}
	if err := b.Set(convSeqKey(conversationID), []byte(strconv.FormatUint(seq, 10)), nil); err != nil {
		return nil, err
	}
	if err := setJSON(b, convKey(conversationID), conv); err != nil {
		return nil, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("append to %s: %w", conversationID, err)
	}
	return conv, nil
}

func (s *Store) lastSeq(conversationID string) (uint64, error) {
	val, err := s.get(convSeqKey(conversationID))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(string(val), 10, 64)
}

func (s *Store) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	return s.loadConversation(id)
}

func (s *Store) GetConversationsForUser(_ context.Context, userID string) ([]*models.Conversation, error) {
	prefix := userConvPrefix(userID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]*models.Conversation, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		convID := string(bytes.TrimPrefix(iter.Key(), prefix))
		conv, err := s.loadConversation(convID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	storage.SortConversations(out)
	return out, nil
}

func (s *Store) GetMessages(_ context.Context, conversationID string, page, limit int) ([]*models.Message, error) {
	if _, err := s.loadConversation(conversationID); err != nil {
		return nil, err
	}
	page, limit = storage.NormalizePage(page, limit)
	skip := (page - 1) * limit

	prefix := msgPrefix(conversationID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]*models.Message, 0, limit)
	for iter.Last(); iter.Valid() && len(out) < limit; iter.Prev() {
		if skip > 0 {
			skip--
			continue
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", iter.Key(), err)
		}
		out = append(out, &m)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ResetUnread(_ context.Context, conversationID, viewerID string) error {
	l := s.convLock(conversationID)
	l.Lock()
	conv, err := s.resetLocked(conversationID, viewerID)
	l.Unlock()
	if err != nil {
		return err
	}
	s.hub.Notify(conv.Participants...)
	return nil
}

func (s *Store) resetLocked(conversationID, viewerID string) (*models.Conversation, error) {
	conv, err := s.loadConversation(conversationID)
	if err != nil {
		return nil, err
	}
	conv.UnreadCounts[viewerID] = 0

	b := s.db.NewBatch()
	defer b.Close()
	if err := setJSON(b, convKey(conversationID), conv); err != nil {
		return nil, err
	}

	prefix := msgPrefix(conversationID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	for iter.First(); iter.Valid(); iter.Next() {
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			iter.Close()
			return nil, err
		}
		if m.RecipientID != viewerID || m.IsRead {
			continue
		}
		m.IsRead = true
		if err := setJSON(b, append([]byte(nil), iter.Key()...), &m); err != nil {
			iter.Close()
			return nil, err
		}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	if err := b.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("reset unread in %s: %w", conversationID, err)
	}
	return conv, nil
}

func (s *Store) DeleteMessage(_ context.Context, conversationID, messageID, requesterID string) error {
	l := s.convLock(conversationID)
	l.Lock()
	conv, err := s.deleteLocked(conversationID, messageID, requesterID)
	l.Unlock()
	if err != nil {
		return err
	}
	s.hub.Notify(conv.Participants...)
	return nil
}

func (s *Store) deleteLocked(conversationID, messageID, requesterID string) (*models.Conversation, error) {
	key, err := s.get(msgIndexKey(conversationID, messageID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("message %s: %w", messageID, storage.ErrNotFound)
		}
		return nil, err
	}
	var m models.Message
	if err := s.getJSON(key, &m); err != nil {
		return nil, err
	}
	if m.RecipientID != requesterID {
		return nil, storage.ErrNotOwner
	}
	conv, err := s.loadConversation(conversationID)
	if err != nil {
		return nil, err
	}
	newest, err := s.lastMessageExcept(conversationID, key)
	if err != nil {
		return nil, err
	}
	storage.ApplyDeletion(conv, &m, newest)

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return nil, err
	}
	if err := b.Delete(msgIndexKey(conversationID, messageID), nil); err != nil {
		return nil, err
	}
	if err := setJSON(b, convKey(conversationID), conv); err != nil {
		return nil, err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("delete from %s: %w", conversationID, err)
	}
	return conv, nil
}

// lastMessageExcept returns the newest message of the conversation other than
// the one stored at skip, or nil when there is none.
func (s *Store) lastMessageExcept(conversationID string, skip []byte) (*models.Message, error) {
	prefix := msgPrefix(conversationID)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.Last(); iter.Valid(); iter.Prev() {
		if bytes.Equal(iter.Key(), skip) {
			continue
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", iter.Key(), err)
		}
		return &m, nil
	}
	return nil, iter.Error()
}

func (s *Store) GetUserMessagingSettings(ctx context.Context, userID string) (models.UserMessagingSettings, error) {
	p, err := s.profileByIndex(ownerKey(userID), userID)
	if err != nil {
		return models.UserMessagingSettings{}, err
	}
	return p.Settings, nil
}

func (s *Store) UpsertProfile(_ context.Context, profile *models.Profile) error {
	s.profilesMu.Lock()
	defer s.profilesMu.Unlock()

	b := s.db.NewBatch()
	defer b.Close()

	var old models.Profile
	err := s.getJSON(profileKey(profile.ID), &old)
	switch {
	case err == nil:
		for _, k := range [][]byte{slugKey(old.Slug), usernameKey(old.Username), ownerKey(old.OwnerUID)} {
			if err := b.Delete(k, nil); err != nil {
				return err
			}
		}
	case !errors.Is(err, storage.ErrNotFound):
		return err
	}

	if err := setJSON(b, profileKey(profile.ID), profile); err != nil {
		return err
	}
	id := []byte(profile.ID)
	if profile.Slug != "" {
		if err := b.Set(slugKey(profile.Slug), id, nil); err != nil {
			return err
		}
	}
	if profile.Username != "" {
		if err := b.Set(usernameKey(profile.Username), id, nil); err != nil {
			return err
		}
	}
	if profile.OwnerUID != "" {
		if err := b.Set(ownerKey(profile.OwnerUID), id, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (s *Store) ProfileByID(_ context.Context, id string) (*models.Profile, error) {
	var p models.Profile
	if err := s.getJSON(profileKey(id), &p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) ProfileBySlug(_ context.Context, slug string) (*models.Profile, error) {
	return s.profileByIndex(slugKey(slug), slug)
}

func (s *Store) ProfileByUsername(_ context.Context, username string) (*models.Profile, error) {
	return s.profileByIndex(usernameKey(username), username)
}

func (s *Store) profileByIndex(key []byte, label string) (*models.Profile, error) {
	id, err := s.get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("profile %s: %w", label, storage.ErrNotFound)
		}
		return nil, err
	}
	return s.ProfileByID(context.Background(), string(id))
}

func (s *Store) SubscribeConversations(userID string, handler storage.ConversationsHandler) func() {
	return s.hub.Subscribe(userID, pubsub.Handler[[]*models.Conversation](handler))
}

func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}

var _ storage.Store = (*Store)(nil)

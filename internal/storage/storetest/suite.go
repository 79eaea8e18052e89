// Package storetest holds the behaviour every storage.Store backend must share.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoyn/internal/models"
	"hoyn/internal/storage"
)

type Factory func(t *testing.T) storage.Store

const (
	alice = "alice"
	bob   = "bob"
	carol = "carol"
)

func Run(t *testing.T, newStore Factory) {
	t.Run("EnsureConversationIdempotent", func(t *testing.T) { testEnsureIdempotent(t, newStore(t)) })
	t.Run("AppendIncrementsRecipientOnly", func(t *testing.T) { testAppendIncrements(t, newStore(t)) })
	t.Run("AppendUnknownConversation", func(t *testing.T) { testAppendUnknown(t, newStore(t)) })
	t.Run("ConcurrentAppendsNoLostUpdate", func(t *testing.T) { testConcurrentAppends(t, newStore(t)) })
	t.Run("ConversationsSortedByLastUpdated", func(t *testing.T) { testConversationsSorted(t, newStore(t)) })
	t.Run("MessagesNewestFirstPaged", func(t *testing.T) { testMessagesPaged(t, newStore(t)) })
	t.Run("ResetUnreadOnlyViewer", func(t *testing.T) { testResetUnread(t, newStore(t)) })
	t.Run("DeleteMessageRecipientOnly", func(t *testing.T) { testDeleteMessage(t, newStore(t)) })
	t.Run("DeleteMessageUpdatesConversation", func(t *testing.T) { testDeleteUpdatesConversation(t, newStore(t)) })
	t.Run("ProfilesAndSettings", func(t *testing.T) { testProfiles(t, newStore(t)) })
	t.Run("SubscribeConversations", func(t *testing.T) { testSubscribe(t, newStore(t)) })
}

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func message(id, convID, sender, recipient, text string, at time.Time) *models.Message {
	m := &models.Message{
		ID:             id,
		ConversationID: convID,
		SenderName:     sender,
		RecipientID:    recipient,
		Text:           text,
		Timestamp:      at,
	}
	if sender == "" {
		m.IsAnonymous = true
		m.SenderName = "Anonymous"
	} else {
		s := sender
		m.SenderID = &s
	}
	return m
}

func testEnsureIdempotent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	conv, err := s.EnsureConversation(ctx, "conv_alice_bob", []string{alice, bob}, false)
	require.NoError(t, err)
	assert.Equal(t, "conv_alice_bob", conv.ID)
	assert.ElementsMatch(t, []string{alice, bob}, conv.Participants)
	assert.Equal(t, 0, conv.UnreadCounts[alice])
	assert.Equal(t, 0, conv.UnreadCounts[bob])
	assert.False(t, conv.IsAnonymousThread)

	require.NoError(t, s.AppendMessageAtomic(ctx, conv.ID, message("m1", conv.ID, alice, bob, "hi", base), []string{bob}))

	again, err := s.EnsureConversation(ctx, "conv_alice_bob", []string{alice, bob}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, again.UnreadCounts[bob])
	assert.Equal(t, "hi", again.LastMessage)

	msgs, err := s.GetMessages(ctx, conv.ID, 1, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func testAppendIncrements(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, "conv_alice_bob", []string{alice, bob}, false)
	require.NoError(t, err)

	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob", message("m1", "conv_alice_bob", alice, bob, "hi", base), []string{bob}))

	conv, err := s.GetConversation(ctx, "conv_alice_bob")
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCounts[bob])
	assert.Equal(t, 0, conv.UnreadCounts[alice])
	assert.Equal(t, "hi", conv.LastMessage)
	assert.True(t, conv.LastUpdated.Equal(base))

	anonID := "bob_anonymous"
	anon, err := s.EnsureConversation(ctx, anonID, []string{bob}, true)
	require.NoError(t, err)
	assert.True(t, anon.IsAnonymousThread)
	require.NoError(t, s.AppendMessageAtomic(ctx, anonID, message("m2", anonID, "", bob, "psst", base), []string{bob}))

	anon, err = s.GetConversation(ctx, anonID)
	require.NoError(t, err)
	assert.Equal(t, 1, anon.UnreadCounts[bob])

	msgs, err := s.GetMessages(ctx, anonID, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].SenderID)
	assert.True(t, msgs[0].IsAnonymous)
}

func testAppendUnknown(t *testing.T, s storage.Store) {
	err := s.AppendMessageAtomic(context.Background(), "missing", message("m1", "missing", alice, bob, "hi", base), []string{bob})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetConversation(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testConcurrentAppends(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, "conv_alice_bob", []string{alice, bob}, false)
	require.NoError(t, err)

	const n = 25
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("m%02d", i)
			errs <- s.AppendMessageAtomic(ctx, "conv_alice_bob",
				message(id, "conv_alice_bob", alice, bob, id, base.Add(time.Duration(i)*time.Millisecond)), []string{bob})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	conv, err := s.GetConversation(ctx, "conv_alice_bob")
	require.NoError(t, err)
	assert.Equal(t, n, conv.UnreadCounts[bob])
	assert.Equal(t, 0, conv.UnreadCounts[alice])
}

func testConversationsSorted(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for i, pair := range [][2]string{{alice, bob}, {alice, carol}, {bob, carol}} {
		id := "conv_" + pair[0] + "_" + pair[1]
		_, err := s.EnsureConversation(ctx, id, pair[:], false)
		require.NoError(t, err)
		require.NoError(t, s.AppendMessageAtomic(ctx, id,
			message(fmt.Sprintf("m%d", i), id, pair[0], pair[1], "hello", base.Add(time.Duration(i)*time.Minute)), []string{pair[1]}))
	}
	// bump the oldest one to the top
	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob",
		message("m9", "conv_alice_bob", bob, alice, "again", base.Add(time.Hour)), []string{alice}))

	convs, err := s.GetConversationsForUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "conv_alice_bob", convs[0].ID)
	assert.Equal(t, "conv_alice_carol", convs[1].ID)

	none, err := s.GetConversationsForUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMessagesPaged(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, "conv_alice_bob", []string{alice, bob}, false)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("m%d", i)
		require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob",
			message(id, "conv_alice_bob", alice, bob, id, base.Add(time.Duration(i)*time.Second)), []string{bob}))
	}

	page1, err := s.GetMessages(ctx, "conv_alice_bob", 1, 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "m4", page1[0].ID)
	assert.Equal(t, "m3", page1[1].ID)

	page3, err := s.GetMessages(ctx, "conv_alice_bob", 3, 2)
	require.NoError(t, err)
	require.Len(t, page3, 1)
	assert.Equal(t, "m0", page3[0].ID)

	page4, err := s.GetMessages(ctx, "conv_alice_bob", 4, 2)
	require.NoError(t, err)
	assert.Empty(t, page4)

	_, err = s.GetMessages(ctx, "missing", 1, 2)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testResetUnread(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, "conv_alice_bob", []string{alice, bob}, false)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob", message("m1", "conv_alice_bob", alice, bob, "hi", base), []string{bob}))
	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob", message("m2", "conv_alice_bob", bob, alice, "yo", base.Add(time.Second)), []string{alice}))
	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob", message("m3", "conv_alice_bob", alice, bob, "sup", base.Add(2*time.Second)), []string{bob}))

	require.NoError(t, s.ResetUnread(ctx, "conv_alice_bob", bob))

	conv, err := s.GetConversation(ctx, "conv_alice_bob")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCounts[bob])
	assert.Equal(t, 1, conv.UnreadCounts[alice])

	msgs, err := s.GetMessages(ctx, "conv_alice_bob", 1, 10)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.RecipientID == bob {
			assert.True(t, m.IsRead, m.ID)
		} else {
			assert.False(t, m.IsRead, m.ID)
		}
	}

	assert.ErrorIs(t, s.ResetUnread(ctx, "missing", bob), storage.ErrNotFound)
}

func testDeleteMessage(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, "conv_alice_bob", []string{alice, bob}, false)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob", message("m1", "conv_alice_bob", alice, bob, "hi", base), []string{bob}))

	assert.ErrorIs(t, s.DeleteMessage(ctx, "conv_alice_bob", "m1", alice), storage.ErrNotOwner)
	assert.ErrorIs(t, s.DeleteMessage(ctx, "conv_alice_bob", "nope", bob), storage.ErrNotFound)
	require.NoError(t, s.DeleteMessage(ctx, "conv_alice_bob", "m1", bob))

	msgs, err := s.GetMessages(ctx, "conv_alice_bob", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	conv, err := s.GetConversation(ctx, "conv_alice_bob")
	require.NoError(t, err)
	assert.Equal(t, "conv_alice_bob", conv.ID)
	assert.Equal(t, 0, conv.UnreadCounts[bob])
	assert.Empty(t, conv.LastMessage)
	assert.True(t, conv.LastUpdated.IsZero())

	assert.ErrorIs(t, s.DeleteMessage(ctx, "missing", "m1", bob), storage.ErrNotFound)
}

func testDeleteUpdatesConversation(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const id = "conv_alice_bob"
	_, err := s.EnsureConversation(ctx, id, []string{alice, bob}, false)
	require.NoError(t, err)
	require.NoError(t, s.AppendMessageAtomic(ctx, id, message("m1", id, alice, bob, "hello", base), []string{bob}))
	require.NoError(t, s.AppendMessageAtomic(ctx, id, message("m2", id, bob, alice, "hey", base.Add(time.Second)), []string{alice}))
	require.NoError(t, s.AppendMessageAtomic(ctx, id, message("m3", id, alice, bob, "abusive text", base.Add(2*time.Second)), []string{bob}))

	var mu sync.Mutex
	var latest []*models.Conversation
	cancel := s.SubscribeConversations(bob, func(convs []*models.Conversation) {
		mu.Lock()
		defer mu.Unlock()
		latest = convs
	})
	defer cancel()
	preview := func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(latest) != 1 {
			return ""
		}
		return latest[0].LastMessage
	}
	require.Eventually(t, func() bool { return preview() == "abusive text" }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.DeleteMessage(ctx, id, "m3", bob))

	conv, err := s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCounts[bob])
	assert.Equal(t, 1, conv.UnreadCounts[alice])
	assert.Equal(t, "hey", conv.LastMessage)
	assert.True(t, conv.LastUpdated.Equal(base.Add(time.Second)))
	require.Eventually(t, func() bool { return preview() == "hey" }, 2*time.Second, 10*time.Millisecond)

	// A message already read leaves the counter alone.
	require.NoError(t, s.ResetUnread(ctx, id, bob))
	require.NoError(t, s.DeleteMessage(ctx, id, "m1", bob))

	conv, err = s.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCounts[bob])
	assert.Equal(t, 1, conv.UnreadCounts[alice])
	assert.Equal(t, "hey", conv.LastMessage)

	msgs, err := s.GetMessages(ctx, id, 1, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m2", msgs[0].ID)
}

func testProfiles(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.GetUserMessagingSettings(ctx, bob)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	p := &models.Profile{
		ID:       "prof_bob",
		OwnerUID: bob,
		Username: "bobby",
		Slug:     "bob-card",
		Settings: models.UserMessagingSettings{CanReceiveMessages: true},
	}
	require.NoError(t, s.UpsertProfile(ctx, p))

	settings, err := s.GetUserMessagingSettings(ctx, bob)
	require.NoError(t, err)
	assert.True(t, settings.CanReceiveMessages)
	assert.False(t, settings.CanReceiveAnonymous)

	bySlug, err := s.ProfileBySlug(ctx, "bob-card")
	require.NoError(t, err)
	assert.Equal(t, "prof_bob", bySlug.ID)

	byID, err := s.ProfileByID(ctx, "prof_bob")
	require.NoError(t, err)
	assert.Equal(t, "bobby", byID.Username)

	byName, err := s.ProfileByUsername(ctx, "bobby")
	require.NoError(t, err)
	assert.Equal(t, "prof_bob", byName.ID)

	// renaming must drop the old secondary keys
	p.Slug = "bob-new"
	p.Username = "robert"
	p.Settings.CanReceiveAnonymous = true
	require.NoError(t, s.UpsertProfile(ctx, p))

	_, err = s.ProfileBySlug(ctx, "bob-card")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.ProfileByUsername(ctx, "bobby")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	renamed, err := s.ProfileBySlug(ctx, "bob-new")
	require.NoError(t, err)
	assert.Equal(t, "robert", renamed.Username)

	settings, err = s.GetUserMessagingSettings(ctx, bob)
	require.NoError(t, err)
	assert.True(t, settings.CanReceiveAnonymous)

	_, err = s.ProfileByID(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testSubscribe(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.EnsureConversation(ctx, "conv_alice_bob", []string{alice, bob}, false)
	require.NoError(t, err)

	var mu sync.Mutex
	var snapshots [][]*models.Conversation
	cancel := s.SubscribeConversations(bob, func(convs []*models.Conversation) {
		mu.Lock()
		defer mu.Unlock()
		snapshots = append(snapshots, convs)
	})
	latest := func() []*models.Conversation {
		mu.Lock()
		defer mu.Unlock()
		if len(snapshots) == 0 {
			return nil
		}
		return snapshots[len(snapshots)-1]
	}

	require.Eventually(t, func() bool { return len(latest()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob", message("m1", "conv_alice_bob", alice, bob, "hi", base), []string{bob}))
	require.Eventually(t, func() bool {
		convs := latest()
		return len(convs) == 1 && convs[0].UnreadCounts[bob] == 1 && convs[0].LastMessage == "hi"
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	mu.Lock()
	seen := len(snapshots)
	mu.Unlock()

	require.NoError(t, s.AppendMessageAtomic(ctx, "conv_alice_bob", message("m2", "conv_alice_bob", alice, bob, "again", base.Add(time.Second)), []string{bob}))
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	assert.Equal(t, seen, len(snapshots))
	mu.Unlock()
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"hoyn/internal/models"
	"hoyn/internal/pubsub"
	"hoyn/internal/storage"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var messageColumns = []string{
	"id", "conversation_id", "sender_id", "sender_name", "recipient_id",
	"body", "created_at", "is_read", "is_anonymous",
}

var profileColumns = []string{
	"id", "COALESCE(owner_uid, '')", "COALESCE(username, '')", "COALESCE(slug, '')",
	"display_name", "can_receive_messages", "can_receive_anonymous",
}

// Store persists profiles, conversations and messages in PostgreSQL. Append and
// unread increments share one transaction; the conversation row lock orders
// concurrent appends.
type Store struct {
	pool *pgxpool.Pool
	tx   *TxManager
	hub  *pubsub.Hub[[]*models.Conversation]
}

func New(pool *pgxpool.Pool, onError pubsub.ErrorHandler) *Store {
	s := &Store{pool: pool, tx: NewTxManager(pool)}
	s.hub = pubsub.NewHub(func(ctx context.Context, userID string) ([]*models.Conversation, error) {
		return s.GetConversationsForUser(ctx, userID)
	}, onError)
	return s
}

func (s *Store) exec(ctx context.Context, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	tag, err := querier(ctx, s.pool).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) queryRow(ctx context.Context, b sq.Sqlizer) (pgx.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return querier(ctx, s.pool).QueryRow(ctx, query, args...), nil
}

func (s *Store) query(ctx context.Context, b sq.Sqlizer) (pgx.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return querier(ctx, s.pool).Query(ctx, query, args...)
}

// lockConversation takes the row lock that serializes writers of one conversation.
func (s *Store) lockConversation(ctx context.Context, id string) error {
	row, err := s.queryRow(ctx, psql.Select("id").From("conversations").Where(sq.Eq{"id": id}).Suffix("FOR UPDATE"))
	if err != nil {
		return err
	}
	var got string
	return mapError(row.Scan(&got), "conversation", id)
}

func (s *Store) EnsureConversation(ctx context.Context, id string, participants []string, anonymous bool) (*models.Conversation, error) {
	var conv *models.Conversation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		inserted, err := s.exec(ctx, psql.Insert("conversations").
			Columns("id", "is_anonymous_thread", "last_updated").
			Values(id, anonymous, time.Time{}).
			Suffix("ON CONFLICT (id) DO NOTHING"))
		if err != nil {
			return mapError(err, "conversation", id)
		}
		if inserted > 0 && len(participants) > 0 {
			ins := psql.Insert("conversation_participants").Columns("conversation_id", "user_id", "position")
			for i, p := range participants {
				ins = ins.Values(id, p, i)
			}
			if _, err := s.exec(ctx, ins.Suffix("ON CONFLICT DO NOTHING")); err != nil {
				return mapError(err, "conversation", id)
			}
		}
		conv, err = s.loadConversation(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *Store) AppendMessageAtomic(ctx context.Context, conversationID string, msg *models.Message, incrementFor []string) error {
	var participants []string
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.lockConversation(ctx, conversationID); err != nil {
			return err
		}
		_, err := s.exec(ctx, psql.Insert("messages").Columns(messageColumns...).Values(
			msg.ID, conversationID, msg.SenderID, msg.SenderName, msg.RecipientID,
			msg.Text, msg.Timestamp, msg.IsRead, msg.IsAnonymous,
		))
		if err != nil {
			return mapError(err, "message", msg.ID)
		}
		_, err = s.exec(ctx, psql.Update("conversations").
			Set("last_message", msg.Text).
			Set("last_updated", msg.Timestamp).
			Where(sq.Eq{"id": conversationID}))
		if err != nil {
			return mapError(err, "conversation", conversationID)
		}
		if len(incrementFor) > 0 {
			_, err = s.exec(ctx, psql.Update("conversation_participants").
				Set("unread_count", sq.Expr("unread_count + 1")).
				Where(sq.Eq{"conversation_id": conversationID, "user_id": incrementFor}))
			if err != nil {
				return mapError(err, "conversation", conversationID)
			}
		}
		participants, err = s.participants(ctx, conversationID)
		return err
	})
	if err != nil {
		return err
	}
	s.hub.Notify(participants...)
	return nil
}

func (s *Store) participants(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.query(ctx, psql.Select("user_id").From("conversation_participants").
		Where(sq.Eq{"conversation_id": conversationID}).OrderBy("position"))
	if err != nil {
		return nil, mapError(err, "conversation", conversationID)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, mapError(err, "conversation", conversationID)
	}
	return out, nil
}

func (s *Store) loadConversation(ctx context.Context, id string) (*models.Conversation, error) {
	convs, err := s.loadConversations(ctx, psql.Select("c.id", "c.is_anonymous_thread", "c.last_message", "c.last_updated").
		From("conversations c").Where(sq.Eq{"c.id": id}))
	if err != nil {
		return nil, mapError(err, "conversation", id)
	}
	if len(convs) == 0 {
		return nil, fmt.Errorf("conversation %s: %w", id, storage.ErrNotFound)
	}
	return convs[0], nil
}

func (s *Store) loadConversations(ctx context.Context, b sq.SelectBuilder) ([]*models.Conversation, error) {
	rows, err := s.query(ctx, b)
	if err != nil {
		return nil, err
	}
	convs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Conversation, error) {
		var c models.Conversation
		if err := row.Scan(&c.ID, &c.IsAnonymousThread, &c.LastMessage, &c.LastUpdated); err != nil {
			return nil, err
		}
		c.LastUpdated = c.LastUpdated.UTC()
		c.UnreadCounts = make(map[string]int)
		return &c, nil
	})
	if err != nil || len(convs) == 0 {
		return convs, err
	}

	byID := make(map[string]*models.Conversation, len(convs))
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}
	prow, err := s.query(ctx, psql.Select("conversation_id", "user_id", "unread_count").
		From("conversation_participants").
		Where(sq.Eq{"conversation_id": ids}).
		OrderBy("conversation_id", "position"))
	if err != nil {
		return nil, err
	}
	defer prow.Close()
	for prow.Next() {
		var convID, userID string
		var unread int
		if err := prow.Scan(&convID, &userID, &unread); err != nil {
			return nil, err
		}
		c := byID[convID]
		c.Participants = append(c.Participants, userID)
		c.UnreadCounts[userID] = unread
	}
	return convs, prow.Err()
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	return s.loadConversation(ctx, id)
}

func (s *Store) GetConversationsForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	convs, err := s.loadConversations(ctx, psql.Select("c.id", "c.is_anonymous_thread", "c.last_message", "c.last_updated").
		From("conversations c").
		Join("conversation_participants p ON p.conversation_id = c.id").
		Where(sq.Eq{"p.user_id": userID}).
		OrderBy("c.last_updated DESC", "c.id ASC"))
	if err != nil {
		return nil, mapError(err, "user", userID)
	}
	if convs == nil {
		convs = make([]*models.Conversation, 0)
	}
	return convs, nil
}

func (s *Store) GetMessages(ctx context.Context, conversationID string, page, limit int) ([]*models.Message, error) {
	if _, err := s.loadConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	page, limit = storage.NormalizePage(page, limit)

	rows, err := s.query(ctx, psql.Select(messageColumns...).From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("seq DESC").
		Limit(uint64(limit)).
		Offset(uint64((page-1)*limit)))
	if err != nil {
		return nil, mapError(err, "conversation", conversationID)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*models.Message, error) {
		var m models.Message
		if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.RecipientID,
			&m.Text, &m.Timestamp, &m.IsRead, &m.IsAnonymous); err != nil {
			return nil, err
		}
		m.Timestamp = m.Timestamp.UTC()
		return &m, nil
	})
	if err != nil {
		return nil, mapError(err, "conversation", conversationID)
	}
	if msgs == nil {
		msgs = make([]*models.Message, 0)
	}
	return msgs, nil
}

func (s *Store) ResetUnread(ctx context.Context, conversationID, viewerID string) error {
	var participants []string
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.lockConversation(ctx, conversationID); err != nil {
			return err
		}
		if _, err := s.exec(ctx, psql.Update("conversation_participants").
			Set("unread_count", 0).
			Where(sq.Eq{"conversation_id": conversationID, "user_id": viewerID})); err != nil {
			return mapError(err, "conversation", conversationID)
		}
		if _, err := s.exec(ctx, psql.Update("messages").
			Set("is_read", true).
			Where(sq.Eq{"conversation_id": conversationID, "recipient_id": viewerID, "is_read": false})); err != nil {
			return mapError(err, "conversation", conversationID)
		}
		var err error
		participants, err = s.participants(ctx, conversationID)
		return err
	})
	if err != nil {
		return err
	}
	s.hub.Notify(participants...)
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, conversationID, messageID, requesterID string) error {
	var participants []string
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.lockConversation(ctx, conversationID); err != nil {
			return err
		}
		row, err := s.queryRow(ctx, psql.Select("recipient_id", "is_read").From("messages").
			Where(sq.Eq{"conversation_id": conversationID, "id": messageID}))
		if err != nil {
			return err
		}
		var recipient string
		var isRead bool
		if err := row.Scan(&recipient, &isRead); err != nil {
			return mapError(err, "message", messageID)
		}
		if recipient != requesterID {
			return storage.ErrNotOwner
		}
		if _, err := s.exec(ctx, psql.Delete("messages").Where(sq.Eq{"id": messageID})); err != nil {
			return mapError(err, "message", messageID)
		}
		if !isRead {
			_, err = s.exec(ctx, psql.Update("conversation_participants").
				Set("unread_count", sq.Expr("GREATEST(unread_count - 1, 0)")).
				Where(sq.Eq{"conversation_id": conversationID, "user_id": recipient}))
			if err != nil {
				return mapError(err, "conversation", conversationID)
			}
		}
		if err := s.refreshPreview(ctx, conversationID); err != nil {
			return err
		}
		participants, err = s.participants(ctx, conversationID)
		return err
	})
	if err != nil {
		return err
	}
	s.hub.Notify(participants...)
	return nil
}

// refreshPreview points last_message and last_updated at the newest remaining
// message, or clears them when the conversation is empty.
func (s *Store) refreshPreview(ctx context.Context, conversationID string) error {
	row, err := s.queryRow(ctx, psql.Select("body", "created_at").From("messages").
		Where(sq.Eq{"conversation_id": conversationID}).
		OrderBy("seq DESC").
		Limit(1))
	if err != nil {
		return err
	}
	var body string
	var at time.Time
	if err := row.Scan(&body, &at); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return mapError(err, "conversation", conversationID)
	}
	_, err = s.exec(ctx, psql.Update("conversations").
		Set("last_message", body).
		Set("last_updated", at).
		Where(sq.Eq{"id": conversationID}))
	return mapError(err, "conversation", conversationID)
}

func (s *Store) GetUserMessagingSettings(ctx context.Context, userID string) (models.UserMessagingSettings, error) {
	var settings models.UserMessagingSettings
	row, err := s.queryRow(ctx, psql.Select("can_receive_messages", "can_receive_anonymous").
		From("profiles").Where(sq.Eq{"owner_uid": userID}))
	if err != nil {
		return settings, err
	}
	if err := row.Scan(&settings.CanReceiveMessages, &settings.CanReceiveAnonymous); err != nil {
		return models.UserMessagingSettings{}, mapError(err, "settings", userID)
	}
	return settings, nil
}

func (s *Store) UpsertProfile(ctx context.Context, p *models.Profile) error {
	_, err := s.exec(ctx, psql.Insert("profiles").
		Columns("id", "owner_uid", "username", "slug", "display_name", "can_receive_messages", "can_receive_anonymous").
		Values(p.ID, nullIfEmpty(p.OwnerUID), nullIfEmpty(p.Username), nullIfEmpty(p.Slug), p.DisplayName,
			p.Settings.CanReceiveMessages, p.Settings.CanReceiveAnonymous).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			owner_uid = EXCLUDED.owner_uid,
			username = EXCLUDED.username,
			slug = EXCLUDED.slug,
			display_name = EXCLUDED.display_name,
			can_receive_messages = EXCLUDED.can_receive_messages,
			can_receive_anonymous = EXCLUDED.can_receive_anonymous`))
	return mapError(err, "profile", p.ID)
}

func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func (s *Store) ProfileByID(ctx context.Context, id string) (*models.Profile, error) {
	return s.profileWhere(ctx, sq.Eq{"id": id}, id)
}

func (s *Store) ProfileBySlug(ctx context.Context, slug string) (*models.Profile, error) {
	return s.profileWhere(ctx, sq.Eq{"slug": slug}, slug)
}

func (s *Store) ProfileByUsername(ctx context.Context, username string) (*models.Profile, error) {
	return s.profileWhere(ctx, sq.Eq{"username": username}, username)
}

func (s *Store) profileWhere(ctx context.Context, where sq.Eq, label string) (*models.Profile, error) {
	row, err := s.queryRow(ctx, psql.Select(profileColumns...).From("profiles").Where(where))
	if err != nil {
		return nil, err
	}
	var p models.Profile
	err = row.Scan(&p.ID, &p.OwnerUID, &p.Username, &p.Slug, &p.DisplayName,
		&p.Settings.CanReceiveMessages, &p.Settings.CanReceiveAnonymous)
	if err != nil {
		return nil, mapError(err, "profile", label)
	}
	return &p, nil
}

func (s *Store) SubscribeConversations(userID string, handler storage.ConversationsHandler) func() {
	return s.hub.Subscribe(userID, pubsub.Handler[[]*models.Conversation](handler))
}

// Close stops subscriptions; the pool is owned by the caller.
func (s *Store) Close() error {
	s.hub.Close()
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var _ storage.Store = (*Store)(nil)

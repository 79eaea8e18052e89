package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"
	"unicode/utf16"

	"github.com/google/uuid"

	"hoyn/internal/conversation"
	"hoyn/internal/models"
	"hoyn/internal/providers"
	"hoyn/internal/ratelimit"
	"hoyn/internal/storage"
	"hoyn/internal/structures"
)

const (
	DefaultMaxTextLength      = 300
	DefaultMaxAnonymousLength = 100
	AnonymousSenderName       = "Anonymous"
	actorIPPrefix             = "ip:"
)

var actorIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{28}$`)

// ValidActorID reports whether id has the shape of an identity-provider uid.
func ValidActorID(id string) bool {
	return actorIDPattern.MatchString(id)
}

// TextLength counts UTF-16 code units, so a surrogate pair counts as two.
func TextLength(text string) int {
	n := 0
	for _, r := range text {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

type SendRequest struct {
	SenderID    string
	RecipientID string
	Text        string
	IsAnonymous bool
	SenderName  string
	// ClientIP keys the limiter for anonymous sends.
	ClientIP string
}

type SendResult struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	Timestamp      time.Time `json:"timestamp"`
	MessageLength  int       `json:"messageLength"`
	IsAnonymous    bool      `json:"isAnonymous"`
}

type MessageServiceInterface interface {
	Send(ctx context.Context, req SendRequest) (*SendResult, error)
	ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error)
	GetMessages(ctx context.Context, conversationID, userID string, page, limit int) ([]*models.Message, error)
	OpenConversation(ctx context.Context, conversationID, viewerID string) error
	DeleteMessage(ctx context.Context, conversationID, messageID, requesterID string) error
	Subscribe(userID string, handler storage.ConversationsHandler) (func(), error)
}

type MessageService struct {
	store     storage.Store
	directory conversation.DirectoryInterface
	tracker   conversation.UnreadTrackerInterface
	limiter   ratelimit.Limiter
	logger    providers.Logger
	metrics   providers.MetricsProviderInterface

	maxText      int
	maxAnonymous int
	now          func() time.Time
	newID        func() string
}

func NewMessageService(
	conf *structures.Config,
	store storage.Store,
	directory conversation.DirectoryInterface,
	tracker conversation.UnreadTrackerInterface,
	limiter ratelimit.Limiter,
	logger providers.Logger,
	metrics providers.MetricsProviderInterface,
) MessageServiceInterface {
	maxText := conf.Messaging.MaxTextLength
	if maxText <= 0 {
		maxText = DefaultMaxTextLength
	}
	maxAnonymous := conf.Messaging.MaxAnonymousLength
	if maxAnonymous <= 0 {
		maxAnonymous = DefaultMaxAnonymousLength
	}
	return &MessageService{
		store:        store,
		directory:    directory,
		tracker:      tracker,
		limiter:      limiter,
		logger:       logger,
		metrics:      metrics,
		maxText:      maxText,
		maxAnonymous: maxAnonymous,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

func (ms *MessageService) validate(req *SendRequest) error {
	limit := ms.maxText
	if req.IsAnonymous {
		limit = ms.maxAnonymous
	}
	if n := TextLength(req.Text); n < 1 || n > limit {
		return &ValidationError{Field: "text", Constraint: fmt.Sprintf("length must be between 1 and %d", limit)}
	}
	if !ValidActorID(req.RecipientID) {
		return fmt.Errorf("%w: recipientId", ErrMalformedActor)
	}
	if req.IsAnonymous {
		return nil
	}
	if !ValidActorID(req.SenderID) {
		return fmt.Errorf("%w: senderId", ErrMalformedActor)
	}
	if req.SenderID == req.RecipientID {
		return &ValidationError{Field: "recipientId", Constraint: "must differ from sender"}
	}
	return nil
}

func (ms *MessageService) authorize(ctx context.Context, req *SendRequest) error {
	settings, err := ms.store.GetUserMessagingSettings(ctx, req.RecipientID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrRecipientOptedOut
	}
	if err != nil {
		return transient("load recipient settings", err)
	}
	if req.IsAnonymous && !settings.CanReceiveAnonymous {
		return fmt.Errorf("%w: anonymous messages disabled", ErrRecipientOptedOut)
	}
	if !req.IsAnonymous && !settings.CanReceiveMessages {
		return fmt.Errorf("%w: messages disabled", ErrRecipientOptedOut)
	}
	return nil
}

func actorKey(req *SendRequest) string {
	if req.IsAnonymous || req.SenderID == "" {
		ip := req.ClientIP
		if ip == "" {
			ip = "unknown"
		}
		return actorIPPrefix + ip
	}
	return req.SenderID
}

// Send validates, authorizes and rate limits the request, then appends the message
// and the unread increments in one store transaction. Quota is consumed only after
// the append succeeded.
func (ms *MessageService) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	if err := ms.validate(&req); err != nil {
		return nil, err
	}
	if err := ms.authorize(ctx, &req); err != nil {
		return nil, err
	}

	key := actorKey(&req)
	if d := ms.limiter.TryAdmit(key); !d.Admitted {
		ms.metrics.IncRateLimited("messages")
		ms.logger.Infof(providers.TypeMessaging, "Rate limited %s, retry after %s", key, d.RetryAfter)
		return nil, &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	senderID := req.SenderID
	if req.IsAnonymous {
		senderID = ""
	}
	convID := conversation.ResolveConversationID(senderID, req.RecipientID, req.IsAnonymous)
	participants := conversation.Participants(senderID, req.RecipientID, req.IsAnonymous)
	if _, err := ms.directory.GetOrCreate(ctx, convID, participants, req.IsAnonymous); err != nil {
		return nil, transient("get or create conversation", err)
	}

	msg := &models.Message{
		ID:             ms.newID(),
		ConversationID: convID,
		SenderName:     req.SenderName,
		RecipientID:    req.RecipientID,
		Text:           req.Text,
		Timestamp:      ms.now().UTC(),
		IsAnonymous:    req.IsAnonymous,
	}
	if req.IsAnonymous {
		msg.SenderName = AnonymousSenderName
	} else {
		msg.SenderID = &senderID
	}

	increment := ms.tracker.OnMessageAppended(convID, senderID, participants)
	if err := ms.store.AppendMessageAtomic(ctx, convID, msg, increment); err != nil {
		ms.logger.Errorf(providers.TypeMessaging, "Append to %s failed: %s", convID, err)
		return nil, transient("append message", err)
	}
	ms.limiter.Record(key)
	ms.metrics.IncMessagesSent(req.IsAnonymous)

	return &SendResult{
		ConversationID: convID,
		MessageID:      msg.ID,
		Timestamp:      msg.Timestamp,
		MessageLength:  TextLength(req.Text),
		IsAnonymous:    req.IsAnonymous,
	}, nil
}

func (ms *MessageService) ListConversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	if !ValidActorID(userID) {
		return nil, ErrMalformedActor
	}
	convs, err := ms.store.GetConversationsForUser(ctx, userID)
	if err != nil {
		return nil, transient("list conversations", err)
	}
	return convs, nil
}

func (ms *MessageService) participantConversation(ctx context.Context, conversationID, userID string) (*models.Conversation, error) {
	if !ValidActorID(userID) {
		return nil, ErrMalformedActor
	}
	conv, err := ms.store.GetConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, transient("load conversation", err)
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

func (ms *MessageService) GetMessages(ctx context.Context, conversationID, userID string, page, limit int) ([]*models.Message, error) {
	if _, err := ms.participantConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	page, limit = storage.NormalizePage(page, limit)
	msgs, err := ms.store.GetMessages(ctx, conversationID, page, limit)
	if err != nil {
		return nil, transient("load messages", err)
	}
	return msgs, nil
}

func (ms *MessageService) OpenConversation(ctx context.Context, conversationID, viewerID string) error {
	if _, err := ms.participantConversation(ctx, conversationID, viewerID); err != nil {
		return err
	}
	if err := ms.tracker.OnConversationOpened(ctx, conversationID, viewerID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return transient("reset unread", err)
	}
	return nil
}

func (ms *MessageService) DeleteMessage(ctx context.Context, conversationID, messageID, requesterID string) error {
	if _, err := ms.participantConversation(ctx, conversationID, requesterID); err != nil {
		return err
	}
	err := ms.store.DeleteMessage(ctx, conversationID, messageID, requesterID)
	switch {
	case err == nil:
		ms.logger.Infof(providers.TypeMessaging, "Message %s deleted from %s", messageID, conversationID)
		return nil
	case errors.Is(err, storage.ErrNotOwner):
		return fmt.Errorf("%w: only the recipient may delete a message", ErrNotParticipant)
	case errors.Is(err, storage.ErrNotFound):
		return err
	default:
		return transient("delete message", err)
	}
}

// Subscribe streams the user's conversation list until the returned cancel is called.
func (ms *MessageService) Subscribe(userID string, handler storage.ConversationsHandler) (func(), error) {
	if !ValidActorID(userID) {
		return nil, ErrMalformedActor
	}
	return ms.store.SubscribeConversations(userID, handler), nil
}

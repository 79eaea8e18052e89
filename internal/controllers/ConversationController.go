package controllers

import (
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cast"
	"go.uber.org/atomic"

	"hoyn/internal/models"
	"hoyn/internal/providers"
	"hoyn/internal/services"
	"hoyn/internal/storage"
)

const streamHeartbeat = 25 * time.Second

type ConversationController struct {
	logger   providers.Logger
	service  services.MessageServiceInterface
	identity providers.IdentityProviderInterface
	streams  atomic.Int64
}

type conversationsResponse struct {
	Conversations []*models.Conversation `json:"conversations"`
}

type messagesResponse struct {
	Messages []*models.Message `json:"messages"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

type openRequest struct {
	ViewerID string `json:"viewerId"`
}

func NewConversationController(logger providers.Logger, service services.MessageServiceInterface, identity providers.IdentityProviderInterface) *ConversationController {
	return &ConversationController{
		logger:   logger,
		service:  service,
		identity: identity,
	}
}

// ActiveStreams is the number of open conversation streams.
func (cc *ConversationController) ActiveStreams() int64 {
	return cc.streams.Load()
}

func (cc *ConversationController) fail(w http.ResponseWriter, err error) {
	writeServiceError(w, cc.logger, providers.TypeMessaging, err)
}

func (cc *ConversationController) List(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r, cc.identity, r.URL.Query().Get("userId"))
	if err != nil {
		cc.fail(w, err)
		return
	}
	convs, err := cc.service.ListConversations(r.Context(), userID)
	if err != nil {
		cc.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conversationsResponse{Conversations: convs})
}

func (cc *ConversationController) Messages(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	userID, err := actingUser(r, cc.identity, query.Get("userId"))
	if err != nil {
		cc.fail(w, err)
		return
	}
	page, limit := storage.NormalizePage(cast.ToInt(query.Get("page")), cast.ToInt(query.Get("limit")))

	msgs, err := cc.service.GetMessages(r.Context(), r.PathValue("id"), userID, page, limit)
	if err != nil {
		cc.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs, Page: page, Limit: limit})
}

func (cc *ConversationController) Open(w http.ResponseWriter, r *http.Request) {
	var payload openRequest
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}
	viewerID, err := actingUser(r, cc.identity, payload.ViewerID)
	if err != nil {
		cc.fail(w, err)
		return
	}
	if err := cc.service.OpenConversation(r.Context(), r.PathValue("id"), viewerID); err != nil {
		cc.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (cc *ConversationController) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r, cc.identity, r.URL.Query().Get("userId"))
	if err != nil {
		cc.fail(w, err)
		return
	}
	if err := cc.service.DeleteMessage(r.Context(), r.PathValue("id"), r.PathValue("messageId"), userID); err != nil {
		cc.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream pushes the caller's full conversation list as server-sent events whenever it
// changes. Slow clients only ever see the latest list.
func (cc *ConversationController) Stream(w http.ResponseWriter, r *http.Request) {
	userID, err := actingUser(r, cc.identity, r.URL.Query().Get("userId"))
	if err != nil {
		cc.fail(w, err)
		return
	}
	initial, err := cc.service.ListConversations(r.Context(), userID)
	if err != nil {
		cc.fail(w, err)
		return
	}

	updates := make(chan []*models.Conversation, 1)
	cancel, err := cc.service.Subscribe(userID, func(convs []*models.Conversation) {
		select {
		case <-updates:
		default:
		}
		updates <- convs
	})
	if err != nil {
		cc.fail(w, err)
		return
	}
	defer cancel()

	cc.streams.Inc()
	defer cc.streams.Dec()

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, rc, initial); err != nil {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case convs := <-updates:
			if err := writeEvent(w, rc, convs); err != nil {
				cc.logger.Debugf(providers.TypeMessaging, "Stream for %s closed: %s", userID, err)
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, convs []*models.Conversation) error {
	if convs == nil {
		convs = []*models.Conversation{}
	}
	data, err := json.Marshal(convs)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: conversations\ndata: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}

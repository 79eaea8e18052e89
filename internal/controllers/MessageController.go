package controllers

import (
	"net/http"

	"hoyn/internal/providers"
	"hoyn/internal/services"
	"hoyn/internal/structures"
)

type MessageController struct {
	logger     providers.Logger
	service    services.MessageServiceInterface
	identity   providers.IdentityProviderInterface
	trustProxy bool
}

type sendMessageRequest struct {
	SenderID    string `json:"senderId"`
	RecipientID string `json:"recipientId"`
	Text        string `json:"text"`
	IsAnonymous bool   `json:"isAnonymous"`
	SenderName  string `json:"senderName"`
}

type sendMessageResponse struct {
	Success bool `json:"success"`
	*services.SendResult
}

func NewMessageController(logger providers.Logger, service services.MessageServiceInterface, identity providers.IdentityProviderInterface, conf *structures.Config) *MessageController {
	return &MessageController{
		logger:     logger,
		service:    service,
		identity:   identity,
		trustProxy: conf.WebServer.TrustProxy,
	}
}

func (mc *MessageController) Send(w http.ResponseWriter, r *http.Request) {
	var payload sendMessageRequest
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request")
		return
	}

	req := services.SendRequest{
		SenderID:    payload.SenderID,
		RecipientID: payload.RecipientID,
		Text:        payload.Text,
		IsAnonymous: payload.IsAnonymous,
		SenderName:  payload.SenderName,
		ClientIP:    providers.ClientIP(r, mc.trustProxy),
	}
	if !payload.IsAnonymous {
		sender, err := actingUser(r, mc.identity, payload.SenderID)
		if err != nil {
			writeServiceError(w, mc.logger, providers.TypeMessaging, err)
			return
		}
		req.SenderID = sender
	}

	res, err := mc.service.Send(r.Context(), req)
	if err != nil {
		writeServiceError(w, mc.logger, providers.TypeMessaging, err)
		return
	}
	mc.logger.Infof(providers.TypeMessaging, "Message %s stored in %s", res.MessageID, res.ConversationID)
	writeJSON(w, http.StatusOK, sendMessageResponse{Success: true, SendResult: res})
}

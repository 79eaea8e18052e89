package internal

import (
	"net/http"

	"hoyn/internal/controllers"
	"hoyn/internal/providers"
)

func InitRoutes(
	messageController *controllers.MessageController,
	qrController *controllers.QRController,
	conversationController *controllers.ConversationController,
	profileController *controllers.ProfileController,
	statsController *controllers.StatsController,
) providers.RouterProviderInterface {
	routers := providers.NewRouterProvider()

	routers.Post("/messages/send", http.HandlerFunc(messageController.Send))

	routers.Post("/scan-qr", http.HandlerFunc(qrController.Scan))
	routers.Post("/qr/generate", http.HandlerFunc(qrController.Generate))
	routers.Get("/qr/v1", http.HandlerFunc(qrController.Landing))

	routers.Get("/conversations", http.HandlerFunc(conversationController.List))
	routers.Get("/conversations/stream", http.HandlerFunc(conversationController.Stream))
	routers.Get("/conversations/{id}/messages", http.HandlerFunc(conversationController.Messages))
	routers.Post("/conversations/{id}/open", http.HandlerFunc(conversationController.Open))
	routers.Delete("/conversations/{id}/messages/{messageId}", http.HandlerFunc(conversationController.DeleteMessage))

	routers.Post("/profiles", http.HandlerFunc(profileController.Upsert))
	routers.Get("/stats/scans", http.HandlerFunc(statsController.Scans))
	return routers
}

// Package gateway is the public real-time surface of the messaging core.
// It accepts WebSocket connections, runs the authentication handshake and
// dispatches join/send events; everything stateful lives behind the
// service it fronts.
package gateway

import (
	stderrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"deskchat/auth"
	"deskchat/domain"
	"deskchat/errors"
	"deskchat/services"
)

type Handler struct {
	log             *slog.Logger
	verifier        *auth.Verifier
	service         services.IMessagingService
	bufferSize      int
	deliveryTimeout time.Duration
}

func NewHandler(log *slog.Logger, verifier *auth.Verifier, service services.IMessagingService,
	bufferSize int, deliveryTimeout time.Duration) *Handler {
	return &Handler{
		log:             log,
		verifier:        verifier,
		service:         service,
		bufferSize:      bufferSize,
		deliveryTimeout: deliveryTimeout,
	}
}

// Register mounts the WebSocket endpoint and the HTTP read surface.
func (h *Handler) Register(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.Serve))
	app.Get("/api/conversations/:id/messages", h.History)
	app.Get("/healthz", healthz)
}

// Serve runs one connection. The credential travels as connect metadata,
// a "token" query parameter on the upgrade request.
func (h *Handler) Serve(c *websocket.Conn) {
	h.run(c.Query("token"), c)
}

// History returns a cursor page of a conversation, newest first. Guarded
// by the same verifier and participant check as the live path.
func (h *Handler) History(c *fiber.Ctx) error {
	credential := strings.TrimPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	identity, err := h.verifier.Verify(credential)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(ErrorPayload{Error: ErrorBody{Message: closeReasonInvalidToken}})
	}

	conversationID := domain.ConversationID(c.Params("id"))
	var cursor *string
	if q := c.Query("cursor"); q != "" {
		cursor = &q
	}

	messages, next, err := h.service.History(identity.ID, conversationID, cursor)
	switch {
	case stderrors.Is(err, errors.ErrNotAParticipant), stderrors.Is(err, errors.ErrConversationUnknown):
		return c.Status(fiber.StatusForbidden).JSON(ErrorPayload{Error: ErrorBody{Message: "Access denied to room."}})
	case err != nil:
		h.log.Error("history read failed", "conversation", conversationID, "error", err)
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(fiber.Map{
		"messages": lo.Map(messages, func(m domain.Message, _ int) MessagePayload {
			return toMessagePayload(m)
		}),
		"cursor": next,
	})
}

func healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

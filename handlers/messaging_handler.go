package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	fiberws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/ridehub/ridehub/errs"
	"github.com/ridehub/ridehub/middleware"
	"github.com/ridehub/ridehub/services"
	"github.com/ridehub/ridehub/utils"
	"github.com/ridehub/ridehub/websocket"
	"go.uber.org/zap"
)

type CreateConversationRequest struct {
	Members []string `json:"members"`
}

type ConversationResponse struct {
	ConversationID string   `json:"conversationId"`
	Members        []string `json:"members"`
}

type SendMessageRequest struct {
	ConversationID string `json:"conversationId"`
	ReceiverID     string `json:"receiverId"`
	Body           string `json:"body"`
}

func (h *Handler) GetUserConversations(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return h.fail(c, err)
	}

	conversations, err := h.chat.Conversations(c.UserContext(), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(conversations)
}

// CreateOrGetConversation answers 201 when a conversation was created and
// 200 when an existing pair conversation was reused.
func (h *Handler) CreateOrGetConversation(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req CreateConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	conversation, created, err := h.chat.CreateConversation(c.UserContext(), userID, req.Members)
	if err != nil {
		return h.fail(c, err)
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(ConversationResponse{
		ConversationID: conversation.ID,
		Members:        conversation.Members,
	})
}

// GetConversationMessages returns the history and marks the caller's
// unread messages as read.
func (h *Handler) GetConversationMessages(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return h.fail(c, err)
	}

	messages, err := h.chat.History(c.UserContext(), c.Params("conversationId"), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(messages)
}

// SendMessage is the REST twin of the socket send event.
func (h *Handler) SendMessage(c *fiber.Ctx) error {
	userID, err := middleware.CurrentUserID(c)
	if err != nil {
		return h.fail(c, err)
	}

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}

	res, err := h.chat.Send(c.UserContext(), services.SendInput{
		SenderID:       userID,
		ConversationID: req.ConversationID,
		ReceiverID:     req.ReceiverID,
		Body:           req.Body,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res.Message)
}

// ServeWs runs one authenticated socket. The handshake middleware already
// verified the token; the connection is attached to the hub, joins on
// request and sends messages until it closes.
func (h *Handler) ServeWs(conn *fiberws.Conn) {
	token, _ := conn.Locals(middleware.ContextKey).(*jwt.Token)
	userID, err := utils.UserIDFromToken(token)
	if err != nil {
		h.log.Warn("socket without a valid token", zap.Error(err))
		return
	}

	client := websocket.NewClient(userID, conn, h.socketBuffer, h.log)
	if err := h.hub.Attach(client); err != nil {
		h.log.Warn("hub unavailable, closing socket", zap.Error(err))
		return
	}
	go client.WritePump()
	defer func() {
		h.hub.Detach(client)
		client.Close()
		<-client.Stopped()
		h.log.Info("socket closed", zap.String("conn_id", client.ID), zap.String("user_id", userID))
	}()
	h.log.Info("socket opened", zap.String("conn_id", client.ID), zap.String("user_id", userID))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	websocket.PrepareReader(conn)
	for {
		var env websocket.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if fiberws.IsUnexpectedCloseError(err, fiberws.CloseNormalClosure, fiberws.CloseGoingAway) {
				h.log.Debug("socket read error", zap.String("conn_id", client.ID), zap.Error(err))
			}
			return
		}
		select {
		case <-client.Done():
			return
		default:
		}
		h.dispatch(ctx, client, env)
	}
}

func (h *Handler) dispatch(ctx context.Context, client *websocket.Client, env websocket.Envelope) {
	switch env.Event {
	case websocket.EventJoin:
		h.handleJoin(ctx, client, env.Data)
	case websocket.EventSend:
		h.handleSend(ctx, client, env.Data)
	default:
		h.reply(client, websocket.CodeUnknownEvent, fmt.Sprintf("unknown event %q", env.Event))
	}
}

func (h *Handler) handleJoin(ctx context.Context, client *websocket.Client, data json.RawMessage) {
	var p websocket.JoinPayload
	if err := json.Unmarshal(data, &p); err != nil || p.UserID == "" {
		h.reply(client, websocket.CodeValidation, "join requires userId")
		return
	}
	if p.UserID != client.UserID() {
		h.reply(client, websocket.CodeForbidden, "userId does not match the token")
		return
	}
	if _, err := h.hub.Join(ctx, client, p.UserID); err != nil {
		h.log.Warn("join failed", zap.String("conn_id", client.ID), zap.Error(err))
	}
}

func (h *Handler) handleSend(ctx context.Context, client *websocket.Client, data json.RawMessage) {
	if client.State() < websocket.StateJoined {
		h.reply(client, websocket.CodeNotJoined, "join before sending")
		return
	}

	var p websocket.SendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		h.reply(client, websocket.CodeValidation, "malformed send payload")
		return
	}
	if p.SenderID != "" && p.SenderID != client.UserID() {
		h.reply(client, websocket.CodeForbidden, "senderId does not match the token")
		return
	}

	_, err := h.chat.Send(ctx, services.SendInput{
		SenderID:       client.UserID(),
		ConversationID: p.ConversationID,
		ReceiverID:     p.ReceiverID,
		Body:           p.Body,
	})
	if err != nil {
		code := socketCode(err)
		message := err.Error()
		if code == websocket.CodePersistence {
			message = errs.ErrPersistence.Error()
		}
		h.reply(client, code, message)
		return
	}
	client.MarkActive()
}

func (h *Handler) reply(client *websocket.Client, code, message string) {
	if !client.Enqueue(websocket.ErrorEnvelope(code, message)) {
		h.log.Warn("error event dropped", zap.String("conn_id", client.ID), zap.String("code", code))
	}
}

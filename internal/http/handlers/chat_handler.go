// Package handlers is the thin HTTP edge over the chat services. Handlers
// decode, delegate, and map error sentinels to status codes; no business
// rules live here.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bizlinkhq/bizlink-server/internal/apperrors"
	"github.com/bizlinkhq/bizlink-server/internal/conversation"
	"github.com/bizlinkhq/bizlink-server/internal/directory"
	"github.com/bizlinkhq/bizlink-server/internal/inbox"
	"github.com/bizlinkhq/bizlink-server/internal/message"
	"github.com/bizlinkhq/bizlink-server/pkg/logging"
)

// ChatHandler serves the conversation and message operation surface.
type ChatHandler struct {
	conversations *conversation.Service
	messages      *message.Service
	inbox         *inbox.Service
	directory     *directory.Service
	logger        *logging.Logger
}

func NewChatHandler(
	conversations *conversation.Service,
	messages *message.Service,
	inboxSvc *inbox.Service,
	dir *directory.Service,
	logger *logging.Logger,
) *ChatHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChatHandler{
		conversations: conversations,
		messages:      messages,
		inbox:         inboxSvc,
		directory:     dir,
		logger:        logger,
	}
}

// Routes mounts the chat API under the given router.
func (h *ChatHandler) Routes(r chi.Router) {
	r.Post("/join", h.Join)
	r.Post("/conversations/ensure", h.EnsureConversation)
	r.Get("/managers/{managerID}/conversations", h.ListConversations)
	r.Get("/customers/{customerID}/conversation", h.CustomerConversation)

	r.Route("/conversations/{conversationID}", func(r chi.Router) {
		r.Get("/", h.ConversationDetail)
		r.Get("/messages", h.OlderMessages)
		r.Post("/messages", h.SendMessage)
		r.Post("/delivered", h.MarkDelivered)
		r.Post("/read", h.MarkRead)
		r.Put("/mute", h.SetMute)
	})

	r.Route("/messages/{messageID}", func(r chi.Router) {
		r.Patch("/", h.EditMessage)
		r.Delete("/", h.DeleteMessage)
		r.Post("/reactions", h.ToggleReaction)
	})
}

// Join attaches a customer to a manager's workspace via the invite slug and
// ensures their conversation exists.
func (h *ChatHandler) Join(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Slug  string `json:"slug"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	manager, customer, err := h.directory.JoinBySlug(r.Context(), directory.JoinInput{
		Slug:  body.Slug,
		Name:  body.Name,
		Phone: body.Phone,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	managerName := manager.BusinessName
	if managerName == "" {
		managerName = manager.Name
	}
	conv, err := h.conversations.Ensure(r.Context(), manager.ID, customer.ID, conversation.EnsureInput{
		ManagerName:   managerName,
		CustomerName:  customer.Name,
		CustomerPhone: customer.Phone,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{
		"manager":      manager,
		"customer":     customer,
		"conversation": conv,
	})
}

// EnsureConversation returns the pair's conversation, creating it on first
// contact. Idempotent.
func (h *ChatHandler) EnsureConversation(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ManagerID     string `json:"managerId"`
		CustomerID    string `json:"customerId"`
		ManagerName   string `json:"managerName"`
		CustomerName  string `json:"customerName"`
		CustomerPhone string `json:"customerPhone"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	managerID, err := uuid.Parse(body.ManagerID)
	if err != nil {
		h.badRequest(w, "managerId must be a valid identifier")
		return
	}
	customerID, err := uuid.Parse(body.CustomerID)
	if err != nil {
		h.badRequest(w, "customerId must be a valid identifier")
		return
	}

	conv, err := h.conversations.Ensure(r.Context(), managerID, customerID, conversation.EnsureInput{
		ManagerName:   body.ManagerName,
		CustomerName:  body.CustomerName,
		CustomerPhone: body.CustomerPhone,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, conv)
}

// ListConversations returns a page of the manager's inbox.
func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	managerID, ok := h.pathID(w, r, "managerID")
	if !ok {
		return
	}
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 0)

	result, err := h.inbox.ListForManager(r.Context(), managerID, skip, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// ConversationDetail returns a conversation with its initial message window.
func (h *ChatHandler) ConversationDetail(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.pathID(w, r, "conversationID")
	if !ok {
		return
	}
	result, err := h.inbox.Detail(r.Context(), conversationID, queryInt(r, "limit", 0))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// CustomerConversation returns the customer's single conversation.
func (h *ChatHandler) CustomerConversation(w http.ResponseWriter, r *http.Request) {
	customerID, ok := h.pathID(w, r, "customerID")
	if !ok {
		return
	}
	result, err := h.inbox.ForCustomer(r.Context(), customerID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// OlderMessages pages backwards from a message the client already holds.
func (h *ChatHandler) OlderMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.pathID(w, r, "conversationID")
	if !ok {
		return
	}
	before, err := uuid.Parse(r.URL.Query().Get("before"))
	if err != nil {
		h.badRequest(w, "before must reference a message")
		return
	}
	result, err := h.inbox.Older(r.Context(), conversationID, before, queryInt(r, "limit", 0))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, result)
}

// SendMessage appends a message to the conversation.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.pathID(w, r, "conversationID")
	if !ok {
		return
	}
	var body struct {
		AuthorType  string                    `json:"authorType"`
		AuthorID    string                    `json:"authorId"`
		Content     string                    `json:"content"`
		Attachments []message.AttachmentInput `json:"attachments"`
		ReplyTo     *message.ReplyRef         `json:"replyTo"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	input := message.CreateInput{
		ConversationID: conversationID,
		AuthorType:     message.AuthorType(body.AuthorType),
		Content:        body.Content,
		Attachments:    body.Attachments,
		ReplyTo:        body.ReplyTo,
	}
	if body.AuthorID != "" {
		authorID, err := uuid.Parse(body.AuthorID)
		if err != nil {
			h.badRequest(w, "authorId must be a valid identifier")
			return
		}
		input.AuthorID = &authorID
	}

	msg, err := h.messages.Create(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, msg)
}

// EditMessage replaces content and/or attachments.
func (h *ChatHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	messageID, ok := h.pathID(w, r, "messageID")
	if !ok {
		return
	}
	var body struct {
		Content     *string                    `json:"content"`
		Attachments *[]message.AttachmentInput `json:"attachments"`
	}
	if !h.decode(w, r, &body) {
		return
	}

	input := message.EditInput{Content: body.Content}
	if body.Attachments != nil {
		input.Attachments = *body.Attachments
		input.HasAttach = true
	}
	msg, err := h.messages.Edit(r.Context(), messageID, input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, msg)
}

// DeleteMessage hard-removes a message.
func (h *ChatHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, ok := h.pathID(w, r, "messageID")
	if !ok {
		return
	}
	conversationID, err := h.messages.Delete(r.Context(), messageID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{
		"deleted":        messageID.String(),
		"conversationId": conversationID.String(),
	})
}

// ToggleReaction flips the actor's reaction on an emoji.
func (h *ChatHandler) ToggleReaction(w http.ResponseWriter, r *http.Request) {
	messageID, ok := h.pathID(w, r, "messageID")
	if !ok {
		return
	}
	var body struct {
		Emoji string `json:"emoji"`
		Actor string `json:"actor"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	msg, err := h.messages.ToggleReaction(r.Context(), messageID, body.Emoji, conversation.Participant(body.Actor))
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, msg)
}

// MarkDelivered sweeps the viewer's pending messages to delivered.
func (h *ChatHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	h.sweep(w, r, h.conversations.MarkDelivered)
}

// MarkRead sweeps to read and clears the viewer's unread counter.
func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.sweep(w, r, h.conversations.MarkRead)
}

func (h *ChatHandler) sweep(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, id uuid.UUID, viewer conversation.Participant) (*conversation.Conversation, error),
) {
	conversationID, ok := h.pathID(w, r, "conversationID")
	if !ok {
		return
	}
	var body struct {
		Viewer string `json:"viewer"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	conv, err := op(r.Context(), conversationID, conversation.Participant(body.Viewer))
	if errors.Is(err, apperrors.ErrNoChange) {
		// Acks are retried aggressively by clients; a settled sweep is a
		// success, not an error.
		h.respondJSON(w, http.StatusOK, map[string]any{"changed": false})
		return
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"changed": true, "conversation": conv})
}

// SetMute sets the actor-specific mute flag.
func (h *ChatHandler) SetMute(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := h.pathID(w, r, "conversationID")
	if !ok {
		return
	}
	var body struct {
		Actor string `json:"actor"`
		Muted bool   `json:"muted"`
	}
	if !h.decode(w, r, &body) {
		return
	}
	conv, err := h.conversations.SetMute(r.Context(), conversationID, conversation.Participant(body.Actor), body.Muted)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, conv)
}

func (h *ChatHandler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		h.badRequest(w, "invalid JSON body")
		return false
	}
	return true
}

func (h *ChatHandler) pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		h.badRequest(w, param+" must be a valid identifier")
		return uuid.Nil, false
	}
	return id, true
}

func (h *ChatHandler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("handlers: encode response", "error", err)
	}
}

func (h *ChatHandler) badRequest(w http.ResponseWriter, detail string) {
	h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": detail})
}

func (h *ChatHandler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		h.respondJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, apperrors.ErrValidation):
		h.respondJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("handlers: request failed", "error", err)
		h.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

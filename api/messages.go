package api

import (
	"encoding/json"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/dzrentit/rentit-app-backend/db"
)

// OpenConversationRequest is the request body for opening (or fetching) a
// conversation with another user, optionally scoped to a booking.
type OpenConversationRequest struct {
	WithUserID string `json:"withUserId"`
	BookingID  string `json:"bookingId,omitempty"`
}

// SendMessageRequest is the request body for sending a message.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// ConversationListResponse is a paginated list of conversations.
type ConversationListResponse struct {
	Conversations []*db.Conversation `json:"conversations"`
	Pagination    PaginationInfo     `json:"pagination"`
}

// MessageListResponse is a paginated list of messages in chronological order.
type MessageListResponse struct {
	Messages   []*db.Message  `json:"messages"`
	Pagination PaginationInfo `json:"pagination"`
}

// MarkReadResponse reports how many messages a read receipt affected.
type MarkReadResponse struct {
	MarkedRead int64 `json:"markedRead"`
}

// RegisterMessageRoutes registers the conversation and message routes to the
// router.
func (a *API) RegisterMessageRoutes(r chi.Router) {
	log.Info().Msg("register route POST /conversations")
	r.Post("/conversations", a.routerHandler(a.openConversationHandler))

	log.Info().Msg("register route GET /conversations")
	r.Get("/conversations", a.routerHandler(a.getConversationsHandler))

	log.Info().Msg("register route GET /conversations/{conversationId}/messages")
	r.Get("/conversations/{conversationId}/messages", a.routerHandler(a.getMessagesHandler))

	log.Info().Msg("register route POST /conversations/{conversationId}/messages")
	r.Post("/conversations/{conversationId}/messages", a.routerHandler(a.sendMessageHandler))

	log.Info().Msg("register route POST /conversations/{conversationId}/read")
	r.Post("/conversations/{conversationId}/read", a.routerHandler(a.markConversationReadHandler))
}

func (a *API) conversationIDFromRequest(r *Request) (primitive.ObjectID, error) {
	idParam := r.Context.URLParam("conversationId")
	if idParam == nil {
		return primitive.NilObjectID, fmt.Errorf("missing conversationId")
	}
	return primitive.ObjectIDFromHex(idParam[0])
}

// openConversationHandler returns the conversation between the authenticated
// user and another user, creating it when it does not exist yet. At most one
// conversation exists per user pair and booking.
func (a *API) openConversationHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}

	req := OpenConversationRequest{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	otherID, err := primitive.ObjectIDFromHex(req.WithUserID)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid withUserId"))
	}
	var bookingID *primitive.ObjectID
	if req.BookingID != "" {
		id, err := primitive.ObjectIDFromHex(req.BookingID)
		if err != nil {
			return nil, ErrInvalidRequestBodyData.WithErr(fmt.Errorf("invalid bookingId"))
		}
		bookingID = &id
	}

	conversation, err := a.database.ConversationService.Open(r.Context.Request.Context(), userID, otherID, bookingID)
	if err != nil {
		return nil, fromDBError(err)
	}
	return conversation, nil
}

// getConversationsHandler lists the authenticated user's conversations, most
// recently active first.
func (a *API) getConversationsHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	page, err := r.Context.GetPage()
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	conversations, total, err := a.database.ConversationService.GetUserConversations(
		r.Context.Request.Context(), userID, page)
	if err != nil {
		return nil, fromDBError(err)
	}
	return &ConversationListResponse{
		Conversations: conversations,
		Pagination:    CalculatePagination(page, db.DefaultPageSize, total),
	}, nil
}

// getMessagesHandler lists the messages of a conversation the authenticated
// user takes part in, oldest first.
func (a *API) getMessagesHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	conversationID, err := a.conversationIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	page, err := r.Context.GetPage()
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	messages, total, err := a.database.ConversationService.GetMessages(
		r.Context.Request.Context(), conversationID, userID, page)
	if err != nil {
		return nil, fromDBError(err)
	}
	return &MessageListResponse{
		Messages:   messages,
		Pagination: CalculatePagination(page, db.DefaultPageSize, total),
	}, nil
}

// sendMessageHandler appends a message to a conversation the authenticated
// user takes part in.
func (a *API) sendMessageHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	conversationID, err := a.conversationIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	req := SendMessageRequest{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	message, err := a.database.ConversationService.SendMessage(
		r.Context.Request.Context(), conversationID, userID, req.Content)
	if err != nil {
		return nil, fromDBError(err)
	}
	return message, nil
}

// markConversationReadHandler marks all messages sent by the counterparty as
// read. Marking twice is a no-op.
func (a *API) markConversationReadHandler(r *Request) (interface{}, error) {
	userID, err := primitive.ObjectIDFromHex(r.UserID)
	if err != nil {
		return nil, ErrUnauthorized.WithErr(fmt.Errorf("invalid user ID"))
	}
	conversationID, err := a.conversationIDFromRequest(r)
	if err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}

	marked, err := a.database.ConversationService.MarkRead(r.Context.Request.Context(), conversationID, userID)
	if err != nil {
		return nil, fromDBError(err)
	}
	return &MarkReadResponse{MarkedRead: marked}, nil
}

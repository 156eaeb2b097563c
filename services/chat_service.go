package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ridehub/ridehub/database"
	"github.com/ridehub/ridehub/errs"
	"github.com/ridehub/ridehub/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// NewConversation asks Send to find or create the conversation between
// the sender and the receiver.
const NewConversation = "new"

// Deliverer pushes a persisted message to live connections.
type Deliverer interface {
	Deliver(ctx context.Context, msg models.Message, members []string) int
}

type ChatStore interface {
	database.UserStore
	database.ConversationStore
	database.MessageStore
}

// SendInput is a message send coming from the socket or from REST.
type SendInput struct {
	SenderID       string `validate:"required"`
	ConversationID string `validate:"required"`
	ReceiverID     string `validate:"required_if=ConversationID new"`
	Body           string `validate:"required"`
}

// SendResult reports the stored message and how many live frames were queued.
type SendResult struct {
	Message      models.Message
	Conversation models.Conversation
	Delivered    int
}

type ChatService struct {
	store     ChatStore
	deliverer Deliverer
	validate  *validator.Validate
	pairs     *keyedMutex
	log       *zap.Logger
}

func NewChatService(store ChatStore, deliverer Deliverer, log *zap.Logger) *ChatService {
	return &ChatService{
		store:     store,
		deliverer: deliverer,
		validate:  validator.New(),
		pairs:     newKeyedMutex(),
		log:       log,
	}
}

// Send validates, resolves the conversation, persists the message and then
// routes it. The send succeeds once the message is stored whatever
// happens during delivery.
func (s *ChatService) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	in.Body = strings.TrimSpace(in.Body)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
	}

	var (
		conversation *models.Conversation
		err          error
	)
	if in.ConversationID == NewConversation {
		conversation, _, err = s.FindOrCreatePair(ctx, in.SenderID, in.ReceiverID)
	} else {
		conversation, err = s.store.GetConversation(ctx, in.ConversationID)
	}
	if err != nil {
		return nil, asPersistence(err)
	}
	if !conversation.HasMember(in.SenderID) {
		return nil, fmt.Errorf("sender is not a member of conversation %s: %w", conversation.ID, errs.ErrForbidden)
	}

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		SenderID:       in.SenderID,
		Body:           in.Body,
		Read:           false,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, &msg); err != nil {
		s.log.Error("failed to persist message",
			zap.String("conversation_id", conversation.ID),
			zap.String("sender_id", in.SenderID),
			zap.Error(err))
		return nil, asPersistence(err)
	}

	delivered := 0
	if s.deliverer != nil {
		delivered = s.deliverer.Deliver(ctx, msg, conversation.Members)
	}
	s.log.Debug("message sent",
		zap.String("message_id", msg.ID),
		zap.String("conversation_id", conversation.ID),
		zap.Int("delivered", delivered))

	return &SendResult{Message: msg, Conversation: *conversation, Delivered: delivered}, nil
}

// FindOrCreatePair returns the single conversation of users a and b,
// creating it when missing. created reports whether this call created it.
// Callers in this process are serialized per pair; the unique pair key
// resolves races with other processes.
func (s *ChatService) FindOrCreatePair(ctx context.Context, a, b string) (conv *models.Conversation, created bool, err error) {
	if a == "" || b == "" {
		return nil, false, fmt.Errorf("%w: both members are required", errs.ErrValidation)
	}
	if a == b {
		return nil, false, fmt.Errorf("%w: cannot open a conversation with yourself", errs.ErrValidation)
	}
	key := models.PairKey(a, b)

	unlock := s.pairs.Lock(key)
	defer unlock()

	conv, err = s.store.FindConversationByPair(ctx, key)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, false, asPersistence(err)
	}

	n, err := s.store.CountUsers(ctx, []string{a, b})
	if err != nil {
		return nil, false, asPersistence(err)
	}
	if n != 2 {
		return nil, false, fmt.Errorf("conversation member does not exist: %w", errs.ErrNotFound)
	}

	conv = &models.Conversation{
		ID:        uuid.NewString(),
		Members:   []string{a, b},
		PairKey:   &key,
		CreatedAt: time.Now().UTC(),
	}
	err = s.store.CreateConversation(ctx, conv)
	switch {
	case err == nil:
		s.log.Info("conversation created", zap.String("conversation_id", conv.ID), zap.String("pair", key))
		return conv, true, nil
	case errors.Is(err, errs.ErrAlreadyExists):
		// another process won the race
		winner, err := s.store.FindConversationByPair(ctx, key)
		if err != nil {
			return nil, false, asPersistence(err)
		}
		return winner, false, nil
	default:
		return nil, false, asPersistence(err)
	}
}

// CreateConversation opens a conversation for members. callerID must be
// one of them. Two members go through FindOrCreatePair; larger groups are
// always created.
func (s *ChatService) CreateConversation(ctx context.Context, callerID string, members []string) (*models.Conversation, bool, error) {
	members = lo.Uniq(lo.Filter(members, func(m string, _ int) bool { return strings.TrimSpace(m) != "" }))
	if len(members) < 2 {
		return nil, false, fmt.Errorf("%w: a conversation needs at least two members", errs.ErrValidation)
	}
	if !lo.Contains(members, callerID) {
		return nil, false, fmt.Errorf("caller must be a member: %w", errs.ErrForbidden)
	}
	if len(members) == 2 {
		return s.FindOrCreatePair(ctx, members[0], members[1])
	}

	n, err := s.store.CountUsers(ctx, members)
	if err != nil {
		return nil, false, asPersistence(err)
	}
	if n != len(members) {
		return nil, false, fmt.Errorf("conversation member does not exist: %w", errs.ErrNotFound)
	}

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		Members:   members,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		return nil, false, asPersistence(err)
	}
	s.log.Info("group conversation created", zap.String("conversation_id", conv.ID), zap.Int("members", len(members)))
	return conv, true, nil
}

// History returns the messages of a conversation oldest first and marks
// those addressed to readerID as read. The returned slice is the state
// before marking.
func (s *ChatService) History(ctx context.Context, conversationID, readerID string) ([]models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, asPersistence(err)
	}
	if !conv.HasMember(readerID) {
		return nil, fmt.Errorf("reader is not a member of conversation %s: %w", conversationID, errs.ErrForbidden)
	}

	messages, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, asPersistence(err)
	}
	if messages == nil {
		messages = []models.Message{}
	}

	hasUnread := lo.ContainsBy(messages, func(m models.Message) bool {
		return !m.Read && m.SenderID != readerID
	})
	if hasUnread {
		n, err := s.store.MarkRead(ctx, conversationID, readerID)
		if err != nil {
			return nil, asPersistence(err)
		}
		s.log.Debug("messages marked read",
			zap.String("conversation_id", conversationID),
			zap.String("reader_id", readerID),
			zap.Int64("count", n))
	}
	return messages, nil
}

// Conversations lists the conversations userID belongs to.
func (s *ChatService) Conversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	convs, err := s.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, asPersistence(err)
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	return convs, nil
}

// asPersistence keeps domain sentinels and folds everything else into
// errs.ErrPersistence.
func asPersistence(err error) error {
	switch {
	case errors.Is(err, errs.ErrNotFound),
		errors.Is(err, errs.ErrPersistence),
		errors.Is(err, errs.ErrValidation),
		errors.Is(err, errs.ErrForbidden),
		errors.Is(err, errs.ErrAlreadyExists):
		return err
	default:
		return fmt.Errorf("%w: %v", errs.ErrPersistence, err)
	}
}

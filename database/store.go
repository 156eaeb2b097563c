// Package database is the persistence gateway for users, conversations and messages.
// Three drivers implement Store: Postgres (gorm), MongoDB and an in-process memory store.
package database

import (
	"context"
	"fmt"
	"time"

	config "github.com/ridehub/ridehub/configs"
	"github.com/ridehub/ridehub/models"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	// UpdateUser saves the mutable profile fields of an existing user.
	UpdateUser(ctx context.Context, user *models.User) error
	// GetUserByLogin matches either the email or the username.
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	ListUsers(ctx context.Context, excludeID string) ([]models.User, error)
	CountUsers(ctx context.Context, ids []string) (int, error)
}

type ConversationStore interface {
	// CreateConversation returns errs.ErrAlreadyExists when PairKey is taken.
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	FindConversationByPair(ctx context.Context, pairKey string) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error)
}

type MessageStore interface {
	// CreateMessage returns errs.ErrNotFound when the conversation does not exist.
	CreateMessage(ctx context.Context, message *models.Message) error
	// ListMessages returns the conversation history, oldest first.
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	// MarkRead flips unread messages not sent by readerID and returns how many changed.
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
	// ListUnreadBetween returns unread messages created in [from, to).
	ListUnreadBetween(ctx context.Context, from, to time.Time) ([]models.Message, error)
}

type Store interface {
	UserStore
	ConversationStore
	MessageStore
	Close(ctx context.Context) error
}

// Open connects the driver selected by DB_DRIVER.
func Open(ctx context.Context, cfg *config.Settings, log *zap.Logger) (Store, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return ConnectPostgres(ctx, cfg.DatabaseURL, cfg.StoreTimeout, log)
	case config.DriverMongo:
		return ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.StoreTimeout, log)
	case config.DriverMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// ensureTimeout bounds a store call when the caller did not set a deadline.
func ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

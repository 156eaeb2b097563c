package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/ridehub/ridehub/errs"
	"github.com/ridehub/ridehub/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgInvalidTextRepr     = "22P02"
)

// PostgresStore implements Store on PostgreSQL through gorm.
type PostgresStore struct {
	db      *gorm.DB
	timeout time.Duration
	log     *zap.Logger
}

// ConnectPostgres opens the pool and applies pending migrations.
func ConnectPostgres(ctx context.Context, dsn string, timeout time.Duration, log *zap.Logger) (*PostgresStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:            false,
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{db: db, timeout: timeout, log: log}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}

	log.Info("database connected", zap.String("driver", "postgres"))
	return s, nil
}

// Migrate runs the embedded goose migrations.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{s.log.Sugar()})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	return s.wrap("create user", s.db.WithContext(ctx).Create(user).Error)
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, s.wrap("get user", err)
	}
	return &user, nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	res := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]interface{}{
			"full_name":  user.FullName,
			"bio":        user.Bio,
			"location":   user.Location,
			"photo":      user.Photo,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return s.wrap("update user", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update user: %w", errs.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? OR username = ?", login, login).
		First(&user).Error
	if err != nil {
		return nil, s.wrap("get user by login", err)
	}
	return &user, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var users []models.User
	q := s.db.WithContext(ctx).Order("full_name asc")
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, s.wrap("list users", err)
	}
	return users, nil
}

func (s *PostgresStore) CountUsers(ctx context.Context, ids []string) (int, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id IN ?", lo.Uniq(ids)).
		Count(&n).Error
	if err != nil {
		return 0, s.wrap("count users", err)
	}
	return int(n), nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	conversation.Participants = lo.Map(conversation.Members, func(userID string, _ int) models.ConversationParticipant {
		return models.ConversationParticipant{ConversationID: conversation.ID, UserID: userID}
	})
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(conversation).Error
	})
	conversation.Participants = nil
	return s.wrap("create conversation", err)
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Participants").
		First(&conversation, "id = ?", id).Error
	if err != nil {
		return nil, s.wrap("get conversation", err)
	}
	withMembers(&conversation)
	return &conversation, nil
}

func (s *PostgresStore) FindConversationByPair(ctx context.Context, pairKey string) (*models.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Participants").
		First(&conversation, "pair_key = ?", pairKey).Error
	if err != nil {
		return nil, s.wrap("find conversation by pair", err)
	}
	withMembers(&conversation)
	return &conversation, nil
}

func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	db := s.db.WithContext(ctx)
	var conversations []models.Conversation
	err := db.
		Preload("Participants").
		Where("id IN (?)", db.Model(&models.ConversationParticipant{}).Select("conversation_id").Where("user_id = ?", userID)).
		Order("created_at desc").
		Find(&conversations).Error
	if err != nil {
		return nil, s.wrap("list conversations", err)
	}
	for i := range conversations {
		withMembers(&conversations[i])
	}
	return conversations, nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, message *models.Message) error {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	return s.wrap("create message", s.db.WithContext(ctx).Create(message).Error)
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc").
		Find(&messages).Error
	if err != nil {
		return nil, s.wrap("list messages", err)
	}
	return messages, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	res := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ? AND read = ? AND sender_id <> ?", conversationID, false, readerID).
		Update("read", true)
	if res.Error != nil {
		return 0, s.wrap("mark read", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *PostgresStore) ListUnreadBetween(ctx context.Context, from, to time.Time) ([]models.Message, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("read = ? AND created_at >= ? AND created_at < ?", false, from, to).
		Order("created_at asc").
		Find(&messages).Error
	if err != nil {
		return nil, s.wrap("list unread", err)
	}
	return messages, nil
}

// wrap maps driver errors onto the errs sentinels.
func (s *PostgresStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var pg *pgconn.PgError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	case errors.As(err, &pg) && pg.Code == pgUniqueViolation:
		return fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
	case errors.As(err, &pg) && (pg.Code == pgForeignKeyViolation || pg.Code == pgInvalidTextRepr):
		// a malformed uuid or a dangling reference both mean the target does not exist
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	default:
		s.log.Error("postgres call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w: %v", op, errs.ErrPersistence, err)
	}
}

func withMembers(c *models.Conversation) {
	c.Members = lo.Map(c.Participants, func(p models.ConversationParticipant, _ int) string {
		return p.UserID
	})
	c.Participants = nil
}

type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) { l.log.Fatalf(format, v...) }
func (l gooseLogger) Printf(format string, v ...interface{}) { l.log.Infof(format, v...) }

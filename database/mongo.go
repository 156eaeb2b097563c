package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ridehub/ridehub/errs"
	"github.com/ridehub/ridehub/models"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	usersCollection         = "users"
	conversationsCollection = "conversations"
	messagesCollection      = "messages"
)

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client        *mongo.Client
	users         *mongo.Collection
	conversations *mongo.Collection
	messages      *mongo.Collection
	timeout       time.Duration
	log           *zap.Logger
}

// ConnectMongo connects, pings the primary and makes sure the indexes exist.
func ConnectMongo(ctx context.Context, uri, database string, timeout time.Duration, log *zap.Logger) (*MongoStore, error) {
	cctx, cancel := ensureTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(cctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(cctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:        client,
		users:         db.Collection(usersCollection),
		conversations: db.Collection(conversationsCollection),
		messages:      db.Collection(messagesCollection),
		timeout:       timeout,
		log:           log,
	}
	if err := s.ensureIndexes(cctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	log.Info("database connected", zap.String("driver", "mongo"), zap.String("database", database))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.users: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		s.conversations: {
			// sparse so that group conversations without a pair key do not collide
			{Keys: bson.D{{Key: "pair_key", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "members", Value: 1}}},
		},
		s.messages: {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "read", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for coll, idx := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	_, err := s.users.InsertOne(ctx, user)
	return s.wrap("create user", err)
}

func (s *MongoStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var user models.User
	if err := s.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, s.wrap("get user", err)
	}
	return &user, nil
}

func (s *MongoStore) UpdateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"full_name":  user.FullName,
		"bio":        user.Bio,
		"location":   user.Location,
		"photo":      user.Photo,
		"updated_at": time.Now().UTC(),
	}}
	res, err := s.users.UpdateByID(ctx, user.ID, update)
	if err != nil {
		return s.wrap("update user", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update user: %w", errs.ErrNotFound)
	}
	return nil
}

func (s *MongoStore) GetUserByLogin(ctx context.Context, login string) (*models.User, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"$or": bson.A{bson.M{"email": login}, bson.M{"username": login}}}
	var user models.User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		return nil, s.wrap("get user by login", err)
	}
	return &user, nil
}

func (s *MongoStore) ListUsers(ctx context.Context, excludeID string) ([]models.User, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{}
	if excludeID != "" {
		filter["_id"] = bson.M{"$ne": excludeID}
	}
	opts := options.Find().SetSort(bson.D{{Key: "full_name", Value: 1}})
	users, err := findAll[models.User](ctx, s.users, filter, opts)
	return users, s.wrap("list users", err)
}

func (s *MongoStore) CountUsers(ctx context.Context, ids []string) (int, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": bson.M{"$in": lo.Uniq(ids)}})
	if err != nil {
		return 0, s.wrap("count users", err)
	}
	return int(n), nil
}

func (s *MongoStore) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now().UTC()
	}
	_, err := s.conversations.InsertOne(ctx, conversation)
	return s.wrap("create conversation", err)
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var conversation models.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&conversation); err != nil {
		return nil, s.wrap("get conversation", err)
	}
	return &conversation, nil
}

func (s *MongoStore) FindConversationByPair(ctx context.Context, pairKey string) (*models.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	var conversation models.Conversation
	if err := s.conversations.FindOne(ctx, bson.M{"pair_key": pairKey}).Decode(&conversation); err != nil {
		return nil, s.wrap("find conversation by pair", err)
	}
	return &conversation, nil
}

func (s *MongoStore) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	conversations, err := findAll[models.Conversation](ctx, s.conversations, bson.M{"members": userID}, opts)
	return conversations, s.wrap("list conversations", err)
}

func (s *MongoStore) CreateMessage(ctx context.Context, message *models.Message) error {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.conversations.CountDocuments(ctx, bson.M{"_id": message.ConversationID}, options.Count().SetLimit(1))
	if err != nil {
		return s.wrap("create message", err)
	}
	if n == 0 {
		return fmt.Errorf("create message: %w", errs.ErrNotFound)
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err = s.messages.InsertOne(ctx, message)
	return s.wrap("create message", err)
}

func (s *MongoStore) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	messages, err := findAll[models.Message](ctx, s.messages, bson.M{"conversation_id": conversationID}, opts)
	return messages, s.wrap("list messages", err)
}

func (s *MongoStore) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{
		"conversation_id": conversationID,
		"read":            false,
		"sender_id":       bson.M{"$ne": readerID},
	}
	res, err := s.messages.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, s.wrap("mark read", err)
	}
	return res.ModifiedCount, nil
}

func (s *MongoStore) ListUnreadBetween(ctx context.Context, from, to time.Time) ([]models.Message, error) {
	ctx, cancel := ensureTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{
		"read":       false,
		"created_at": bson.M{"$gte": from, "$lt": to},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	messages, err := findAll[models.Message](ctx, s.messages, filter, opts)
	return messages, s.wrap("list unread", err)
}

func (s *MongoStore) wrap(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", op, errs.ErrAlreadyExists)
	default:
		s.log.Error("mongo call failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w: %v", op, errs.ErrPersistence, err)
	}
}

// findAll decodes every document matching filter.
func findAll[T any](ctx context.Context, coll *mongo.Collection, filter bson.M, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []T
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}
	return results, nil
}

package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ridehub/ridehub/errs"
	"github.com/ridehub/ridehub/models"
	"github.com/samber/lo"
)

// MemoryStore keeps everything in process memory. It backs local development and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]models.User
	conversations map[string]models.Conversation
	pairs         map[string]string
	messages      map[string][]models.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]models.User),
		conversations: make(map[string]models.Conversation),
		pairs:         make(map[string]string),
		messages:      make(map[string][]models.Message),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return errs.ErrAlreadyExists
		}
	}
	if _, ok := s.users[user.ID]; ok {
		return errs.ErrAlreadyExists
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	s.users[user.ID] = *user
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[user.ID]
	if !ok {
		return errs.ErrNotFound
	}
	cur.FullName, cur.Bio, cur.Location, cur.Photo = user.FullName, user.Bio, user.Location, user.Photo
	cur.UpdatedAt = time.Now().UTC()
	s.users[user.ID] = cur
	*user = cur
	return nil
}

func (s *MemoryStore) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == login || u.Username == login {
			return &u, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *MemoryStore) ListUsers(_ context.Context, excludeID string) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := lo.Filter(lo.Values(s.users), func(u models.User, _ int) bool {
		return u.ID != excludeID
	})
	sort.Slice(users, func(i, j int) bool { return users[i].FullName < users[j].FullName })
	return users, nil
}

func (s *MemoryStore) CountUsers(_ context.Context, ids []string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return lo.CountBy(lo.Uniq(ids), func(id string) bool {
		_, ok := s.users[id]
		return ok
	}), nil
}

func (s *MemoryStore) CreateConversation(_ context.Context, conversation *models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conversation.PairKey != nil {
		if _, taken := s.pairs[*conversation.PairKey]; taken {
			return errs.ErrAlreadyExists
		}
		s.pairs[*conversation.PairKey] = conversation.ID
	}
	if conversation.CreatedAt.IsZero() {
		conversation.CreatedAt = time.Now().UTC()
	}
	s.conversations[conversation.ID] = cloneConversation(*conversation)
	return nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c = cloneConversation(c)
	return &c, nil
}

func (s *MemoryStore) FindConversationByPair(ctx context.Context, pairKey string) (*models.Conversation, error) {
	s.mu.RLock()
	id, ok := s.pairs[pairKey]
	s.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return s.GetConversation(ctx, id)
}

func (s *MemoryStore) ListConversationsForUser(_ context.Context, userID string) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Conversation
	for _, c := range s.conversations {
		if c.HasMember(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[message.ConversationID]; !ok {
		return errs.ErrNotFound
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], *message)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]models.Message(nil), s.messages[conversationID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, conversationID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	msgs := s.messages[conversationID]
	for i := range msgs {
		if !msgs[i].Read && msgs[i].SenderID != readerID {
			msgs[i].Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListUnreadBetween(_ context.Context, from, to time.Time) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Message
	for _, msgs := range s.messages {
		for _, m := range msgs {
			if !m.Read && !m.CreatedAt.Before(from) && m.CreatedAt.Before(to) {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func cloneConversation(c models.Conversation) models.Conversation {
	c.Members = append([]string(nil), c.Members...)
	if c.PairKey != nil {
		key := *c.PairKey
		c.PairKey = &key
	}
	return c
}

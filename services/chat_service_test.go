package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/ridehub/ridehub/database"
	"github.com/ridehub/ridehub/errs"
	"github.com/ridehub/ridehub/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDeliverer struct {
	mu    sync.Mutex
	calls []delivery
}

type delivery struct {
	msg     models.Message
	members []string
}

func (d *recordingDeliverer) Deliver(_ context.Context, msg models.Message, members []string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, delivery{msg: msg, members: members})
	return len(members)
}

// flakyStore fails selected writes on top of the memory store.
type flakyStore struct {
	*database.MemoryStore
	failMessages      bool
	failConversations bool
	conversationCalls atomic.Int32
}

func (f *flakyStore) CreateMessage(ctx context.Context, m *models.Message) error {
	if f.failMessages {
		return errors.New("connection reset by peer")
	}
	return f.MemoryStore.CreateMessage(ctx, m)
}

func (f *flakyStore) CreateConversation(ctx context.Context, c *models.Conversation) error {
	f.conversationCalls.Add(1)
	if f.failConversations {
		return errors.New("disk full")
	}
	return f.MemoryStore.CreateConversation(ctx, c)
}

func seedUsers(t *testing.T, store database.UserStore, n int) []string {
	t.Helper()
	ids := make([]string, n)
	for i := range ids {
		id := uuid.NewString()
		require.NoError(t, store.CreateUser(context.Background(), &models.User{
			ID:       id,
			Username: "user" + id[:8],
			FullName: "User " + id[:4],
			Email:    id[:8] + "@example.com",
		}))
		ids[i] = id
	}
	return ids
}

func newChat(t *testing.T) (*ChatService, *flakyStore, *recordingDeliverer) {
	t.Helper()
	store := &flakyStore{MemoryStore: database.NewMemoryStore()}
	d := &recordingDeliverer{}
	return NewChatService(store, d, zap.NewNop()), store, d
}

func TestChatService_SendToNewCreatesConversationAndDelivers(t *testing.T) {
	req := require.New(t)
	svc, store, d := newChat(t)
	ids := seedUsers(t, store, 2)
	ctx := context.Background()

	res, err := svc.Send(ctx, SendInput{SenderID: ids[0], ConversationID: NewConversation, ReceiverID: ids[1], Body: "  hello  "})
	req.NoError(err)
	req.Equal("hello", res.Message.Body)
	req.Equal(ids[0], res.Message.SenderID)
	req.False(res.Message.Read)
	req.ElementsMatch(ids, res.Conversation.Members)
	req.Equal(2, res.Delivered)

	req.Len(d.calls, 1)
	req.Equal(res.Message.ID, d.calls[0].msg.ID)
	req.ElementsMatch(ids, d.calls[0].members)

	again, err := svc.Send(ctx, SendInput{SenderID: ids[1], ConversationID: NewConversation, ReceiverID: ids[0], Body: "hi back"})
	req.NoError(err)
	req.Equal(res.Conversation.ID, again.Conversation.ID)

	msgs, err := store.ListMessages(ctx, res.Conversation.ID)
	req.NoError(err)
	req.Len(msgs, 2)
}

func TestChatService_SendValidation(t *testing.T) {
	svc, store, d := newChat(t)
	ids := seedUsers(t, store, 2)

	cases := map[string]SendInput{
		"missing sender":        {ConversationID: NewConversation, ReceiverID: ids[1], Body: "x"},
		"missing body":          {SenderID: ids[0], ConversationID: NewConversation, ReceiverID: ids[1]},
		"blank body":            {SenderID: ids[0], ConversationID: NewConversation, ReceiverID: ids[1], Body: "   "},
		"missing conversation":  {SenderID: ids[0], Body: "x"},
		"new without receiver":  {SenderID: ids[0], ConversationID: NewConversation, Body: "x"},
		"new to self":           {SenderID: ids[0], ConversationID: NewConversation, ReceiverID: ids[0], Body: "x"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), in)
			require.ErrorIs(t, err, errs.ErrValidation)
		})
	}
	require.Empty(t, d.calls)
}

func TestChatService_SendRejectsNonMember(t *testing.T) {
	req := require.New(t)
	svc, store, d := newChat(t)
	ids := seedUsers(t, store, 3)
	ctx := context.Background()

	conv, _, err := svc.FindOrCreatePair(ctx, ids[0], ids[1])
	req.NoError(err)

	_, err = svc.Send(ctx, SendInput{SenderID: ids[2], ConversationID: conv.ID, Body: "intruder"})
	req.ErrorIs(err, errs.ErrForbidden)

	_, err = svc.Send(ctx, SendInput{SenderID: ids[0], ConversationID: uuid.NewString(), Body: "lost"})
	req.ErrorIs(err, errs.ErrNotFound)
	req.Empty(d.calls)
}

func TestChatService_PersistenceFailureSkipsDelivery(t *testing.T) {
	req := require.New(t)
	svc, store, d := newChat(t)
	ids := seedUsers(t, store, 2)
	store.failMessages = true

	_, err := svc.Send(context.Background(), SendInput{SenderID: ids[0], ConversationID: NewConversation, ReceiverID: ids[1], Body: "x"})
	req.ErrorIs(err, errs.ErrPersistence)
	req.Empty(d.calls)
}

func TestChatService_FindOrCreatePairIsIdempotent(t *testing.T) {
	req := require.New(t)
	svc, store, _ := newChat(t)
	ids := seedUsers(t, store, 2)
	ctx := context.Background()

	first, created, err := svc.FindOrCreatePair(ctx, ids[0], ids[1])
	req.NoError(err)
	req.True(created)

	second, created, err := svc.FindOrCreatePair(ctx, ids[1], ids[0])
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, second.ID)
}

func TestChatService_FindOrCreatePairConcurrent(t *testing.T) {
	req := require.New(t)
	svc, store, _ := newChat(t)
	ids := seedUsers(t, store, 2)
	ctx := context.Background()

	const workers = 64
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		seen    = make(map[string]struct{})
		created atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := ids[0], ids[1]
			if i%2 == 1 {
				a, b = b, a
			}
			conv, isNew, err := svc.FindOrCreatePair(ctx, a, b)
			if err != nil {
				t.Error(err)
				return
			}
			if isNew {
				created.Add(1)
			}
			mu.Lock()
			seen[conv.ID] = struct{}{}
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	req.Len(seen, 1)
	req.EqualValues(1, created.Load())
	req.EqualValues(1, store.conversationCalls.Load())
	req.Zero(svc.pairs.size())

	list, err := store.ListConversationsForUser(ctx, ids[0])
	req.NoError(err)
	req.Len(list, 1)
}

func TestChatService_FindOrCreatePairRecoversFromLostRace(t *testing.T) {
	req := require.New(t)
	store := database.NewMemoryStore()
	ids := seedUsers(t, store, 2)
	ctx := context.Background()

	// a conversation written by another process between lookup and insert
	racer := &racingStore{MemoryStore: store, a: ids[0], b: ids[1]}
	svc := NewChatService(racer, nil, zap.NewNop())

	conv, created, err := svc.FindOrCreatePair(ctx, ids[0], ids[1])
	req.NoError(err)
	req.False(created)
	req.Equal(racer.winnerID, conv.ID)
}

type racingStore struct {
	*database.MemoryStore
	a, b     string
	winnerID string
}

func (r *racingStore) CreateConversation(ctx context.Context, c *models.Conversation) error {
	if r.winnerID == "" {
		key := models.PairKey(r.a, r.b)
		winner := &models.Conversation{ID: uuid.NewString(), Members: []string{r.a, r.b}, PairKey: &key}
		if err := r.MemoryStore.CreateConversation(ctx, winner); err != nil {
			return err
		}
		r.winnerID = winner.ID
	}
	return r.MemoryStore.CreateConversation(ctx, c)
}

func TestChatService_FindOrCreatePairUnknownUser(t *testing.T) {
	svc, store, _ := newChat(t)
	ids := seedUsers(t, store, 1)

	_, _, err := svc.FindOrCreatePair(context.Background(), ids[0], uuid.NewString())
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestChatService_CreateConversation(t *testing.T) {
	svc, store, _ := newChat(t)
	ids := seedUsers(t, store, 3)
	ctx := context.Background()

	t.Run("pair is find-or-create", func(t *testing.T) {
		req := require.New(t)
		first, created, err := svc.CreateConversation(ctx, ids[0], []string{ids[0], ids[1], ids[1]})
		req.NoError(err)
		req.True(created)
		second, created, err := svc.CreateConversation(ctx, ids[1], []string{ids[1], ids[0]})
		req.NoError(err)
		req.False(created)
		req.Equal(first.ID, second.ID)
	})

	t.Run("group is always created", func(t *testing.T) {
		req := require.New(t)
		g1, created, err := svc.CreateConversation(ctx, ids[0], ids)
		req.NoError(err)
		req.True(created)
		req.Nil(g1.PairKey)
		g2, _, err := svc.CreateConversation(ctx, ids[0], ids)
		req.NoError(err)
		req.NotEqual(g1.ID, g2.ID)
	})

	t.Run("caller must be a member", func(t *testing.T) {
		_, _, err := svc.CreateConversation(ctx, ids[2], []string{ids[0], ids[1]})
		require.ErrorIs(t, err, errs.ErrForbidden)
	})

	t.Run("needs two members", func(t *testing.T) {
		_, _, err := svc.CreateConversation(ctx, ids[0], []string{ids[0], ids[0], ""})
		require.ErrorIs(t, err, errs.ErrValidation)
	})

	t.Run("members must exist", func(t *testing.T) {
		_, _, err := svc.CreateConversation(ctx, ids[0], []string{ids[0], ids[1], uuid.NewString()})
		require.ErrorIs(t, err, errs.ErrNotFound)
	})
}

func TestChatService_CreateConversationPersistenceFailure(t *testing.T) {
	svc, store, _ := newChat(t)
	ids := seedUsers(t, store, 2)
	store.failConversations = true

	_, _, err := svc.CreateConversation(context.Background(), ids[0], ids)
	require.ErrorIs(t, err, errs.ErrPersistence)
}

func TestChatService_HistoryMarksAddressedMessagesRead(t *testing.T) {
	req := require.New(t)
	svc, store, _ := newChat(t)
	ids := seedUsers(t, store, 2)
	ctx := context.Background()
	u1, u2 := ids[0], ids[1]

	res, err := svc.Send(ctx, SendInput{SenderID: u1, ConversationID: NewConversation, ReceiverID: u2, Body: "first"})
	req.NoError(err)
	convID := res.Conversation.ID
	_, err = svc.Send(ctx, SendInput{SenderID: u2, ConversationID: convID, Body: "reply"})
	req.NoError(err)

	// the sender reading does not flip messages addressed to the other member
	_, err = svc.History(ctx, convID, u1)
	req.NoError(err)

	msgs, err := svc.History(ctx, convID, u2)
	req.NoError(err)
	req.Len(msgs, 2)
	req.Equal("first", msgs[0].Body)
	req.False(msgs[0].Read)

	msgs, err = svc.History(ctx, convID, u2)
	req.NoError(err)
	req.True(msgs[0].Read)
	req.True(msgs[1].Read)

	_, err = svc.History(ctx, convID, uuid.NewString())
	req.ErrorIs(err, errs.ErrForbidden)
}

func TestChatService_Conversations(t *testing.T) {
	req := require.New(t)
	svc, store, _ := newChat(t)
	ids := seedUsers(t, store, 3)
	ctx := context.Background()

	empty, err := svc.Conversations(ctx, ids[0])
	req.NoError(err)
	req.NotNil(empty)
	req.Empty(empty)

	_, _, err = svc.FindOrCreatePair(ctx, ids[0], ids[1])
	req.NoError(err)
	_, _, err = svc.FindOrCreatePair(ctx, ids[0], ids[2])
	req.NoError(err)

	list, err := svc.Conversations(ctx, ids[0])
	req.NoError(err)
	req.Len(list, 2)
	list, err = svc.Conversations(ctx, ids[1])
	req.NoError(err)
	req.Len(list, 1)
}

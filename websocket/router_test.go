package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ridehub/ridehub/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingSink struct {
	mu     sync.Mutex
	frames map[string][]Envelope
	refuse map[string]bool
}

func newRecordingSink() *recordingSink {
	return &recordingSink{frames: make(map[string][]Envelope), refuse: make(map[string]bool)}
}

func (s *recordingSink) Send(connID string, env Envelope) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refuse[connID] {
		return false
	}
	s.frames[connID] = append(s.frames[connID], env)
	return true
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.frames {
		n += len(f)
	}
	return n
}

func testMessage() models.Message {
	return models.Message{
		ID:             "m1",
		ConversationID: "k1",
		SenderID:       "a",
		Body:           "hello",
		CreatedAt:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRouter_DeliversToEveryLiveConnectionOfMembers(t *testing.T) {
	req := require.New(t)
	p := NewPresence()
	p.Register("a", "a1")
	p.Register("a", "a2")
	p.Register("b", "b1")
	p.Register("c", "c1")
	sink := newRecordingSink()
	r := NewRouter(p, sink, zap.NewNop())

	profile := models.Profile{ID: "a", FullName: "Alice", Email: "a@example.com"}
	n := r.Route(testMessage(), []string{"a", "b"}, profile)

	req.Equal(3, n)
	req.Len(sink.frames["a1"], 1)
	req.Len(sink.frames["a2"], 1)
	req.Len(sink.frames["b1"], 1)
	req.Empty(sink.frames["c1"])

	env := sink.frames["b1"][0]
	req.Equal(EventDeliver, env.Event)
	var got DeliverPayload
	req.NoError(json.Unmarshal(env.Data, &got))
	req.Equal("a", got.SenderID)
	req.Equal("k1", got.ConversationID)
	req.Equal("hello", got.Body)
	req.Equal(profile, got.SenderProfile)
}

func TestRouter_NoLiveMembersEmitsNothing(t *testing.T) {
	p := NewPresence()
	p.Register("c", "c1")
	sink := newRecordingSink()
	r := NewRouter(p, sink, zap.NewNop())

	n := r.Route(testMessage(), []string{"a", "b"}, models.Profile{ID: "a"})
	require.Zero(t, n)
	require.Zero(t, sink.count())
}

func TestRouter_OfflineMemberDoesNotBlockOthers(t *testing.T) {
	p := NewPresence()
	p.Register("a", "a1")
	sink := newRecordingSink()
	r := NewRouter(p, sink, zap.NewNop())

	n := r.Route(testMessage(), []string{"b", "a"}, models.Profile{ID: "a"})
	require.Equal(t, 1, n)
	require.Len(t, sink.frames["a1"], 1)
}

func TestRouter_RefusedConnectionDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	p := NewPresence()
	p.Register("a", "a1")
	p.Register("b", "b1")
	p.Register("b", "b2")
	sink := newRecordingSink()
	sink.refuse["b1"] = true
	r := NewRouter(p, sink, zap.NewNop())

	n := r.Route(testMessage(), []string{"a", "b"}, models.Profile{ID: "a"})
	req.Equal(2, n)
	req.Len(sink.frames["a1"], 1)
	req.Len(sink.frames["b2"], 1)
}

func TestRouter_DuplicateMembersDeliverOnce(t *testing.T) {
	p := NewPresence()
	p.Register("b", "b1")
	sink := newRecordingSink()
	r := NewRouter(p, sink, zap.NewNop())

	n := r.Route(testMessage(), []string{"b", "b", "a"}, models.Profile{ID: "a"})
	require.Equal(t, 1, n)
	require.Len(t, sink.frames["b1"], 1)
}

package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/ridehub/ridehub/models"
	"go.uber.org/zap"
)

// ErrHubStopped is returned when a command arrives after Run returned.
var ErrHubStopped = errors.New("hub stopped")

// ProfileSource resolves the sender profile attached to deliver events.
type ProfileSource interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type joinCmd struct {
	client *Client
	userID string
	reply  chan bool
}

type deliverCmd struct {
	msg     models.Message
	members []string
	profile models.Profile
	reply   chan int
}

type HubStats struct {
	PresenceStats
	Clients int `json:"clients"`
}

// Hub owns presence mutation and fan-out. Every command is applied by the
// Run goroutine one at a time.
type Hub struct {
	presence *Presence
	router   *Router
	profiles ProfileSource
	log      *zap.Logger

	clientsMu sync.RWMutex
	clients   map[string]*Client

	attach     chan *Client
	detach     chan *Client
	joins      chan joinCmd
	deliveries chan deliverCmd
	stopped    chan struct{}
}

func NewHub(profiles ProfileSource, log *zap.Logger) *Hub {
	h := &Hub{
		presence:   NewPresence(),
		profiles:   profiles,
		log:        log,
		clients:    make(map[string]*Client),
		attach:     make(chan *Client),
		detach:     make(chan *Client),
		joins:      make(chan joinCmd),
		deliveries: make(chan deliverCmd),
		stopped:    make(chan struct{}),
	}
	h.router = NewRouter(h.presence, h, log)
	return h
}

// Run applies hub commands until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	h.log.Info("hub started")

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			h.log.Info("hub stopped")
			return

		case c := <-h.attach:
			h.clientsMu.Lock()
			h.clients[c.ID] = c
			h.clientsMu.Unlock()
			h.log.Debug("client attached", zap.String("conn_id", c.ID), zap.String("user_id", c.UserID()))

		case c := <-h.detach:
			h.clientsMu.Lock()
			delete(h.clients, c.ID)
			h.clientsMu.Unlock()
			c.Close()
			if h.presence.Unregister(c.ID) {
				h.broadcastPresence()
			}
			h.log.Debug("client detached", zap.String("conn_id", c.ID), zap.String("user_id", c.UserID()))

		case cmd := <-h.joins:
			changed := false
			if h.isAttached(cmd.client.ID) {
				changed = h.presence.Register(cmd.userID, cmd.client.ID)
				cmd.client.advance(StateJoined)
				if changed {
					h.broadcastPresence()
				}
			}
			cmd.reply <- changed

		case cmd := <-h.deliveries:
			cmd.reply <- h.router.Route(cmd.msg, cmd.members, cmd.profile)
		}
	}
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for id, c := range h.clients {
		c.Close()
		h.presence.Unregister(id)
		delete(h.clients, id)
	}
}

func (h *Hub) isAttached(connID string) bool {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	_, ok := h.clients[connID]
	return ok
}

func (h *Hub) broadcastPresence() {
	env, err := NewEnvelope(EventPresence, PresencePayload{ActiveUsers: h.presence.ActiveUsers()})
	if err != nil {
		h.log.Error("failed to encode presence event", zap.Error(err))
		return
	}
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, c := range h.clients {
		if !c.Enqueue(env) {
			h.log.Warn("presence dropped", zap.String("conn_id", c.ID))
		}
	}
}

// Send implements Sink over the attached clients.
func (h *Hub) Send(connID string, env Envelope) bool {
	h.clientsMu.RLock()
	c, ok := h.clients[connID]
	h.clientsMu.RUnlock()
	if !ok {
		return false
	}
	return c.Enqueue(env)
}

// Attach makes c addressable by the hub. Presence is only recorded on Join.
func (h *Hub) Attach(c *Client) error {
	select {
	case h.attach <- c:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// Detach removes c and its presence entries and closes it.
func (h *Hub) Detach(c *Client) {
	select {
	case h.detach <- c:
	case <-h.stopped:
		c.Close()
	}
}

// Join registers c as a live connection of userID. It returns once the
// registration has been applied and reports whether presence changed.
func (h *Hub) Join(ctx context.Context, c *Client, userID string) (bool, error) {
	reply := make(chan bool, 1)
	select {
	case h.joins <- joinCmd{client: c, userID: userID, reply: reply}:
	case <-h.stopped:
		return false, ErrHubStopped
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case changed := <-reply:
		return changed, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Deliver pushes a persisted message to the live members of its
// conversation and returns how many frames were queued. It never fails
// the caller: a missing sender profile degrades to the sender id.
func (h *Hub) Deliver(ctx context.Context, msg models.Message, members []string) int {
	profile := models.Profile{ID: msg.SenderID}
	if h.profiles != nil {
		if u, err := h.profiles.GetUser(ctx, msg.SenderID); err != nil {
			h.log.Warn("sender profile unavailable", zap.String("user_id", msg.SenderID), zap.Error(err))
		} else {
			profile = u.Profile()
		}
	}

	reply := make(chan int, 1)
	select {
	case h.deliveries <- deliverCmd{msg: msg, members: members, profile: profile, reply: reply}:
	case <-h.stopped:
		return 0
	case <-ctx.Done():
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

func (h *Hub) Presence() *Presence { return h.presence }

func (h *Hub) IsOnline(userID string) bool { return h.presence.IsOnline(userID) }

func (h *Hub) Stats() HubStats {
	h.clientsMu.RLock()
	n := len(h.clients)
	h.clientsMu.RUnlock()
	return HubStats{PresenceStats: h.presence.Stats(), Clients: n}
}

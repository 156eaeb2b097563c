package websocket

import (
	"github.com/ridehub/ridehub/models"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Sink hands a frame to a live connection without blocking. It returns
// false when the connection is gone or its buffer is full.
type Sink interface {
	Send(connID string, env Envelope) bool
}

// Router fans a persisted message out to the live connections of the
// conversation members, the sender included.
type Router struct {
	presence *Presence
	sink     Sink
	log      *zap.Logger
}

func NewRouter(presence *Presence, sink Sink, log *zap.Logger) *Router {
	return &Router{presence: presence, sink: sink, log: log}
}

// Route emits a deliver event to every live connection of every member
// and returns how many frames were accepted. Members without a live
// connection are skipped; a refused frame only affects its connection.
func (r *Router) Route(msg models.Message, members []string, profile models.Profile) int {
	env, err := NewEnvelope(EventDeliver, deliverPayload(msg, profile))
	if err != nil {
		r.log.Error("failed to encode deliver event", zap.String("message_id", msg.ID), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, member := range lo.Uniq(members) {
		conns := r.presence.ConnectionsFor(member)
		if len(conns) == 0 {
			r.log.Debug("recipient offline, skipping",
				zap.String("message_id", msg.ID),
				zap.String("user_id", member))
			continue
		}
		for _, connID := range conns {
			if !r.sink.Send(connID, env) {
				r.log.Warn("deliver dropped",
					zap.String("message_id", msg.ID),
					zap.String("conn_id", connID))
				continue
			}
			delivered++
		}
	}
	return delivered
}

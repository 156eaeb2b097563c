package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ridehub/ridehub/models"
	"github.com/ridehub/ridehub/notifications"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

type DigestStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListUnreadBetween(ctx context.Context, from, to time.Time) ([]models.Message, error)
}

type OnlineChecker interface {
	IsOnline(userID string) bool
}

// UnreadDigest emails offline members about messages that stayed unread for
// Age. Each run covers the messages created in [now-Age-Window, now-Age), so
// consecutive runs on a Window schedule never report a message twice.
type UnreadDigest struct {
	store    DigestStore
	presence OnlineChecker
	mailer   notifications.Mailer
	age      time.Duration
	window   time.Duration
	timeout  time.Duration
	log      *zap.Logger
	now      func() time.Time
}

func NewUnreadDigest(store DigestStore, presence OnlineChecker, mailer notifications.Mailer, age, window time.Duration, log *zap.Logger) *UnreadDigest {
	return &UnreadDigest{
		store:    store,
		presence: presence,
		mailer:   mailer,
		age:      age,
		window:   window,
		timeout:  time.Minute,
		log:      log,
		now:      time.Now,
	}
}

// Run is the cron entry point.
func (d *UnreadDigest) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	d.log.Info("Running job: UnreadDigest")
	sent, err := d.RunOnce(ctx)
	if err != nil {
		d.log.Error("unread digest failed", zap.Error(err))
		return
	}
	d.log.Info("unread digest finished", zap.Int("emails", sent))
}

// RunOnce sends one digest per offline recipient and returns how many were sent.
func (d *UnreadDigest) RunOnce(ctx context.Context) (int, error) {
	to := d.now().UTC().Add(-d.age)
	from := to.Add(-d.window)

	messages, err := d.store.ListUnreadBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("list unread: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	counts := make(map[string]int)
	conversations := make(map[string]*models.Conversation)
	for _, m := range messages {
		conv, ok := conversations[m.ConversationID]
		if !ok {
			conv, err = d.store.GetConversation(ctx, m.ConversationID)
			if err != nil {
				d.log.Warn("conversation lookup failed", zap.String("conversation_id", m.ConversationID), zap.Error(err))
				conversations[m.ConversationID] = nil
				continue
			}
			conversations[m.ConversationID] = conv
		}
		if conv == nil {
			continue
		}
		for _, userID := range lo.Without(conv.Members, m.SenderID) {
			counts[userID]++
		}
	}

	recipients := lo.Filter(lo.Keys(counts), func(id string, _ int) bool {
		return !d.presence.IsOnline(id)
	})
	sort.Strings(recipients)

	sent := 0
	for _, userID := range recipients {
		user, err := d.store.GetUser(ctx, userID)
		if err != nil {
			d.log.Warn("recipient lookup failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}

		subject := "You have unread messages on RideHub"
		body := fmt.Sprintf(
			"<h1>Unread messages</h1><p>Hi %s,</p><p>You have %d unread message(s) waiting for you. Open RideHub to catch up with your riding group.</p>",
			user.FullName, counts[userID],
		)
		if err := d.mailer.Send(ctx, notifications.Recipient{Name: user.FullName, Email: user.Email}, subject, body); err != nil {
			d.log.Error("🔥 Failed to send unread digest", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

package models

import (
	"sort"
	"strings"
	"time"
)

type Conversation struct {
	ID        string    `gorm:"type:uuid;primaryKey" bson:"_id" json:"id"`
	Members   []string  `gorm:"-" bson:"members" json:"members"`
	PairKey   *string   `gorm:"size:80;uniqueIndex" bson:"pair_key,omitempty" json:"-"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" bson:"-" json:"-"`
}

// ConversationParticipant is the relational form of Conversation.Members.
type ConversationParticipant struct {
	ConversationID string `gorm:"type:uuid;primaryKey"`
	UserID         string `gorm:"type:uuid;primaryKey;index"`
}

// HasMember reports whether userID belongs to the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, m := range c.Members {
		if m == userID {
			return true
		}
	}
	return false
}

// PairKey is the order independent key of a two member conversation.
// It backs the unique index that makes find-or-create atomic.
func PairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, ":")
}

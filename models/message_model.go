package models

import (
	"time"
)

type Message struct {
	ID             string    `gorm:"type:uuid;primaryKey" bson:"_id" json:"id"`
	ConversationID string    `gorm:"type:uuid;not null;index:idx_messages_conversation_created" bson:"conversation_id" json:"conversationId"`
	SenderID       string    `gorm:"type:uuid;not null" bson:"sender_id" json:"senderId"`
	Body           string    `gorm:"type:text;not null" bson:"body" json:"body"`
	Read           bool      `gorm:"not null" bson:"read" json:"read"`
	CreatedAt      time.Time `gorm:"index:idx_messages_conversation_created" bson:"created_at" json:"createdAt"`
}

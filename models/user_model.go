package models

import (
	"time"
)

type User struct {
	ID        string    `gorm:"type:uuid;primaryKey" bson:"_id" json:"id"`
	Username  string    `gorm:"size:100;not null;uniqueIndex" bson:"username" json:"username"`
	FullName  string    `gorm:"size:255;not null" bson:"full_name" json:"fullName"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" bson:"email" json:"email"`
	Password  string    `gorm:"not null" bson:"password" json:"-"`
	Bio       *string   `gorm:"type:text" bson:"bio,omitempty" json:"bio,omitempty"`
	Location  *string   `gorm:"size:255" bson:"location,omitempty" json:"location,omitempty"`
	Photo     *string   `gorm:"size:255" bson:"photo,omitempty" json:"photo,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Profile is the minimal public view of a user attached to pushed messages
// and returned by the user directory.
type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, FullName: u.FullName, Email: u.Email}
}

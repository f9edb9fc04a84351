package model

import "time"

type User struct {
	UserID    string    `bson:"_id,omitempty" json:"id"`
	Username  string    `bson:"username" json:"username"`
	Email     string    `bson:"email" json:"email"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ChatLink binds a Telegram chat to an application user. Created by the
// /start <token> linking command; looked up on every inbound bot message.
type ChatLink struct {
	ChatID   int64     `bson:"_id" json:"chat_id"`
	UserID   string    `bson:"user_id" json:"user_id"`
	Username string    `bson:"username,omitempty" json:"username,omitempty"`
	LinkedAt time.Time `bson:"linked_at" json:"linked_at"`
}

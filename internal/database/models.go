package database

import (
	"strings"
	"time"
)

// replyMarker is appended to an inbound message id to derive the id of the
// bot's reply row. Gateway message ids are numeric, so the result can never
// collide with a real message.
const replyMarker = ":reply"

// Message is one chat message in a channel.
type Message struct {
	MessageID string    `db:"message_id" json:"message_id"`
	ChannelID string    `db:"channel_id" json:"channel_id"`
	Author    string    `db:"author" json:"author"`
	Content   string    `db:"content" json:"content"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
}

// UserProfile is the generated summary of one author.
type UserProfile struct {
	Username  string    `db:"username" json:"username"`
	Profile   string    `db:"profile" json:"profile"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AuthorCount is an author with their number of messages in a channel.
type AuthorCount struct {
	Author string `db:"author"`
	Count  int    `db:"message_count"`
}

// ReplyID derives the id stored for the bot's reply to messageID.
func ReplyID(messageID string) string {
	return messageID + replyMarker
}

// IsReplyID reports whether id was produced by ReplyID.
func IsReplyID(id string) bool {
	return strings.HasSuffix(id, replyMarker)
}

package entity

import "time"

// MaxTextLen bounds a message's text, in characters.
const MaxTextLen = 140

// Message is a short post owned by its author.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	Text      string    `db:"text" json:"text"`
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	UserID    int64     `db:"user_id" json:"user_id"`
}

// AuthoredMessage is a message joined with the author fields a timeline shows.
type AuthoredMessage struct {
	Message
	Username string `db:"username" json:"username"`
	ImageURL string `db:"image_url" json:"image_url"`
}

package entity

import (
	"fmt"
	"time"
)

// User represents an account row in the `users` table.
// PasswordHash is a bcrypt digest; the plaintext is never stored.
type User struct {
	ID             int64     `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	ImageURL       string    `db:"image_url" json:"image_url"`
	HeaderImageURL string    `db:"header_image_url" json:"header_image_url"`
	Bio            string    `db:"bio" json:"bio"`
	Location       string    `db:"location" json:"location"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (u *User) String() string {
	return fmt.Sprintf("<User #%d: %s, %s>", u.ID, u.Username, u.Email)
}

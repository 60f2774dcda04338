package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// User represents a registered account reachable over WhatsApp.
// Accounts are created through the web signup (out of scope here); the bot
// only links an existing account to a phone number via its email.
type User struct {
	gorm.Model

	UserID     string     `json:"user_id" gorm:"uniqueIndex"`
	Name       string     `json:"name"`
	Email      string     `json:"email" gorm:"uniqueIndex"`
	Phone      string     `json:"phone" gorm:"index"` // WhatsApp number, empty until linked
	Currency   string     `json:"currency" gorm:"default:'INR'"`
	IsActive   bool       `json:"is_active" gorm:"default:true"`
	LinkedAt   *time.Time `json:"linked_at"`
	LastSeenAt *time.Time `json:"last_seen_at"`
}

// BeforeCreate hook to auto-generate UserID and normalize contact fields
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == "" {
		u.UserID = fmt.Sprintf("USR%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	if u.Phone != "" && !strings.HasPrefix(u.Phone, "+") {
		u.Phone = "+" + u.Phone
	}

	return nil
}

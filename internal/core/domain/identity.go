package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID              string
	Name            string
	Username        string
	Email           string
	PasswordHash    string
	AvatarURL       *string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Initials returns the upper-cased first letters of the first two words of the name.
func (u User) Initials() string {
	words := strings.Fields(u.Name)
	if len(words) > 2 {
		words = words[:2]
	}

	var b strings.Builder
	for _, word := range words {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Sanitized returns a copy of the user without credential material.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// AuthIdentifier implements Authenticatable.
func (u User) AuthIdentifier() string { return u.ID }

// AuthPasswordHash implements Authenticatable.
func (u User) AuthPasswordHash() string { return u.PasswordHash }

// HolderID implements RoleHolder.
func (u User) HolderID() string { return u.ID }

// PasswordContext carries user attributes a password must not resemble.
type PasswordContext struct {
	Name     string
	Username string
	Email    string
}

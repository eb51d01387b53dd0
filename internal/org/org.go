// Package org manages organizations ("families"): the scope a signed-in
// user tracks care activities in.
package org

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	maxNameLength = 80
)

var (
	ErrInvalidName = errors.New("org: name must be 1-80 characters")
	ErrNotMember   = errors.New("org: user is not a member")
)

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"` // caller's role, when listed for a user
	CreatedAt time.Time `json:"created_at"`
}

type Store interface {
	// Create makes a new organization with userID as its admin.
	Create(ctx context.Context, userID, name string) (Organization, error)
	ListForUser(ctx context.Context, userID string) ([]Organization, error)
	// Role returns userID's role in orgID or ErrNotMember.
	Role(ctx context.Context, orgID, userID string) (string, error)
}

// NormalizeName trims name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"carelog/internal/db"

	"github.com/google/uuid"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAlreadyRegistered  = errors.New("email already registered")
	ErrInvalidEmail       = errors.New("invalid email address")
)

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

type Service struct {
	db *db.DB
}

func NewService(db *db.DB) *Service {
	return &Service{db: db}
}

func (s *Service) Register(
	ctx context.Context,
	email string,
	password string,
) (string, error) {

	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	// validate the password before any user row exists
	hash, version, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	var userID uuid.UUID
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		// 1. Claim the email. Any existing user, including one created by
		// an OAuth sign in, owns it already; a password must never be
		// attached to somebody else's account.
		err := tx.QueryRowContext(ctx, `
			INSERT INTO users (email, email_verified)
			VALUES ($1, false)
			ON CONFLICT (LOWER(email)) DO NOTHING
			RETURNING id
		`, email).Scan(&userID)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlreadyRegistered
		}
		if err != nil {
			return err
		}

		// 2. Credentials for the new user
		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (user_id, password_hash, hash_version)
			VALUES ($1, $2, $3)
		`, userID, hash, version)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRegistered) || db.IsUniqueViolation(err) {
			return "", ErrAlreadyRegistered
		}
		return "", fmt.Errorf("credentials: register: %w", err)
	}

	return userID.String(), nil
}

func (s *Service) Authenticate(
	ctx context.Context,
	email string,
	password string,
) (string, error) {

	var (
		userID       uuid.UUID
		passwordHash string
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, c.password_hash
		FROM users u
		JOIN credentials c ON c.user_id = u.id
		WHERE LOWER(u.email) = LOWER($1)
	`, strings.TrimSpace(email)).Scan(&userID, &passwordHash)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// same answer whether or not the user exists
		return "", ErrInvalidCredentials
	case err != nil:
		return "", fmt.Errorf("credentials: lookup: %w", err)
	}

	if err := VerifyPassword(passwordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}

	return userID.String(), nil
}

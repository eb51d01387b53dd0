package resolver

import (
	"context"
	"database/sql"
	"errors"

	"carelog/internal/auth"
	"carelog/internal/db"

	"github.com/google/uuid"
)

// ErrEmailConflict means the identity's email belongs to an existing user
// it cannot be linked to. The user has to sign in the way they signed up.
var ErrEmailConflict = errors.New("resolver: email belongs to another account")

// DBResolver maps external identities to users in Postgres.
type DBResolver struct {
	db *db.DB
}

func NewDBResolver(db *db.DB) *DBResolver {
	return &DBResolver{db: db}
}

// Resolve finds the user behind identity, linking by email when both the
// identity and the stored user are verified, or creating a new user when
// the email is unknown. All writes share one transaction.
func (r *DBResolver) Resolve(
	ctx context.Context,
	identity *auth.Identity,
) (string, error) {

	if identity == nil {
		return "", errors.New("identity is nil")
	}

	var userID uuid.UUID
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		// 1. Known identity (provider + provider_user_id)
		err := tx.QueryRowContext(ctx, `
			SELECT user_id
			FROM identities
			WHERE provider = $1
			  AND provider_user_id = $2
		`,
			identity.Provider,
			identity.ProviderUserID,
		).Scan(&userID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		// 2. Existing user, new provider. Link only when the identity and
		// the stored user both carry a verified email.
		var verified bool
		err = tx.QueryRowContext(ctx, `
			SELECT id, email_verified
			FROM users
			WHERE LOWER(email) = LOWER($1)
		`,
			identity.Email,
		).Scan(&userID, &verified)
		switch {
		case err == nil:
			if !identity.EmailVerified || !verified {
				return ErrEmailConflict
			}
		case errors.Is(err, sql.ErrNoRows):
			// 3. New user
			err = tx.QueryRowContext(ctx, `
				INSERT INTO users (email, email_verified)
				VALUES ($1, $2)
				RETURNING id
			`,
				identity.Email,
				identity.EmailVerified,
			).Scan(&userID)
			if db.IsUniqueViolation(err) {
				return ErrEmailConflict
			}
			if err != nil {
				return err
			}
		default:
			return err
		}

		// 4. Identity mapping
		_, err = tx.ExecContext(ctx, `
			INSERT INTO identities (user_id, provider, provider_user_id)
			VALUES ($1, $2, $3)
		`,
			userID,
			identity.Provider,
			identity.ProviderUserID,
		)
		return err
	})
	if err != nil {
		return "", err
	}

	return userID.String(), nil
}

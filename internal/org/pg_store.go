package org

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"carelog/internal/db"

	"github.com/google/uuid"
)

type PGStore struct {
	db *db.DB
}

func NewPGStore(db *db.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, userID, name string) (Organization, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return Organization{}, err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return Organization{}, fmt.Errorf("org: invalid user id: %w", err)
	}

	o := Organization{Name: name, Role: RoleAdmin}
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		var id uuid.UUID
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO organizations (name, created_by)
			VALUES ($1, $2)
			RETURNING id, created_at
		`, name, uid).Scan(&id, &o.CreatedAt); err != nil {
			return err
		}
		o.ID = id.String()

		_, err := tx.ExecContext(ctx, `
			INSERT INTO memberships (org_id, user_id, role)
			VALUES ($1, $2, $3)
		`, id, uid, RoleAdmin)
		return err
	})
	if err != nil {
		return Organization{}, fmt.Errorf("org: create: %w", err)
	}
	return o, nil
}

func (s *PGStore) ListForUser(ctx context.Context, userID string) ([]Organization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, m.role, o.created_at
		FROM organizations o
		JOIN memberships m ON m.org_id = o.id
		WHERE m.user_id = $1
		ORDER BY o.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("org: list: %w", err)
	}
	defer rows.Close()

	var out []Organization
	for rows.Next() {
		var (
			id uuid.UUID
			o  Organization
		)
		if err := rows.Scan(&id, &o.Name, &o.Role, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("org: list scan: %w", err)
		}
		o.ID = id.String()
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PGStore) Role(ctx context.Context, orgID, userID string) (string, error) {
	if _, err := uuid.Parse(orgID); err != nil {
		return "", ErrNotMember
	}

	var role string
	err := s.db.QueryRowContext(ctx, `
		SELECT role FROM memberships
		WHERE org_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", fmt.Errorf("org: role: %w", err)
	}
	return role, nil
}

package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-polls/backend/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrEmailTaken      = errors.New("email already registered")
)

const profileColumns = `id, email, password_hash, full_name, avatar_url, created_at, updated_at`

// Repository handles profile persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a profile repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	err := row.Scan(&p.ID, &p.Email, &p.PasswordHash, &p.FullName, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns a profile by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

// GetByEmail returns a profile by email (case-insensitive).
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.Profile, error) {
	return scanProfile(r.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE lower(email) = lower($1)`, email))
}

// Create inserts a new profile.
func (r *Repository) Create(ctx context.Context, email, passwordHash string, fullName *string) (*models.Profile, error) {
	const q = `INSERT INTO profiles (email, password_hash, full_name)
		VALUES (lower($1), $2, $3)
		RETURNING ` + profileColumns
	p, err := scanProfile(r.pool.QueryRow(ctx, q, email, passwordHash, fullName))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return p, nil
}

// UpdateProfile sets display name and/or avatar. Nil leaves a field unchanged.
func (r *Repository) UpdateProfile(ctx context.Context, id uuid.UUID, fullName, avatarURL *string) (*models.Profile, error) {
	const q = `UPDATE profiles SET
		full_name = COALESCE($2, full_name),
		avatar_url = COALESCE($3, avatar_url),
		updated_at = NOW()
		WHERE id = $1
		RETURNING ` + profileColumns
	return scanProfile(r.pool.QueryRow(ctx, q, id, fullName, avatarURL))
}

package polls

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-polls/backend/internal/models"
	"github.com/aura-polls/backend/internal/validation"
	"github.com/aura-polls/backend/pkg/database"
)

const pollColumns = `p.id, p.title, p.description, p.question, p.poll_type, p.status, p.is_public,
	p.allow_multiple_votes, p.max_votes_per_option, p.expires_at, p.created_by, p.created_at, p.updated_at`

// Repository handles poll, option and vote persistence.
type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewRepository creates a polls repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, now: time.Now}
}

func scanPoll(row pgx.Row, extra ...any) (*models.Poll, error) {
	var p models.Poll
	dest := []any{&p.ID, &p.Title, &p.Description, &p.Question, &p.PollType, &p.Status, &p.IsPublic,
		&p.AllowMultipleVotes, &p.MaxVotesPerOption, &p.ExpiresAt, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPollNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a poll and its options in one transaction. in must already be normalized.
func (r *Repository) Create(ctx context.Context, ownerID uuid.UUID, in models.CreatePollInput) (*models.Poll, error) {
	var poll *models.Poll
	err := database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		const insertPoll = `INSERT INTO polls AS p (title, description, question, poll_type, is_public,
			allow_multiple_votes, max_votes_per_option, expires_at, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING ` + pollColumns
		p, err := scanPoll(tx.QueryRow(ctx, insertPoll,
			in.Title, in.Description, in.Question, string(in.PollType), in.IsPublic,
			in.AllowMultipleVotes, in.MaxVotesPerOption, in.ExpiresAt, ownerID))
		if err != nil {
			return fmt.Errorf("insert poll: %w", err)
		}

		const insertOption = `INSERT INTO poll_options (poll_id, text, description, order_index)
			VALUES ($1, $2, $3, $4)
			RETURNING id, poll_id, text, description, order_index, created_at`
		p.Options = make([]models.PollOption, 0, len(in.Options))
		for _, o := range in.Options {
			var opt models.PollOption
			if err := tx.QueryRow(ctx, insertOption, p.ID, o.Text, o.Description, o.OrderIndex).
				Scan(&opt.ID, &opt.PollID, &opt.Text, &opt.Description, &opt.OrderIndex, &opt.CreatedAt); err != nil {
				return fmt.Errorf("insert option: %w", err)
			}
			p.Options = append(p.Options, opt)
		}
		poll = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return poll, nil
}

// GetByID returns a poll without options.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error) {
	return scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls p WHERE p.id = $1`, id))
}

// GetWithOptions returns the poll detail view. viewerID may be nil for anonymous callers.
func (r *Repository) GetWithOptions(ctx context.Context, id uuid.UUID, viewerID *uuid.UUID) (*models.PollWithOptions, error) {
	const q = `SELECT ` + pollColumns + `,
		(SELECT COUNT(*) FROM votes v WHERE v.poll_id = p.id)
		FROM polls p WHERE p.id = $1`
	var total int
	p, err := scanPoll(r.pool.QueryRow(ctx, q, id), &total)
	if err != nil {
		return nil, err
	}

	opts, err := r.options(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Options = opts

	out := &models.PollWithOptions{Poll: *p, TotalVotes: total, UserVotes: []uuid.UUID{}}
	if viewerID != nil {
		rows, err := r.pool.Query(ctx, `SELECT option_id FROM votes WHERE poll_id = $1 AND voter_id = $2`, id, *viewerID)
		if err != nil {
			return nil, fmt.Errorf("query viewer votes: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var optID uuid.UUID
			if err := rows.Scan(&optID); err != nil {
				return nil, err
			}
			out.UserVotes = append(out.UserVotes, optID)
		}
		if err := rows.Err(); err != nil {
			return nil, err
		}
		out.UserHasVoted = len(out.UserVotes) > 0
	}
	return out, nil
}

func (r *Repository) options(ctx context.Context, pollID uuid.UUID) ([]models.PollOption, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, poll_id, text, description, order_index, created_at
		FROM poll_options WHERE poll_id = $1 ORDER BY order_index`, pollID)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()
	var list []models.PollOption
	for rows.Next() {
		var o models.PollOption
		if err := rows.Scan(&o.ID, &o.PollID, &o.Text, &o.Description, &o.OrderIndex, &o.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}

// List returns polls newest first. Private polls are only listed for their owner.
func (r *Repository) List(ctx context.Context, f ListFilter, viewerID *uuid.UUID) ([]models.PollSummary, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if viewerID != nil {
		where = append(where, "(p.is_public OR p.created_by = "+arg(*viewerID)+")")
	} else {
		where = append(where, "p.is_public")
	}
	if f.Status != nil {
		where = append(where, "p.status = "+arg(string(*f.Status)))
	}
	if f.PollType != nil {
		where = append(where, "p.poll_type = "+arg(string(*f.PollType)))
	}
	if f.IsPublic != nil {
		where = append(where, "p.is_public = "+arg(*f.IsPublic))
	}
	if f.CreatedBy != nil {
		where = append(where, "p.created_by = "+arg(*f.CreatedBy))
	}
	if f.Search != "" {
		n := arg("%" + escapeLike(f.Search) + "%")
		where = append(where, "(p.title ILIKE "+n+" OR p.description ILIKE "+n+" OR p.question ILIKE "+n+")")
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	q := `SELECT ` + pollColumns + `, pr.email, pr.full_name,
		(SELECT COUNT(*) FROM poll_options o WHERE o.poll_id = p.id),
		(SELECT COUNT(*) FROM votes v WHERE v.poll_id = p.id)
		FROM polls p
		JOIN profiles pr ON pr.id = p.created_by
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY p.created_at DESC
		LIMIT ` + arg(limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query polls: %w", err)
	}
	defer rows.Close()

	list := []models.PollSummary{}
	for rows.Next() {
		var s models.PollSummary
		p, err := scanPoll(rows, &s.OwnerEmail, &s.OwnerName, &s.OptionCount, &s.VoteCount)
		if err != nil {
			return nil, err
		}
		s.Poll = *p
		list = append(list, s)
	}
	return list, rows.Err()
}

// Update applies owner edits. A poll the caller does not own is reported as ErrPollNotFound.
func (r *Repository) Update(ctx context.Context, id, ownerID uuid.UUID, in models.UpdatePollInput) (*models.Poll, error) {
	var status *string
	if in.Status != nil {
		s := string(*in.Status)
		status = &s
	}
	const q = `UPDATE polls AS p SET
		title = COALESCE($3, title),
		description = COALESCE($4, description),
		question = COALESCE($5, question),
		status = COALESCE($6, status),
		is_public = COALESCE($7, is_public),
		allow_multiple_votes = COALESCE($8, allow_multiple_votes),
		max_votes_per_option = COALESCE($9, max_votes_per_option),
		expires_at = COALESCE($10, expires_at),
		updated_at = NOW()
		WHERE p.id = $1 AND p.created_by = $2
		RETURNING ` + pollColumns
	return scanPoll(r.pool.QueryRow(ctx, q, id, ownerID,
		in.Title, in.Description, in.Question, status, in.IsPublic,
		in.AllowMultipleVotes, in.MaxVotesPerOption, in.ExpiresAt))
}

// Delete removes a poll owned by ownerID; options and votes cascade.
func (r *Repository) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM polls WHERE id = $1 AND created_by = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete poll: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPollNotFound
	}
	return nil
}

// SubmitVote replaces the voter's selection for a poll in one transaction.
// Concurrent submissions by the same voter for the same poll are serialized.
func (r *Repository) SubmitVote(ctx context.Context, voterID uuid.UUID, in models.VoteInput) error {
	return database.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`,
			in.PollID.String(), voterID.String()); err != nil {
			return fmt.Errorf("lock voter: %w", err)
		}

		p, err := scanPoll(tx.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls p WHERE p.id = $1 FOR SHARE`, in.PollID))
		if err != nil {
			return err
		}
		if p.Status != models.PollStatusActive {
			return ErrPollNotActive
		}
		if p.Expired(r.now()) {
			return ErrPollExpired
		}
		if err := validation.Selection(*p, in.OptionIDs); err != nil {
			return err
		}

		var matched int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM poll_options WHERE poll_id = $1 AND id = ANY($2)`,
			in.PollID, in.OptionIDs).Scan(&matched); err != nil {
			return fmt.Errorf("check options: %w", err)
		}
		if matched != len(in.OptionIDs) {
			return ErrInvalidOption
		}

		if _, err := tx.Exec(ctx, `DELETE FROM votes WHERE poll_id = $1 AND voter_id = $2`, in.PollID, voterID); err != nil {
			return fmt.Errorf("clear votes: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO votes (poll_id, option_id, voter_id)
			SELECT $1, opt, $3 FROM unnest($2::uuid[]) AS opt`, in.PollID, in.OptionIDs, voterID); err != nil {
			return fmt.Errorf("insert votes: %w", err)
		}
		return nil
	})
}

// Results returns per-option counts and percentages in display order.
func (r *Repository) Results(ctx context.Context, pollID uuid.UUID) ([]models.PollResult, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM polls WHERE id = $1)`, pollID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check poll: %w", err)
	}
	if !exists {
		return nil, ErrPollNotFound
	}

	rows, err := r.pool.Query(ctx, `SELECT option_id, option_text, order_index, vote_count FROM get_poll_results($1)`, pollID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()
	var counts []models.OptionCount
	for rows.Next() {
		var c models.OptionCount
		if err := rows.Scan(&c.OptionID, &c.OptionText, &c.OrderIndex, &c.VoteCount); err != nil {
			return nil, err
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Tally(counts), nil
}

// CloseExpired closes active polls whose expiry has passed and returns their IDs.
func (r *Repository) CloseExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `UPDATE polls SET status = 'closed', updated_at = NOW()
		WHERE status = 'active' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING id`, now)
	if err != nil {
		return nil, fmt.Errorf("close expired: %w", err)
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

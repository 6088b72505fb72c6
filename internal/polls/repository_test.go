package polls

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/aura-polls/backend/internal/models"
	"github.com/aura-polls/backend/internal/validation"
	"github.com/aura-polls/backend/pkg/database"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("polls"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolOptions{}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool, zap.NewNop()))
	return pool
}

func insertProfile(t *testing.T, pool *pgxpool.Pool, email string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	require.NoError(t, pool.QueryRow(context.Background(),
		`INSERT INTO profiles (email, password_hash) VALUES ($1, 'x') RETURNING id`, email).Scan(&id))
	return id
}

func mustCreate(t *testing.T, r *Repository, owner uuid.UUID, in models.CreatePollInput) *models.Poll {
	t.Helper()
	norm, err := validation.CreatePoll(in, time.Now())
	require.NoError(t, err)
	p, err := r.Create(context.Background(), owner, norm)
	require.NoError(t, err)
	return p
}

func TestRepository(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	r := NewRepository(pool)
	alice := insertProfile(t, pool, "alice@example.com")
	bob := insertProfile(t, pool, "bob@example.com")

	colors := models.CreatePollInput{
		Title: "My Poll", Question: "Best color?", IsPublic: true,
		Options: []models.OptionInput{{Text: "Red"}, {Text: "Blue"}},
	}

	t.Run("create then get shows options and no votes", func(t *testing.T) {
		p := mustCreate(t, r, alice, colors)
		got, err := r.GetWithOptions(ctx, p.ID, nil)
		require.NoError(t, err)
		require.Len(t, got.Options, 2)
		assert.Equal(t, "Red", got.Options[0].Text)
		assert.Equal(t, 2, got.Options[1].OrderIndex)
		assert.Zero(t, got.TotalVotes)
		assert.Equal(t, models.PollStatusActive, got.Status)
	})

	t.Run("revote replaces", func(t *testing.T) {
		p := mustCreate(t, r, alice, colors)
		red, blue := p.Options[0].ID, p.Options[1].ID
		require.NoError(t, r.SubmitVote(ctx, bob, models.VoteInput{PollID: p.ID, OptionIDs: []uuid.UUID{red}}))
		require.NoError(t, r.SubmitVote(ctx, bob, models.VoteInput{PollID: p.ID, OptionIDs: []uuid.UUID{blue}}))

		results, err := r.Results(ctx, p.ID)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, 0, results[0].VoteCount)
		assert.Equal(t, 1, results[1].VoteCount)
		assert.Equal(t, float64(100), results[1].Percentage)

		detail, err := r.GetWithOptions(ctx, p.ID, &bob)
		require.NoError(t, err)
		assert.Equal(t, 1, detail.TotalVotes)
		assert.Equal(t, []uuid.UUID{blue}, detail.UserVotes)
	})

	t.Run("vote rejections record nothing", func(t *testing.T) {
		p := mustCreate(t, r, alice, colors)
		both := []uuid.UUID{p.Options[0].ID, p.Options[1].ID}

		err := r.SubmitVote(ctx, bob, models.VoteInput{PollID: p.ID, OptionIDs: both})
		var verr *validation.Error
		assert.ErrorAs(t, err, &verr)

		err = r.SubmitVote(ctx, bob, models.VoteInput{PollID: p.ID, OptionIDs: []uuid.UUID{uuid.New()}})
		assert.ErrorIs(t, err, ErrInvalidOption)

		err = r.SubmitVote(ctx, bob, models.VoteInput{PollID: uuid.New(), OptionIDs: []uuid.UUID{p.Options[0].ID}})
		assert.ErrorIs(t, err, ErrPollNotFound)

		expired := NewRepository(pool)
		expired.now = func() time.Time { return time.Now().Add(72 * time.Hour) }
		in := colors
		soon := time.Now().Add(time.Hour)
		in.ExpiresAt = &soon
		ep := mustCreate(t, r, alice, in)
		err = expired.SubmitVote(ctx, bob, models.VoteInput{PollID: ep.ID, OptionIDs: []uuid.UUID{ep.Options[0].ID}})
		assert.ErrorIs(t, err, ErrPollExpired)

		for _, id := range []uuid.UUID{p.ID, ep.ID} {
			d, err := r.GetWithOptions(ctx, id, nil)
			require.NoError(t, err)
			assert.Zero(t, d.TotalVotes)
		}
	})

	t.Run("owner only update and delete", func(t *testing.T) {
		p := mustCreate(t, r, alice, colors)
		title := "Hijacked"
		_, err := r.Update(ctx, p.ID, bob, models.UpdatePollInput{Title: &title})
		assert.ErrorIs(t, err, ErrPollNotFound)
		assert.ErrorIs(t, r.Delete(ctx, p.ID, bob), ErrPollNotFound)

		closed := models.PollStatusClosed
		updated, err := r.Update(ctx, p.ID, alice, models.UpdatePollInput{Status: &closed})
		require.NoError(t, err)
		assert.Equal(t, models.PollStatusClosed, updated.Status)
		assert.Equal(t, "My Poll", updated.Title)

		err = r.SubmitVote(ctx, bob, models.VoteInput{PollID: p.ID, OptionIDs: []uuid.UUID{p.Options[0].ID}})
		assert.ErrorIs(t, err, ErrPollNotActive)

		require.NoError(t, r.Delete(ctx, p.ID, alice))
		_, err = r.GetByID(ctx, p.ID)
		assert.ErrorIs(t, err, ErrPollNotFound)
		var options int
		require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM poll_options WHERE poll_id = $1`, p.ID).Scan(&options))
		assert.Zero(t, options)
	})

	t.Run("list filters and visibility", func(t *testing.T) {
		private := colors
		private.Title = "Private zebra"
		private.IsPublic = false
		mustCreate(t, r, alice, private)

		f := ListFilter{Search: "zebra", Limit: 10}
		anon, err := r.List(ctx, f, nil)
		require.NoError(t, err)
		assert.Empty(t, anon)
		asBob, err := r.List(ctx, f, &bob)
		require.NoError(t, err)
		assert.Empty(t, asBob)
		asAlice, err := r.List(ctx, f, &alice)
		require.NoError(t, err)
		require.Len(t, asAlice, 1)
		assert.Equal(t, "alice@example.com", asAlice[0].OwnerEmail)
		assert.Equal(t, 2, asAlice[0].OptionCount)

		pct := ListFilter{Search: "%", Limit: 10}
		none, err := r.List(ctx, pct, &alice)
		require.NoError(t, err)
		assert.Empty(t, none, "wildcards match literally")
	})

	t.Run("close expired", func(t *testing.T) {
		in := colors
		soon := time.Now().Add(time.Minute)
		in.ExpiresAt = &soon
		p := mustCreate(t, r, alice, in)

		ids, err := r.CloseExpired(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Contains(t, ids, p.ID)
		got, err := r.GetByID(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PollStatusClosed, got.Status)
	})
}

package polls

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-polls/backend/internal/middleware"
	"github.com/aura-polls/backend/internal/models"
	"github.com/aura-polls/backend/internal/validation"
	"github.com/aura-polls/backend/pkg/response"
)

const msgPollNotFound = "Poll not found"

// Store is the poll persistence the handler needs.
type Store interface {
	Create(ctx context.Context, ownerID uuid.UUID, in models.CreatePollInput) (*models.Poll, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Poll, error)
	GetWithOptions(ctx context.Context, id uuid.UUID, viewerID *uuid.UUID) (*models.PollWithOptions, error)
	List(ctx context.Context, f ListFilter, viewerID *uuid.UUID) ([]models.PollSummary, error)
	Update(ctx context.Context, id, ownerID uuid.UUID, in models.UpdatePollInput) (*models.Poll, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	SubmitVote(ctx context.Context, voterID uuid.UUID, in models.VoteInput) error
	Results(ctx context.Context, pollID uuid.UUID) ([]models.PollResult, error)
}

// ResultsCache holds computed results between votes.
type ResultsCache interface {
	Get(ctx context.Context, pollID uuid.UUID) ([]models.PollResult, bool, error)
	Set(ctx context.Context, pollID uuid.UUID, results []models.PollResult) error
	Invalidate(ctx context.Context, pollID uuid.UUID) error
}

// Notifier is told when a poll's results or state changed so live viewers can refresh.
type Notifier interface {
	ResultsChanged(ctx context.Context, pollID uuid.UUID) error
}

// Handler handles poll HTTP endpoints.
type Handler struct {
	repo     Store
	cache    ResultsCache
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a polls handler. cache and notifier may be nil.
func NewHandler(repo Store, cache ResultsCache, notifier Notifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, cache: cache, notifier: notifier, logger: logger, now: time.Now}
}

// Create handles POST /polls.
func (h *Handler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	req := models.CreatePollInput{IsPublic: true}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	in, err := validation.CreatePoll(req, h.now())
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.repo.Create(c.Request.Context(), userID, in)
	if err != nil {
		h.logger.Error("create poll", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "Failed to create poll")
		return
	}
	response.Created(c, p)
}

// List handles GET /polls.
func (h *Handler) List(c *gin.Context) {
	f, err := ParseListFilter(c.Request.URL.Query())
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	list, err := h.repo.List(c.Request.Context(), f, middleware.OptionalUserID(c))
	if err != nil {
		h.logger.Error("list polls", zap.Error(err))
		response.Internal(c, "Failed to fetch polls")
		return
	}
	response.OK(c, list)
}

// Get handles GET /polls/:id.
func (h *Handler) Get(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	p, err := h.repo.GetWithOptions(c.Request.Context(), pollID, middleware.OptionalUserID(c))
	if errors.Is(err, ErrPollNotFound) {
		response.NotFound(c, msgPollNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get poll", zap.String("poll_id", pollID.String()), zap.Error(err))
		response.Internal(c, "Failed to fetch poll")
		return
	}
	response.OK(c, p)
}

// Update handles PATCH /polls/:id (owner only).
func (h *Handler) Update(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	var req models.UpdatePollInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	current, err := h.repo.GetByID(c.Request.Context(), pollID)
	if errors.Is(err, ErrPollNotFound) || (err == nil && current.CreatedBy != userID) {
		response.NotFound(c, msgPollNotFound)
		return
	}
	if err != nil {
		h.logger.Error("get poll for update", zap.String("poll_id", pollID.String()), zap.Error(err))
		response.Internal(c, "Failed to update poll")
		return
	}
	if err := validation.UpdatePoll(*current, req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	req.Title = trimmed(req.Title)
	req.Question = trimmed(req.Question)
	req.Description = trimmed(req.Description)

	p, err := h.repo.Update(c.Request.Context(), pollID, userID, req)
	if errors.Is(err, ErrPollNotFound) {
		response.NotFound(c, msgPollNotFound)
		return
	}
	if err != nil {
		h.logger.Error("update poll", zap.String("poll_id", pollID.String()), zap.Error(err))
		response.Internal(c, "Failed to update poll")
		return
	}
	if current.Status != p.Status {
		h.resultsChanged(c.Request.Context(), pollID)
	}
	response.OK(c, p)
}

// Delete handles DELETE /polls/:id (owner only).
func (h *Handler) Delete(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	err = h.repo.Delete(c.Request.Context(), pollID, userID)
	if errors.Is(err, ErrPollNotFound) {
		response.NotFound(c, msgPollNotFound)
		return
	}
	if err != nil {
		h.logger.Error("delete poll", zap.String("poll_id", pollID.String()), zap.Error(err))
		response.Internal(c, "Failed to delete poll")
		return
	}
	h.invalidate(c.Request.Context(), pollID)
	response.NoContent(c)
}

// Vote handles POST /polls/vote. A resubmission replaces the voter's previous selection.
func (h *Handler) Vote(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	var req models.VoteInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.PollID == uuid.Nil {
		response.BadRequest(c, "poll_id is required")
		return
	}

	err := h.repo.SubmitVote(c.Request.Context(), userID, req)
	var verr *validation.Error
	switch {
	case err == nil:
	case errors.Is(err, ErrPollNotFound):
		response.NotFound(c, msgPollNotFound)
		return
	case errors.Is(err, ErrPollNotActive):
		response.BadRequest(c, "Poll is not active")
		return
	case errors.Is(err, ErrPollExpired):
		response.BadRequest(c, "Poll has expired")
		return
	case errors.Is(err, ErrInvalidOption):
		response.BadRequest(c, "Invalid option for this poll")
		return
	case errors.As(err, &verr):
		response.BadRequest(c, verr.Message)
		return
	default:
		h.logger.Error("submit vote", zap.String("poll_id", req.PollID.String()), zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "Failed to submit vote")
		return
	}

	h.resultsChanged(c.Request.Context(), req.PollID)
	response.OK(c, nil)
}

// Results handles GET /polls/:id/results.
func (h *Handler) Results(c *gin.Context) {
	pollID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid poll id")
		return
	}
	ctx := c.Request.Context()
	if h.cache != nil {
		cached, hit, err := h.cache.Get(ctx, pollID)
		if err != nil {
			h.logger.Warn("results cache get", zap.String("poll_id", pollID.String()), zap.Error(err))
		}
		if hit {
			response.OK(c, cached)
			return
		}
	}

	results, err := h.repo.Results(ctx, pollID)
	if errors.Is(err, ErrPollNotFound) {
		response.NotFound(c, msgPollNotFound)
		return
	}
	if err != nil {
		h.logger.Error("poll results", zap.String("poll_id", pollID.String()), zap.Error(err))
		response.Internal(c, "Failed to fetch results")
		return
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, pollID, results); err != nil {
			h.logger.Warn("results cache set", zap.String("poll_id", pollID.String()), zap.Error(err))
		}
	}
	response.OK(c, results)
}

func (h *Handler) invalidate(ctx context.Context, pollID uuid.UUID) {
	if h.cache == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, pollID); err != nil {
		h.logger.Warn("results cache invalidate", zap.String("poll_id", pollID.String()), zap.Error(err))
	}
}

// resultsChanged drops cached results and notifies live viewers. Failures are logged only;
// the write already committed.
func (h *Handler) resultsChanged(ctx context.Context, pollID uuid.UUID) {
	h.invalidate(ctx, pollID)
	if h.notifier == nil {
		return
	}
	if err := h.notifier.ResultsChanged(ctx, pollID); err != nil {
		h.logger.Warn("notify results changed", zap.String("poll_id", pollID.String()), zap.Error(err))
	}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

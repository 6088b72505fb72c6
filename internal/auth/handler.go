package auth

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-polls/backend/internal/middleware"
	"github.com/aura-polls/backend/internal/models"
	"github.com/aura-polls/backend/pkg/response"
	"github.com/aura-polls/backend/pkg/storage"
	"github.com/aura-polls/backend/pkg/utils"
)

// ProfileStore is the profile persistence the handler needs.
type ProfileStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
	Create(ctx context.Context, email, passwordHash string, fullName *string) (*models.Profile, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, fullName, avatarURL *string) (*models.Profile, error)
}

// AvatarUploader stores an avatar image and returns its public URL.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, userID uuid.UUID, contentType string, body io.Reader, size int64) (string, error)
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UpdateProfileRequest is the body for PATCH /profile.
type UpdateProfileRequest struct {
	FullName *string `json:"full_name"`
}

// TokenResponse is the auth response with JWT.
type TokenResponse struct {
	Token string               `json:"token"`
	User  models.ProfilePublic `json:"user"`
}

// Handler handles auth and profile HTTP endpoints.
type Handler struct {
	repo    ProfileStore
	jwt     *JWTService
	avatars AvatarUploader
	logger  *zap.Logger
}

// NewHandler creates an auth handler. avatars may be nil when object storage is not configured.
func NewHandler(repo ProfileStore, jwt *JWTService, avatars AvatarUploader, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, avatars: avatars, logger: logger}
}

// Register handles POST /auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	hash, err := utils.HashPassword(req.Password)
	if errors.Is(err, utils.ErrPasswordTooLong) {
		response.BadRequest(c, "password is too long")
		return
	}
	if err != nil {
		h.logger.Error("hash password", zap.Error(err))
		response.Internal(c, "failed to hash password")
		return
	}

	var fullName *string
	if name := strings.TrimSpace(req.FullName); name != "" {
		fullName = &name
	}
	profile, err := h.repo.Create(c.Request.Context(), strings.TrimSpace(req.Email), hash, fullName)
	if errors.Is(err, ErrEmailTaken) {
		response.Conflict(c, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("create profile", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}

	token, err := h.jwt.Generate(profile.ID, profile.Email)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}

	response.Created(c, TokenResponse{Token: token, User: profile.ToPublic()})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	profile, err := h.repo.GetByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			h.logger.Error("get profile by email", zap.Error(err))
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}

	if !utils.CheckPassword(req.Password, profile.PasswordHash) {
		response.Unauthorized(c, "invalid email or password")
		return
	}

	token, err := h.jwt.Generate(profile.ID, profile.Email)
	if err != nil {
		h.logger.Error("generate token", zap.Error(err))
		response.Internal(c, "failed to generate token")
		return
	}

	response.OK(c, TokenResponse{Token: token, User: profile.ToPublic()})
}

// GetProfile handles GET /profile.
func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	profile, err := h.repo.GetByID(c.Request.Context(), userID)
	if errors.Is(err, ErrProfileNotFound) {
		response.NotFound(c, "profile not found")
		return
	}
	if err != nil {
		h.logger.Error("get profile", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "failed to load profile")
		return
	}
	response.OK(c, profile.ToPublic())
}

// UpdateProfile handles PATCH /profile.
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		req.FullName = &name
	}
	profile, err := h.repo.UpdateProfile(c.Request.Context(), userID, req.FullName, nil)
	if errors.Is(err, ErrProfileNotFound) {
		response.NotFound(c, "profile not found")
		return
	}
	if err != nil {
		h.logger.Error("update profile", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "failed to update profile")
		return
	}
	response.OK(c, profile.ToPublic())
}

// UploadAvatar handles POST /profile/avatar (multipart field "file").
func (h *Handler) UploadAvatar(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	if h.avatars == nil {
		response.ServiceUnavailable(c, "avatar uploads are not configured")
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file is required")
		return
	}
	if fh.Size > storage.MaxAvatarSize {
		response.BadRequest(c, "file too large (max 2MB)")
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if _, ok := storage.AvatarExtension(contentType); !ok {
		response.BadRequest(c, "unsupported image type")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "could not read file")
		return
	}
	defer f.Close()

	url, err := h.avatars.UploadAvatar(c.Request.Context(), userID, contentType, f, fh.Size)
	if err != nil {
		h.logger.Error("upload avatar", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "failed to upload avatar")
		return
	}
	profile, err := h.repo.UpdateProfile(c.Request.Context(), userID, nil, &url)
	if errors.Is(err, ErrProfileNotFound) {
		response.NotFound(c, "profile not found")
		return
	}
	if err != nil {
		h.logger.Error("save avatar url", zap.String("user_id", userID.String()), zap.Error(err))
		response.Internal(c, "failed to update profile")
		return
	}
	response.OK(c, profile.ToPublic())
}

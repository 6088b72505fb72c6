package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-polls/backend/internal/middleware"
	"github.com/aura-polls/backend/internal/models"
)

type memProfiles struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*models.Profile
}

func newMemProfiles() *memProfiles {
	return &memProfiles{byID: make(map[uuid.UUID]*models.Profile)}
}

func (m *memProfiles) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memProfiles) GetByEmail(_ context.Context, email string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrProfileNotFound
}

func (m *memProfiles) Create(_ context.Context, email, hash string, fullName *string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if strings.EqualFold(p.Email, email) {
			return nil, ErrEmailTaken
		}
	}
	now := time.Now()
	p := &models.Profile{ID: uuid.New(), Email: strings.ToLower(email), PasswordHash: hash, FullName: fullName, CreatedAt: now, UpdatedAt: now}
	m.byID[p.ID] = p
	cp := *p
	return &cp, nil
}

func (m *memProfiles) UpdateProfile(_ context.Context, id uuid.UUID, fullName, avatarURL *string) (*models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	if fullName != nil {
		p.FullName = fullName
	}
	if avatarURL != nil {
		p.AvatarURL = avatarURL
	}
	cp := *p
	return &cp, nil
}

type stubAvatars struct{ got string }

func (s *stubAvatars) UploadAvatar(_ context.Context, userID uuid.UUID, contentType string, body io.Reader, _ int64) (string, error) {
	b, _ := io.ReadAll(body)
	s.got = string(b)
	return "https://cdn.example.com/avatars/" + userID.String() + ".png", nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(store ProfileStore, avatars AvatarUploader) (*gin.Engine, *JWTService) {
	jwtSvc := NewJWTService("test-secret", 1)
	h := NewHandler(store, jwtSvc, avatars, nil)
	r := gin.New()
	r.POST("/api/auth/register", h.Register)
	r.POST("/api/auth/login", h.Login)
	p := r.Group("/api/profile", middleware.JWT(jwtSvc))
	p.GET("", h.GetProfile)
	p.PATCH("", h.UpdateProfile)
	p.POST("/avatar", h.UploadAvatar)
	return r, jwtSvc
}

func doJSON(r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type tokenEnvelope struct {
	Success bool          `json:"success"`
	Data    TokenResponse `json:"data"`
	Error   string        `json:"error"`
}

func TestRegisterAndLogin(t *testing.T) {
	r, _ := newRouter(newMemProfiles(), nil)

	w := doJSON(r, http.MethodPost, "/api/auth/register", "", gin.H{"email": "Ada@Example.com", "password": "secret1", "full_name": " Ada "})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg tokenEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.True(t, reg.Success)
	assert.NotEmpty(t, reg.Data.Token)
	assert.Equal(t, "ada@example.com", reg.Data.User.Email)
	require.NotNil(t, reg.Data.User.FullName)
	assert.Equal(t, "Ada", *reg.Data.User.FullName)
	assert.NotContains(t, w.Body.String(), "password")

	w = doJSON(r, http.MethodPost, "/api/auth/register", "", gin.H{"email": "ada@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong!"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "nobody@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	var login tokenEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, reg.Data.User.ID, login.Data.User.ID)
}

func TestRegister_Validation(t *testing.T) {
	r, _ := newRouter(newMemProfiles(), nil)
	w := doJSON(r, http.MethodPost, "/api/auth/register", "", gin.H{"email": "not-an-email", "password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(r, http.MethodPost, "/api/auth/register", "", gin.H{"email": "a@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfile(t *testing.T) {
	store := newMemProfiles()
	r, jwtSvc := newRouter(store, nil)
	p, err := store.Create(context.Background(), "grace@example.com", "x", nil)
	require.NoError(t, err)
	token, err := jwtSvc.Generate(p.ID, p.Email)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, doJSON(r, http.MethodGet, "/api/profile", "", nil).Code)

	w := doJSON(r, http.MethodPatch, "/api/profile", token, gin.H{"full_name": "Grace Hopper"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Grace Hopper")

	w = doJSON(r, http.MethodGet, "/api/profile", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Grace Hopper")

	ghost, err := jwtSvc.Generate(uuid.New(), "ghost@example.com")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodGet, "/api/profile", ghost, nil).Code)
}

func avatarRequest(t *testing.T, token, contentType string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="me.png"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestUploadAvatar(t *testing.T) {
	store := newMemProfiles()
	avatars := &stubAvatars{}
	r, jwtSvc := newRouter(store, avatars)
	p, err := store.Create(context.Background(), "linus@example.com", "x", nil)
	require.NoError(t, err)
	token, err := jwtSvc.Generate(p.ID, p.Email)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, avatarRequest(t, token, "application/pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, avatarRequest(t, token, "image/png", []byte("png-bytes")))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "png-bytes", avatars.got)

	saved, err := store.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.AvatarURL)
	assert.Contains(t, *saved.AvatarURL, p.ID.String())
}

func TestUploadAvatar_NotConfigured(t *testing.T) {
	store := newMemProfiles()
	r, jwtSvc := newRouter(store, nil)
	p, err := store.Create(context.Background(), "x@example.com", "x", nil)
	require.NoError(t, err)
	token, err := jwtSvc.Generate(p.ID, p.Email)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, avatarRequest(t, token, "image/png", []byte("png")))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

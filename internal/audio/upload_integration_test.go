//go:build integration
// +build integration

package audio

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/homemic/sleep-server/config"
	"github.com/homemic/sleep-server/internal/models"
	"github.com/homemic/sleep-server/internal/realtime"
	"github.com/homemic/sleep-server/internal/sessions"
	"github.com/homemic/sleep-server/pkg/database"
)

// Run with: go test -tags integration ./internal/audio/
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), zap.NewNop())
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Skipf("migrate failed: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func newUploadRouter(t *testing.T, pool *pgxpool.Pool, spoolDir string) (*gin.Engine, *sessions.Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessionRepo := sessions.NewRepository(pool)
	h := NewHandler(NewRepository(pool), sessionRepo, nil, nil,
		realtime.NewHub(zap.NewNop(), nil, nil), sessions.NewLocks(), spoolDir, zap.NewNop())

	router := gin.New()
	router.POST("/api/audio/upload", h.Upload)
	return router, sessionRepo
}

func clipUploadRequest(t *testing.T, sessionID string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("audio", "clip.wav")
	require.NoError(t, err)
	_, err = fw.Write([]byte("RIFF....WAVEfmt "))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("piId", "bedroom-pi"))
	require.NoError(t, mw.WriteField("sessionId", sessionID))
	require.NoError(t, mw.WriteField("audioLevel", "42"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/audio/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func startTestSession(t *testing.T, repo *sessions.Repository, date time.Time) *models.Session {
	t.Helper()
	s, err := repo.StartSession(context.Background(), date)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Delete(context.Background(), s.ID) })
	return s
}

func TestUploadSpoolsClipAndCreatesRow(t *testing.T) {
	pool := testPool(t)
	spoolDir := t.TempDir()
	router, sessionRepo := newUploadRouter(t, pool, spoolDir)

	date := time.Date(2020, 2, 1, 0, 0, 0, 0, time.UTC)
	s := startTestSession(t, sessionRepo, date)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, clipUploadRequest(t, s.ID.String()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	detail, err := sessionRepo.Get(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, detail.AudioClips, 1)
	clip := detail.AudioClips[0]
	assert.Equal(t, 42.0, clip.AudioLevel)
	assert.False(t, clip.Uploaded)

	_, err = os.Stat(filepath.Join(spoolDir, clip.ID.String()+".wav"))
	assert.NoError(t, err, "clip bytes must be spooled next to the row")
}

func TestUploadSpoolFailureLeavesNoClipRow(t *testing.T) {
	pool := testPool(t)
	// A spool directory that does not exist makes the file save fail after
	// the row insert.
	router, sessionRepo := newUploadRouter(t, pool, filepath.Join(t.TempDir(), "missing", "spool"))

	date := time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC)
	s := startTestSession(t, sessionRepo, date)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, clipUploadRequest(t, s.ID.String()))
	require.Equal(t, http.StatusInternalServerError, w.Code)

	detail, err := sessionRepo.Get(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.AudioClips, "a failed spool must not leave a clip row behind")
}

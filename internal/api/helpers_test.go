package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"resumecanvas/internal/api/middleware"
	"resumecanvas/internal/canvas"
	"resumecanvas/internal/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeStorage struct {
	deletedPrefixes []string
	downloadName    string
	presigned       []string
	presignErr      error
}

func (s *fakeStorage) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	if s.presignErr != nil {
		return "", s.presignErr
	}
	s.presigned = append(s.presigned, key)
	return "https://example.invalid/" + key + "?signed", nil
}

func (s *fakeStorage) DownloadURL(_ context.Context, key, filename string, _ time.Duration) (string, error) {
	s.downloadName = filename
	return "https://example.invalid/" + key, nil
}

func (s *fakeStorage) DeletePrefix(_ context.Context, prefix string) error {
	s.deletedPrefixes = append(s.deletedPrefixes, prefix)
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

type memorySessions struct {
	data map[string][]byte
}

func newMemorySessions() *memorySessions {
	return &memorySessions{data: map[string][]byte{}}
}

func (m *memorySessions) Load(_ context.Context, key string) ([]byte, error) {
	v, ok := m.data[key]
	if !ok {
		return nil, canvas.ErrSessionMissing
	}
	return v, nil
}

func (m *memorySessions) Store(_ context.Context, key string, state []byte, _ time.Duration) error {
	m.data[key] = state
	return nil
}

func (m *memorySessions) Delete(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createUser(t *testing.T, db *gorm.DB, name, tier string) database.User {
	t.Helper()
	user := database.User{Email: name + "@example.com", Name: name, PasswordHash: "x", SubscriptionTier: tier}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func createResume(t *testing.T, db *gorm.DB, userID uint, title, content string) database.Resume {
	t.Helper()
	rec := database.Resume{
		Title:        title,
		Content:      []byte(content),
		CanvasLayout: defaultCanvasLayout(),
		UserID:       userID,
	}
	if err := db.Create(&rec).Error; err != nil {
		t.Fatalf("create resume: %v", err)
	}
	return rec
}

// asUser 模拟 AuthMiddleware 的结果。
func asUser(userID uint) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

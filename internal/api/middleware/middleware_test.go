package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInternalSecretMiddleware(t *testing.T) {
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }

	closed := gin.New()
	closed.GET("/metrics", InternalSecretMiddleware(" "), ok)
	if w := serve(closed, httptest.NewRequest(http.MethodGet, "/metrics", nil)); w.Code != http.StatusNotFound {
		t.Fatalf("unconfigured status = %d", w.Code)
	}

	r := gin.New()
	r.GET("/metrics", InternalSecretMiddleware("s3cret"), ok)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if w := serve(r, req); w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Internal-Secret", "s3cret")
	if w := serve(r, req); w.Code != http.StatusOK {
		t.Fatalf("valid secret status = %d", w.Code)
	}
}

func TestCorrelationIDPropagates(t *testing.T) {
	var fromGin, fromCtx string
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		fromGin = GetCorrelationID(c)
		fromCtx = CorrelationIDFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	w := serve(r, req)
	if fromGin != "abc-123" || fromCtx != "abc-123" {
		t.Fatalf("ids = %q / %q", fromGin, fromCtx)
	}
	if got := w.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Fatalf("response header = %q", got)
	}

	serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	if fromGin == "" || fromGin == "abc-123" {
		t.Fatalf("expected generated id, got %q", fromGin)
	}
}

func TestUserID(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if _, ok := UserID(c); ok {
		t.Fatalf("expected no user")
	}
	c.Set(UserIDKey, uint(7))
	if id, ok := UserID(c); !ok || id != 7 {
		t.Fatalf("UserID = %d, %v", id, ok)
	}
}

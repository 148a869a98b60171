package api

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"resumecanvas/internal/database"
)

func TestPublicResumeBySlug(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	shared := createResume(t, db, user.ID, "shared", "{}")
	hidden := createResume(t, db, user.ID, "hidden", "{}")

	sharedSlug, hiddenSlug := "ada-cv", "ada-draft"
	db.Model(&shared).Updates(map[string]any{"is_public": true, "public_slug": sharedSlug, "preview_object_key": "previews/1/1/p.png"})
	db.Model(&hidden).Updates(map[string]any{"is_public": false, "public_slug": hiddenSlug})

	r := gin.New()
	r.GET("/v1/public/:slug", NewPublicHandler(db, &fakeStorage{}).GetBySlug)

	w := doJSON(t, r, http.MethodGet, "/v1/public/"+sharedSlug, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["title"] != "shared" {
		t.Fatalf("title = %v", resp["title"])
	}
	if resp["preview_image_url"] != "https://example.invalid/previews/1/1/p.png?signed" {
		t.Fatalf("preview_image_url = %v", resp["preview_image_url"])
	}

	for _, slug := range []string{hiddenSlug, "missing"} {
		if w := doJSON(t, r, http.MethodGet, "/v1/public/"+slug, nil); w.Code != http.StatusNotFound {
			t.Fatalf("%s: status = %d", slug, w.Code)
		}
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"resumecanvas/internal/config"
	"resumecanvas/internal/database"
	"resumecanvas/internal/layout"
	"resumecanvas/internal/tasks"
)

func newResumeRouter(h *ResumeHandler, userID uint) *gin.Engine {
	r := gin.New()
	g := r.Group("/v1/resumes", asUser(userID))
	g.GET("", h.ListResumes)
	g.POST("", h.CreateResume)
	g.GET("/latest", h.GetLatestResume)
	g.GET("/:id", h.GetResume)
	g.PUT("/:id", h.UpdateResume)
	g.DELETE("/:id", h.DeleteResume)
	g.POST("/:id/export", h.ExportResume)
	g.GET("/:id/download-link", h.GetDownloadLink)
	return r
}

func TestCreateResumeDefaults(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	h := NewResumeHandler(db, &fakeEnqueuer{}, &fakeStorage{}, nil, config.PlansConfig{FreeMaxResumes: 3}, 3)
	router := newResumeRouter(h, user.ID)

	w := doJSON(t, router, http.MethodPost, "/v1/resumes", map[string]any{"title": "  My CV "})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var resp resumeResponse
	decodeBody(t, w, &resp)
	if resp.Title != "My CV" {
		t.Fatalf("title = %q", resp.Title)
	}
	if string(resp.Content) != "{}" {
		t.Fatalf("content = %s", resp.Content)
	}
	var doc layout.Document
	if err := json.Unmarshal(resp.CanvasLayout, &doc); err != nil {
		t.Fatalf("decode layout: %v", err)
	}
	if doc.Width != layout.PageWidth || doc.Height != layout.PageHeight || doc.HasSections() {
		t.Fatalf("unexpected default layout: %+v", doc)
	}

	var reloaded database.User
	db.First(&reloaded, user.ID)
	if reloaded.ActiveResumeID == nil || *reloaded.ActiveResumeID != resp.ID {
		t.Fatalf("active resume not set: %v", reloaded.ActiveResumeID)
	}
}

func TestCreateResumeRequiresTitle(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	h := NewResumeHandler(db, &fakeEnqueuer{}, &fakeStorage{}, nil, config.PlansConfig{}, 3)

	w := doJSON(t, newResumeRouter(h, user.ID), http.MethodPost, "/v1/resumes", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCreateResumeEnforcesPlanLimit(t *testing.T) {
	db := newTestDB(t)
	free := createUser(t, db, "free", database.TierFree)
	pro := createUser(t, db, "pro", database.TierPro)
	for i := 0; i < 3; i++ {
		createResume(t, db, free.ID, "cv", "{}")
		createResume(t, db, pro.ID, "cv", "{}")
	}
	plans := config.PlansConfig{FreeMaxResumes: 3}

	h := NewResumeHandler(db, &fakeEnqueuer{}, &fakeStorage{}, nil, plans, 3)
	if w := doJSON(t, newResumeRouter(h, free.ID), http.MethodPost, "/v1/resumes", map[string]any{"title": "4th"}); w.Code != http.StatusForbidden {
		t.Fatalf("free status = %d", w.Code)
	}
	if w := doJSON(t, newResumeRouter(h, pro.ID), http.MethodPost, "/v1/resumes", map[string]any{"title": "4th"}); w.Code != http.StatusCreated {
		t.Fatalf("pro status = %d", w.Code)
	}
}

func TestListResumesOnlyOwn(t *testing.T) {
	db := newTestDB(t)
	ada := createUser(t, db, "ada", database.TierFree)
	bob := createUser(t, db, "bob", database.TierFree)
	createResume(t, db, ada.ID, "mine", "{}")
	createResume(t, db, bob.ID, "theirs", "{}")

	h := NewResumeHandler(db, &fakeEnqueuer{}, &fakeStorage{}, nil, config.PlansConfig{}, 3)
	w := doJSON(t, newResumeRouter(h, ada.ID), http.MethodGet, "/v1/resumes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Resumes []resumeListItem `json:"resumes"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Resumes) != 1 || resp.Resumes[0].Title != "mine" {
		t.Fatalf("unexpected list: %+v", resp.Resumes)
	}
}

func TestGetResumeOwnership(t *testing.T) {
	db := newTestDB(t)
	ada := createUser(t, db, "ada", database.TierFree)
	bob := createUser(t, db, "bob", database.TierFree)
	rec := createResume(t, db, bob.ID, "theirs", "{}")

	h := NewResumeHandler(db, &fakeEnqueuer{}, &fakeStorage{}, nil, config.PlansConfig{}, 3)
	router := newResumeRouter(h, ada.ID)

	if w := doJSON(t, router, http.MethodGet, "/v1/resumes/"+strconv.Itoa(int(rec.ID)), nil); w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/v1/resumes/abc", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUpdateResumePartial(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	rec := createResume(t, db, user.ID, "old", `{"personalInfo":{"fullName":"Ada"}}`)

	h := NewResumeHandler(db, &fakeEnqueuer{}, &fakeStorage{}, nil, config.PlansConfig{}, 3)
	path := "/v1/resumes/" + strconv.Itoa(int(rec.ID))
	w := doJSON(t, newResumeRouter(h, user.ID), http.MethodPut, path, map[string]any{"title": "new"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}

	var reloaded database.Resume
	db.First(&reloaded, rec.ID)
	if reloaded.Title != "new" {
		t.Fatalf("title = %q", reloaded.Title)
	}
	if !strings.Contains(string(reloaded.Content), "Ada") {
		t.Fatalf("content should be untouched: %s", reloaded.Content)
	}
}

func TestUpdateResumePublishAssignsSlug(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	first := createResume(t, db, user.ID, "one", "{}")
	second := createResume(t, db, user.ID, "two", "{}")

	h := NewResumeHandler(db, &fakeEnqueuer{}, &fakeStorage{}, nil, config.PlansConfig{}, 3)
	router := newResumeRouter(h, user.ID)

	w := doJSON(t, router, http.MethodPut, "/v1/resumes/"+strconv.Itoa(int(first.ID)), map[string]any{"is_public": true})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var resp resumeResponse
	decodeBody(t, w, &resp)
	if !resp.IsPublic || resp.PublicSlug == "" {
		t.Fatalf("expected generated slug: %+v", resp)
	}

	w = doJSON(t, router, http.MethodPut, "/v1/resumes/"+strconv.Itoa(int(second.ID)), map[string]any{"public_slug": resp.PublicSlug})
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate slug status = %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/v1/resumes/"+strconv.Itoa(int(second.ID)), map[string]any{"public_slug": "bad slug!"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid slug status = %d", w.Code)
	}
}

func TestUpdateResumeRejectsNonObjectLayout(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	rec := createResume(t, db, user.ID, "cv", "{}")

	h := NewResumeHandler(db, &fakeEnqueuer{}, &fakeStorage{}, nil, config.PlansConfig{}, 3)
	w := doJSON(t, newResumeRouter(h, user.ID), http.MethodPut, "/v1/resumes/"+strconv.Itoa(int(rec.ID)), map[string]any{"canvas_layout": []int{1}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestDeleteResumeCleansObjects(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	keep := createResume(t, db, user.ID, "keep", "{}")
	rec := createResume(t, db, user.ID, "gone", "{}")

	store := &fakeStorage{}
	h := NewResumeHandler(db, &fakeEnqueuer{}, store, nil, config.PlansConfig{}, 3)
	w := doJSON(t, newResumeRouter(h, user.ID), http.MethodDelete, "/v1/resumes/"+strconv.Itoa(int(rec.ID)), nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if len(store.deletedPrefixes) != 2 {
		t.Fatalf("deleted prefixes = %v", store.deletedPrefixes)
	}

	var reloaded database.User
	db.First(&reloaded, user.ID)
	if reloaded.ActiveResumeID == nil || *reloaded.ActiveResumeID != keep.ID {
		t.Fatalf("active resume = %v, want %d", reloaded.ActiveResumeID, keep.ID)
	}
}

func TestExportResumeEnqueues(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	rec := createResume(t, db, user.ID, "cv", "{}")

	enq := &fakeEnqueuer{}
	h := NewResumeHandler(db, enq, &fakeStorage{}, nil, config.PlansConfig{}, 3)
	w := doJSON(t, newResumeRouter(h, user.ID), http.MethodPost, "/v1/resumes/"+strconv.Itoa(int(rec.ID))+"/export", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}
	if len(enq.tasks) != 1 || enq.tasks[0].Type() != tasks.TypeExportPDF {
		t.Fatalf("unexpected tasks: %v", enq.tasks)
	}
	var payload tasks.ExportPDFPayload
	if err := json.Unmarshal(enq.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.ResumeID != rec.ID || payload.UserID != user.ID {
		t.Fatalf("payload = %+v", payload)
	}

	var reloaded database.Resume
	db.First(&reloaded, rec.ID)
	if reloaded.Status != database.ExportStatusPending {
		t.Fatalf("status = %q", reloaded.Status)
	}
}

func TestDownloadLinkRequiresCompletedExport(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	rec := createResume(t, db, user.ID, "My CV", "{}")

	store := &fakeStorage{}
	h := NewResumeHandler(db, &fakeEnqueuer{}, store, nil, config.PlansConfig{}, 3)
	router := newResumeRouter(h, user.ID)
	path := "/v1/resumes/" + strconv.Itoa(int(rec.ID)) + "/download-link"

	if w := doJSON(t, router, http.MethodGet, path, nil); w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}

	db.Model(&rec).Updates(map[string]any{"pdf_url": "exports/1/1/x.pdf", "status": database.ExportStatusCompleted})
	w := doJSON(t, router, http.MethodGet, path, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp map[string]string
	decodeBody(t, w, &resp)
	if resp["url"] != "https://example.invalid/exports/1/1/x.pdf" {
		t.Fatalf("url = %q", resp["url"])
	}
	if store.downloadName != "My CV.pdf" {
		t.Fatalf("download name = %q", store.downloadName)
	}
}

func TestListResumesPresignsPreviewOnRead(t *testing.T) {
	db := newTestDB(t)
	user := createUser(t, db, "ada", database.TierFree)
	withPreview := createResume(t, db, user.ID, "with preview", "{}")
	createResume(t, db, user.ID, "no preview", "{}")
	db.Model(&withPreview).Update("preview_object_key", "previews/1/1/a.png")

	store := &fakeStorage{}
	h := NewResumeHandler(db, &fakeEnqueuer{}, store, nil, config.PlansConfig{}, 3)
	w := doJSON(t, newResumeRouter(h, user.ID), http.MethodGet, "/v1/resumes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Resumes []resumeListItem `json:"resumes"`
	}
	decodeBody(t, w, &resp)
	if len(resp.Resumes) != 2 {
		t.Fatalf("resumes = %+v", resp.Resumes)
	}
	for _, item := range resp.Resumes {
		switch item.ID {
		case withPreview.ID:
			if item.PreviewImageURL != "https://example.invalid/previews/1/1/a.png?signed" {
				t.Fatalf("preview url = %q", item.PreviewImageURL)
			}
		default:
			if item.PreviewImageURL != "" {
				t.Fatalf("unexpected preview url %q", item.PreviewImageURL)
			}
		}
	}
	if len(store.presigned) != 1 {
		t.Fatalf("presigned keys = %v", store.presigned)
	}

	// 签名失败时列表仍然可用，只是没有缩略图。
	store.presignErr = errors.New("minio down")
	w = doJSON(t, newResumeRouter(h, user.ID), http.MethodGet, "/v1/resumes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

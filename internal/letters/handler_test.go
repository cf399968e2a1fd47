package letters

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func uploadFiles(t *testing.T, r http.Handler, batchID string, files map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/imports/"+batchID+"/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	decodeBody(t, w, &body)
	return body.Error.Code
}

func TestHandlerImportFlow(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f.svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/imports", `{"configId":"christmas"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var batch BatchResponse
	decodeBody(t, w, &batch)
	if batch.State != StateDraft || batch.TemplateID != "tpl-christmas" {
		t.Fatalf("unexpected batch %+v", batch)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/imports", `{"configId":"christmas"}`)
	if w.Code != http.StatusConflict || errorCode(t, w) != "import_already_open" {
		t.Fatalf("duplicate: expected 409 import_already_open, got %d: %s", w.Code, w.Body.String())
	}

	w = uploadFiles(t, r, batch.ID, map[string]string{"a.pdf": "letter-a", "b.pdf": "letter-x"})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/imports/"+batch.ID+"/import", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("import: expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.queue.msgs) != 1 || f.queue.msgs[0].BatchID != batch.ID {
		t.Fatalf("expected queued message, got %+v", f.queue.msgs)
	}

	if _, err := f.svc.RunImport(context.Background(), batch.ID); err != nil {
		t.Fatalf("run import: %v", err)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/imports/"+batch.ID, "")
	decodeBody(t, w, &batch)
	if batch.State != StateReady || batch.DocumentCount != 2 || batch.Progress == nil {
		t.Fatalf("unexpected batch after run %+v", batch)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/imports/"+batch.ID+"/lines", "")
	var lines struct {
		Items []LineResponse `json:"items"`
	}
	decodeBody(t, w, &lines)
	if len(lines.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines.Items))
	}

	target := lines.Items[0]
	w = doJSON(t, r, http.MethodPatch, "/api/v1/imports/"+batch.ID+"/lines/"+target.ID, `{"partnerId":null,"status":"no_partner"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var patched LineResponse
	decodeBody(t, w, &patched)
	if patched.PartnerID != nil || patched.Status != "no_partner" {
		t.Fatalf("unexpected patched line %+v", patched)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/imports/"+batch.ID+"/save", "")
	if w.Code != http.StatusConflict || errorCode(t, w) != "not_ready" {
		t.Fatalf("save open batch: expected 409 not_ready, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodPatch, "/api/v1/imports/"+batch.ID+"/lines/"+target.ID, `{"partnerId":7,"status":"ok"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch back: expected 200, got %d", w.Code)
	}

	w = doJSON(t, r, http.MethodPost, "/api/v1/imports/"+batch.ID+"/save", "")
	if w.Code != http.StatusOK {
		t.Fatalf("save: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var saved struct {
		State   State            `json:"state"`
		Letters []LetterResponse `json:"letters"`
	}
	decodeBody(t, w, &saved)
	if saved.State != StateDone || len(saved.Letters) != 2 {
		t.Fatalf("unexpected save response %+v", saved)
	}

	w = doJSON(t, r, http.MethodGet, "/api/v1/imports/"+batch.ID+"/letters", "")
	var listed struct {
		Items []LetterResponse `json:"items"`
	}
	decodeBody(t, w, &listed)
	if len(listed.Items) != 2 {
		t.Fatalf("expected 2 letters, got %d", len(listed.Items))
	}

	w = doJSON(t, r, http.MethodDelete, "/api/v1/imports/"+batch.ID, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("delete done batch: expected 409, got %d", w.Code)
	}
}

func TestHandlerRejectsNonPDFUpload(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f.svc)
	batch, err := f.svc.Create(context.Background(), CreateInput{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	w := uploadFiles(t, r, batch.ID, map[string]string{"notes.txt": "hello"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandlerUnknownBatch(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f.svc)

	w := doJSON(t, r, http.MethodGet, "/api/v1/imports/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandlerUnknownProfile(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f.svc)

	w := doJSON(t, r, http.MethodPost, "/api/v1/imports", `{"configId":"easter"}`)
	if w.Code != http.StatusBadRequest || errorCode(t, w) != "unknown_profile" {
		t.Fatalf("expected 400 unknown_profile, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandlerImportWithoutQueue(t *testing.T) {
	f := newFixture(t)
	f.svc.Queue = nil
	r := newTestRouter(f.svc)
	batch, err := f.svc.Create(context.Background(), CreateInput{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doJSON(t, r, http.MethodPost, "/api/v1/imports/"+batch.ID+"/import", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandlerListProfiles(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f.svc)

	w := doJSON(t, r, http.MethodGet, "/api/v1/import-profiles", "")
	var body struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	decodeBody(t, w, &body)
	if len(body.Items) != 2 || body.Items[0].ID != "christmas" {
		t.Fatalf("unexpected profiles %+v", body.Items)
	}
}

func TestHandlerDeleteDraft(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f.svc)
	batch, err := f.svc.Create(context.Background(), CreateInput{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	w := doJSON(t, r, http.MethodDelete, "/api/v1/imports/"+batch.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandlerListReportsClampedPaging(t *testing.T) {
	f := newFixture(t)
	r := newTestRouter(f.svc)

	w := doJSON(t, r, http.MethodGet, "/api/v1/imports?limit=500&offset=-3", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Limit  int `json:"limit"`
		Offset int `json:"offset"`
	}
	decodeBody(t, w, &body)
	if body.Limit != 50 || body.Offset != 0 {
		t.Fatalf("expected limit 50 offset 0, got %+v", body)
	}
}

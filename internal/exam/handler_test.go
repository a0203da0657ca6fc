package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"examhub/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockExamService struct {
	createFn   func(ctx context.Context, in CreateExamInput) (*Exam, error)
	updateFn   func(ctx context.Context, in UpdateExamInput) (*Exam, error)
	scheduleFn func(ctx context.Context, in ScheduleInput) (*Exam, error)
	publishFn  func(ctx context.Context, examID int64) (*PublishResult, error)
	getFn      func(ctx context.Context, examID int64) (*Exam, error)
	listFn     func(ctx context.Context, f ListFilter) (*ListResult, error)
}

func (m *mockExamService) CreateDraft(ctx context.Context, in CreateExamInput) (*Exam, error) {
	if m.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createFn(ctx, in)
}

func (m *mockExamService) Update(ctx context.Context, in UpdateExamInput) (*Exam, error) {
	if m.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateFn(ctx, in)
}

func (m *mockExamService) Schedule(ctx context.Context, in ScheduleInput) (*Exam, error) {
	if m.scheduleFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.scheduleFn(ctx, in)
}

func (m *mockExamService) Publish(ctx context.Context, examID int64) (*PublishResult, error) {
	if m.publishFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.publishFn(ctx, examID)
}

func (m *mockExamService) Get(ctx context.Context, examID int64) (*Exam, error) {
	if m.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getFn(ctx, examID)
}

func (m *mockExamService) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	if m.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listFn(ctx, f)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreateExamOK(t *testing.T) {
	h := &Handler{svc: &mockExamService{
		createFn: func(ctx context.Context, in CreateExamInput) (*Exam, error) {
			if in.CreatedBy != 7 || in.Title != "Algebra Midterm" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return &Exam{ID: 1, Title: in.Title, Status: StatusDraft, CreatedBy: 7}, nil
		},
	}}

	payload := []byte(`{"title":"Algebra Midterm","description":"Units 1-4"}`)
	req := httptest.NewRequest(http.MethodPost, "/exams/create", bytes.NewReader(payload))
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 7, Role: "instructor"}))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	body := decodeMap(t, w)
	if body["ok"] != true {
		t.Fatalf("expected ok=true")
	}
}

func TestCreateExamMissingTitle(t *testing.T) {
	h := &Handler{svc: &mockExamService{
		createFn: func(ctx context.Context, in CreateExamInput) (*Exam, error) {
			return nil, ErrTitleRequired
		},
	}}

	payload := []byte(`{"title":"  "}`)
	req := httptest.NewRequest(http.MethodPost, "/exams/create", bytes.NewReader(payload))
	req = req.WithContext(auth.ContextWithUser(req.Context(), &auth.User{ID: 7, Role: "instructor"}))
	w := httptest.NewRecorder()

	h.Create(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestUpdateExamPublishedConflict(t *testing.T) {
	h := &Handler{svc: &mockExamService{
		updateFn: func(ctx context.Context, in UpdateExamInput) (*Exam, error) {
			return nil, ErrExamNotDraft
		},
	}}

	payload := []byte(`{"title":"New Title"}`)
	req := httptest.NewRequest(http.MethodPost, "/exams/5/edit", bytes.NewReader(payload))
	req = withParam(req, "id", "5")
	w := httptest.NewRecorder()

	h.Update(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestScheduleExamInvalidWindow(t *testing.T) {
	h := &Handler{svc: &mockExamService{
		scheduleFn: func(ctx context.Context, in ScheduleInput) (*Exam, error) {
			return nil, ErrInvalidSchedule
		},
	}}

	payload := []byte(`{"start_time":"2026-03-01T10:00:00Z","end_time":"2026-03-01T09:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/exams/schedule/5", bytes.NewReader(payload))
	req = withParam(req, "id", "5")
	w := httptest.NewRecorder()

	h.Schedule(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestScheduleExamBadTimestamp(t *testing.T) {
	h := &Handler{svc: &mockExamService{}}

	payload := []byte(`{"start_time":"next tuesday","end_time":"2026-03-01T09:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/exams/schedule/5", bytes.NewReader(payload))
	req = withParam(req, "id", "5")
	w := httptest.NewRecorder()

	h.Schedule(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestPublishExamIdempotent(t *testing.T) {
	h := &Handler{svc: &mockExamService{
		publishFn: func(ctx context.Context, examID int64) (*PublishResult, error) {
			return &PublishResult{
				Exam:             &Exam{ID: examID, Status: StatusPublished},
				AlreadyPublished: true,
			}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodPost, "/exams/5/publish", nil)
	req = withParam(req, "id", "5")
	w := httptest.NewRecorder()

	h.Publish(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeMap(t, w)
	data, _ := body["data"].(map[string]any)
	if data["status"] != "already published" {
		t.Fatalf("expected already published notice, got %v", body)
	}
}

func TestGetExamNotFound(t *testing.T) {
	h := &Handler{svc: &mockExamService{
		getFn: func(ctx context.Context, examID int64) (*Exam, error) {
			return nil, ErrExamNotFound
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/exams/99", nil)
	req = withParam(req, "id", "99")
	w := httptest.NewRecorder()

	h.Get(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestListExamsPassesFilter(t *testing.T) {
	h := &Handler{svc: &mockExamService{
		listFn: func(ctx context.Context, f ListFilter) (*ListResult, error) {
			if f.Search != "algebra" || f.Status != "draft" || f.Sort != "oldest" || f.Page != 2 {
				t.Fatalf("unexpected filter: %+v", f)
			}
			return &ListResult{Items: []Exam{}, Page: 2, Limit: 20}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/exams?search=algebra&status=draft&sort=oldest&page=2", nil)
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

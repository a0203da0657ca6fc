package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockGradingService struct {
	examStatusFn      func(ctx context.Context, examID int64) (string, error)
	takeExamFn        func(ctx context.Context, examID int64) (*TakeView, error)
	submitFn          func(ctx context.Context, in SubmitInput) (*Submission, error)
	manualGradeFn     func(ctx context.Context, in ManualGradeInput) (*Submission, error)
	publishGradesFn   func(ctx context.Context, examID int64) (*PublishGradesResult, error)
	viewResultsFn     func(ctx context.Context, submissionID int64) (*ResultView, error)
	listSubmissionsFn func(ctx context.Context, examID int64) ([]Submission, error)
}

func (m *mockGradingService) ExamStatus(ctx context.Context, examID int64) (string, error) {
	if m.examStatusFn == nil {
		return "", errors.New("not implemented")
	}
	return m.examStatusFn(ctx, examID)
}

func (m *mockGradingService) TakeExam(ctx context.Context, examID int64) (*TakeView, error) {
	if m.takeExamFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.takeExamFn(ctx, examID)
}

func (m *mockGradingService) Submit(ctx context.Context, in SubmitInput) (*Submission, error) {
	if m.submitFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.submitFn(ctx, in)
}

func (m *mockGradingService) ManualGrade(ctx context.Context, in ManualGradeInput) (*Submission, error) {
	if m.manualGradeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.manualGradeFn(ctx, in)
}

func (m *mockGradingService) PublishGrades(ctx context.Context, examID int64) (*PublishGradesResult, error) {
	if m.publishGradesFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.publishGradesFn(ctx, examID)
}

func (m *mockGradingService) ViewResults(ctx context.Context, submissionID int64) (*ResultView, error) {
	if m.viewResultsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.viewResultsFn(ctx, submissionID)
}

func (m *mockGradingService) ListSubmissions(ctx context.Context, examID int64) ([]Submission, error) {
	if m.listSubmissionsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listSubmissionsFn(ctx, examID)
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

func TestSubmitRefusesUnpublishedExam(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		examStatusFn: func(ctx context.Context, examID int64) (string, error) {
			return "draft", nil
		},
	}}

	payload := []byte(`{"student_name":"Ada","answers":{"1":"B"}}`)
	req := httptest.NewRequest(http.MethodPost, "/student/exams/3/submit", bytes.NewReader(payload))
	req = withParam(req, "id", "3")
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestSubmitMapsAnswerKeys(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		examStatusFn: func(ctx context.Context, examID int64) (string, error) {
			return "published", nil
		},
		submitFn: func(ctx context.Context, in SubmitInput) (*Submission, error) {
			if in.ExamID != 3 || in.StudentName != "Ada" {
				t.Fatalf("unexpected input: %+v", in)
			}
			if in.Answers[12] != "B" || in.Answers[13] != "an essay" {
				t.Fatalf("unexpected answers: %+v", in.Answers)
			}
			return &Submission{ID: 1, ExamID: 3, StudentName: "Ada", TotalScore: 10, MaxScore: 30, Percentage: 33.33, Status: StatusPending}, nil
		},
	}}

	payload := []byte(`{"student_name":"Ada","answers":{"12":"B","13":"an essay"}}`)
	req := httptest.NewRequest(http.MethodPost, "/student/exams/3/submit", bytes.NewReader(payload))
	req = withParam(req, "id", "3")
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
}

func TestSubmitBadAnswerKey(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		examStatusFn: func(ctx context.Context, examID int64) (string, error) {
			return "published", nil
		},
	}}

	payload := []byte(`{"student_name":"Ada","answers":{"not-a-number":"B"}}`)
	req := httptest.NewRequest(http.MethodPost, "/student/exams/3/submit", bytes.NewReader(payload))
	req = withParam(req, "id", "3")
	w := httptest.NewRecorder()

	h.Submit(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestTakeExamNotPublished(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		takeExamFn: func(ctx context.Context, examID int64) (*TakeView, error) {
			return nil, ErrExamNotPublished
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/student/exams/3/take", nil)
	req = withParam(req, "id", "3")
	w := httptest.NewRecorder()

	h.TakeExam(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestManualGradeMapsPointsAndComments(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		manualGradeFn: func(ctx context.Context, in ManualGradeInput) (*Submission, error) {
			if in.SubmissionID != 7 {
				t.Fatalf("unexpected submission id: %d", in.SubmissionID)
			}
			if in.Points[21] != 15 || in.Comments[21] != "good work" {
				t.Fatalf("unexpected grading input: %+v", in)
			}
			return &Submission{ID: 7, TotalScore: 25, MaxScore: 30, Percentage: 83.33, Status: StatusGraded}, nil
		},
	}}

	payload := []byte(`{"points":{"21":15},"comments":{"21":"good work"}}`)
	req := httptest.NewRequest(http.MethodPost, "/exams/submissions/7/grade", bytes.NewReader(payload))
	req = withParam(req, "id", "7")
	w := httptest.NewRecorder()

	h.ManualGrade(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestManualGradeSubmissionNotFound(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		manualGradeFn: func(ctx context.Context, in ManualGradeInput) (*Submission, error) {
			return nil, ErrSubmissionNotFound
		},
	}}

	payload := []byte(`{"points":{}}`)
	req := httptest.NewRequest(http.MethodPost, "/exams/submissions/99/grade", bytes.NewReader(payload))
	req = withParam(req, "id", "99")
	w := httptest.NewRecorder()

	h.ManualGrade(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPublishGradesWarnsWhenNoneGraded(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		publishGradesFn: func(ctx context.Context, examID int64) (*PublishGradesResult, error) {
			return &PublishGradesResult{Published: 0, NoneFound: true}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodPost, "/exams/3/publish_grades", nil)
	req = withParam(req, "id", "3")
	w := httptest.NewRecorder()

	h.PublishGrades(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decodeMap(t, w)
	data, _ := body["data"].(map[string]any)
	if data["warning"] == nil {
		t.Fatalf("expected warning in payload, got %v", body)
	}
}

func TestStudentResultsPendingConflict(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		viewResultsFn: func(ctx context.Context, submissionID int64) (*ResultView, error) {
			return &ResultView{Submission: Submission{ID: submissionID, Status: StatusPending}}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/student/submissions/5/results", nil)
	req = withParam(req, "id", "5")
	w := httptest.NewRecorder()

	h.StudentResults(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestStudentResultsGradedOK(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		viewResultsFn: func(ctx context.Context, submissionID int64) (*ResultView, error) {
			return &ResultView{Submission: Submission{ID: submissionID, Status: StatusGraded, TotalScore: 25, MaxScore: 30, Percentage: 83.33}}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/student/submissions/5/results", nil)
	req = withParam(req, "id", "5")
	w := httptest.NewRecorder()

	h.StudentResults(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestListSubmissionsExamNotFound(t *testing.T) {
	h := &Handler{svc: &mockGradingService{
		listSubmissionsFn: func(ctx context.Context, examID int64) ([]Submission, error) {
			return nil, ErrExamNotFound
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/exams/99/submissions", nil)
	req = withParam(req, "id", "99")
	w := httptest.NewRecorder()

	h.ListSubmissions(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

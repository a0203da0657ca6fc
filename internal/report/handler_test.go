package report

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

type mockReportService struct {
	examReportFn     func(ctx context.Context, examID int64) (*ExamReport, error)
	exportExamFn     func(ctx context.Context, examID int64) ([]byte, string, error)
	loginAttemptsFn  func(ctx context.Context) (*LoginAttemptsReport, error)
}

func (m *mockReportService) ExamReport(ctx context.Context, examID int64) (*ExamReport, error) {
	if m.examReportFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.examReportFn(ctx, examID)
}

func (m *mockReportService) ExportExamXLSX(ctx context.Context, examID int64) ([]byte, string, error) {
	if m.exportExamFn == nil {
		return nil, "", errors.New("not implemented")
	}
	return m.exportExamFn(ctx, examID)
}

func (m *mockReportService) LoginAttempts(ctx context.Context) (*LoginAttemptsReport, error) {
	if m.loginAttemptsFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.loginAttemptsFn(ctx)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestExamReportOK(t *testing.T) {
	h := &Handler{svc: &mockReportService{
		examReportFn: func(ctx context.Context, examID int64) (*ExamReport, error) {
			if examID != 7 {
				t.Fatalf("expected exam id 7, got %d", examID)
			}
			return &ExamReport{
				ExamID:       7,
				Title:        "Midterm",
				Participants: 3,
				AverageScore: 75.5,
				PassRate:     66.67,
				Distribution: newDistribution(),
			}, nil
		},
	}}

	req := withParam(httptest.NewRequest(http.MethodGet, "/analytics/exams/7/report", nil), "id", "7")
	rr := httptest.NewRecorder()
	h.ExamReport(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := out["data"].(map[string]any)
	if data["pass_rate"].(float64) != 66.67 {
		t.Fatalf("unexpected pass rate: %v", data["pass_rate"])
	}
}

func TestExamReportNotFound(t *testing.T) {
	h := &Handler{svc: &mockReportService{
		examReportFn: func(ctx context.Context, examID int64) (*ExamReport, error) {
			return nil, ErrExamNotFound
		},
	}}

	req := withParam(httptest.NewRequest(http.MethodGet, "/analytics/exams/99/report", nil), "id", "99")
	rr := httptest.NewRecorder()
	h.ExamReport(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestExportExamXLSXHeaders(t *testing.T) {
	h := &Handler{svc: &mockReportService{
		exportExamFn: func(ctx context.Context, examID int64) ([]byte, string, error) {
			return []byte("spreadsheet-bytes"), "exam_7_report.xlsx", nil
		},
	}}

	req := withParam(httptest.NewRequest(http.MethodGet, "/analytics/exams/7/export", nil), "id", "7")
	rr := httptest.NewRecorder()
	h.ExportExamXLSX(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); cd != `attachment; filename="exam_7_report.xlsx"` {
		t.Fatalf("unexpected content disposition: %s", cd)
	}
	if rr.Body.String() != "spreadsheet-bytes" {
		t.Fatalf("body was not streamed through")
	}
}

func TestExportExamXLSXBadID(t *testing.T) {
	h := &Handler{svc: &mockReportService{}}

	req := withParam(httptest.NewRequest(http.MethodGet, "/analytics/exams/abc/export", nil), "id", "abc")
	rr := httptest.NewRecorder()
	h.ExportExamXLSX(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestLoginAttemptsOK(t *testing.T) {
	h := &Handler{svc: &mockReportService{
		loginAttemptsFn: func(ctx context.Context) (*LoginAttemptsReport, error) {
			return &LoginAttemptsReport{
				TotalAttempts: 10,
				TotalFailures: 4,
				FailuresByIP: []IPFailureCount{
					{IPAddress: "10.0.0.9", Failures: 3},
				},
			}, nil
		},
	}}

	req := httptest.NewRequest(http.MethodGet, "/analytics/login-attempts", nil)
	rr := httptest.NewRecorder()
	h.LoginAttempts(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	data := out["data"].(map[string]any)
	if data["total_failures"].(float64) != 4 {
		t.Fatalf("unexpected failure count: %v", data["total_failures"])
	}
}

package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"examhub/internal/auth"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc examService
}

type examService interface {
	CreateDraft(ctx context.Context, in CreateExamInput) (*Exam, error)
	Update(ctx context.Context, in UpdateExamInput) (*Exam, error)
	Schedule(ctx context.Context, in ScheduleInput) (*Exam, error)
	Publish(ctx context.Context, examID int64) (*PublishResult, error)
	Get(ctx context.Context, examID int64) (*Exam, error)
	List(ctx context.Context, f ListFilter) (*ListResult, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createExamRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Instructions string `json:"instructions"`
}

type scheduleExamRequest struct {
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes *int   `json:"duration_minutes"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req createExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	e, err := h.svc.CreateDraft(r.Context(), CreateExamInput{
		Title:        req.Title,
		Description:  req.Description,
		Instructions: req.Instructions,
		CreatedBy:    user.ID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrTitleRequired):
			writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "title is required"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{OK: true, Data: e})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	var req createExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	e, err := h.svc.Update(r.Context(), UpdateExamInput{
		ExamID:       examID,
		Title:        req.Title,
		Description:  req.Description,
		Instructions: req.Instructions,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		case errors.Is(err, ErrExamNotDraft):
			writeJSON(w, http.StatusConflict, apiResponse{OK: false, Error: "cannot edit a published exam"})
		case errors.Is(err, ErrTitleRequired):
			writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "title is required"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: e})
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	var req scheduleExamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	start, err1 := parseTime(req.StartTime)
	end, err2 := parseTime(req.EndTime)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "start_time and end_time must be RFC3339 timestamps"})
		return
	}

	e, err := h.svc.Schedule(r.Context(), ScheduleInput{
		ExamID:          examID,
		StartTime:       start,
		EndTime:         end,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		case errors.Is(err, ErrInvalidSchedule):
			writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "end time must be after start time"})
		case errors.Is(err, ErrExamNotDraft):
			writeJSON(w, http.StatusConflict, apiResponse{OK: false, Error: "cannot reschedule a published exam"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: e})
}

func (h *Handler) Publish(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	res, err := h.svc.Publish(r.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}

	if res.AlreadyPublished {
		writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: map[string]interface{}{
			"exam":   res.Exam,
			"status": "already published",
		}})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: res.Exam})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	e, err := h.svc.Get(r.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: e})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ListFilter{
		Search: q.Get("search"),
		Status: q.Get("status"),
		Sort:   q.Get("sort"),
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Page = n
		}
	}
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}

	res, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: res})
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func parseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("missing timestamp")
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04", v)
}

func writeJSON(w http.ResponseWriter, code int, payload apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

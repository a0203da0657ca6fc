package grading

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc gradingService
}

type gradingService interface {
	ExamStatus(ctx context.Context, examID int64) (string, error)
	TakeExam(ctx context.Context, examID int64) (*TakeView, error)
	Submit(ctx context.Context, in SubmitInput) (*Submission, error)
	ManualGrade(ctx context.Context, in ManualGradeInput) (*Submission, error)
	PublishGrades(ctx context.Context, examID int64) (*PublishGradesResult, error)
	ViewResults(ctx context.Context, submissionID int64) (*ResultView, error)
	ListSubmissions(ctx context.Context, examID int64) ([]Submission, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type submitRequest struct {
	StudentName string            `json:"student_name"`
	Answers     map[string]string `json:"answers"`
}

type manualGradeRequest struct {
	Points   map[string]int    `json:"points"`
	Comments map[string]string `json:"comments"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) TakeExam(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	view, err := h.svc.TakeExam(r.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		case errors.Is(err, ErrExamNotPublished):
			writeJSON(w, http.StatusForbidden, apiResponse{OK: false, Error: "exam is not available"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: view})
}

// Submit is the student path, so it refuses exams that are not published
// before handing off to the grading engine.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	status, err := h.svc.ExamStatus(r.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	if status != "published" {
		writeJSON(w, http.StatusForbidden, apiResponse{OK: false, Error: "exam is not available"})
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	answers := make(map[int64]string, len(req.Answers))
	for k, v := range req.Answers {
		qid, err := strconv.ParseInt(k, 10, 64)
		if err != nil || qid <= 0 {
			writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "answers keys must be question ids"})
			return
		}
		answers[qid] = v
	}

	sub, err := h.svc.Submit(r.Context(), SubmitInput{
		ExamID:      examID,
		StudentName: req.StudentName,
		Answers:     answers,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrStudentNameRequired):
			writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "student name is required"})
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{OK: true, Data: sub})
}

// StudentResults is the student-facing read: it only shows results once
// the submission has left pending.
func (h *Handler) StudentResults(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid submission id"})
		return
	}

	view, err := h.svc.ViewResults(r.Context(), submissionID)
	if err != nil {
		writeResultsError(w, err)
		return
	}
	if view.Submission.Status == StatusPending {
		writeJSON(w, http.StatusConflict, apiResponse{OK: false, Error: ErrResultsNotReady.Error()})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: view})
}

func (h *Handler) ViewSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid submission id"})
		return
	}

	view, err := h.svc.ViewResults(r.Context(), submissionID)
	if err != nil {
		writeResultsError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: view})
}

func (h *Handler) ManualGrade(w http.ResponseWriter, r *http.Request) {
	submissionID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid submission id"})
		return
	}

	var req manualGradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	points := make(map[int64]int, len(req.Points))
	for k, v := range req.Points {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "points keys must be answer ids"})
			return
		}
		points[id] = v
	}
	comments := make(map[int64]string, len(req.Comments))
	for k, v := range req.Comments {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil || id <= 0 {
			writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "comments keys must be answer ids"})
			return
		}
		comments[id] = v
	}

	sub, err := h.svc.ManualGrade(r.Context(), ManualGradeInput{
		SubmissionID: submissionID,
		Points:       points,
		Comments:     comments,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrSubmissionNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "submission not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: sub})
}

func (h *Handler) PublishGrades(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	res, err := h.svc.PublishGrades(r.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}

	if res.NoneFound {
		writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: map[string]interface{}{
			"published": 0,
			"warning":   "no graded submissions to publish",
		}})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: res})
}

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	items, err := h.svc.ListSubmissions(r.Context(), examID)
	if err != nil {
		switch {
		case errors.Is(err, ErrExamNotFound):
			writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
		default:
			writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		}
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: items})
}

func writeResultsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSubmissionNotFound):
		writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "submission not found"})
	default:
		writeJSON(w, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, code int, payload apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

package question

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	Add(ctx context.Context, in AddQuestionInput) (*Question, error)
	Edit(ctx context.Context, in EditQuestionInput) (*Question, error)
	Delete(ctx context.Context, examID, questionID int64) error
	List(ctx context.Context, examID int64) (*ListResult, error)
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type questionRequest struct {
	Text          string `json:"question_text"`
	Type          string `json:"question_type"`
	Points        int    `json:"points"`
	OptionA       string `json:"option_a"`
	OptionB       string `json:"option_b"`
	OptionC       string `json:"option_c"`
	OptionD       string `json:"option_d"`
	CorrectAnswer string `json:"correct_answer"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	q, err := h.svc.Add(r.Context(), AddQuestionInput{
		ExamID:        examID,
		Text:          req.Text,
		Type:          req.Type,
		Points:        req.Points,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectAnswer: req.CorrectAnswer,
	})
	if err != nil {
		writeQuestionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, apiResponse{OK: true, Data: q})
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}
	questionID, err := pathID(r, "questionID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid question id"})
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid request body"})
		return
	}

	q, err := h.svc.Edit(r.Context(), EditQuestionInput{
		ExamID:        examID,
		QuestionID:    questionID,
		Text:          req.Text,
		Points:        req.Points,
		OptionA:       req.OptionA,
		OptionB:       req.OptionB,
		OptionC:       req.OptionC,
		OptionD:       req.OptionD,
		CorrectAnswer: req.CorrectAnswer,
	})
	if err != nil {
		writeQuestionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: q})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}
	questionID, err := pathID(r, "questionID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid question id"})
		return
	}

	if err := h.svc.Delete(r.Context(), examID, questionID); err != nil {
		writeQuestionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: map[string]string{"status": "deleted"}})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	examID, err := pathID(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid exam id"})
		return
	}

	res, err := h.svc.List(r.Context(), examID)
	if err != nil {
		writeQuestionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{OK: true, Data: res})
}

func writeQuestionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrExamNotFound):
		writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "exam not found"})
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrQuestionMismatch):
		writeJSON(w, http.StatusNotFound, apiResponse{OK: false, Error: "question not found for this exam"})
	case errors.Is(err, ErrExamLocked):
		writeJSON(w, http.StatusConflict, apiResponse{OK: false, Error: "cannot modify questions of a published exam"})
	default:
		writeJSON(w, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
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

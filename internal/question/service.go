package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	ErrExamNotFound     = errors.New("exam not found")
	ErrExamLocked       = errors.New("exam is published and its questions are locked")
	ErrQuestionMismatch = errors.New("question does not belong to this exam")
)

const (
	TypeMCQ     = "mcq"
	TypeWritten = "written"
)

type Service struct {
	db *sql.DB
}

type Question struct {
	ID            int64     `json:"id"`
	ExamID        int64     `json:"exam_id"`
	Text          string    `json:"question_text"`
	Type          string    `json:"question_type"`
	Points        int       `json:"points"`
	OrderNum      int       `json:"order_num"`
	OptionA       *string   `json:"option_a,omitempty"`
	OptionB       *string   `json:"option_b,omitempty"`
	OptionC       *string   `json:"option_c,omitempty"`
	OptionD       *string   `json:"option_d,omitempty"`
	CorrectAnswer *string   `json:"correct_answer,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type AddQuestionInput struct {
	ExamID        int64
	Text          string
	Type          string
	Points        int
	OptionA       string
	OptionB       string
	OptionC       string
	OptionD       string
	CorrectAnswer string
}

type EditQuestionInput struct {
	ExamID        int64
	QuestionID    int64
	Text          string
	Points        int
	OptionA       string
	OptionB       string
	OptionC       string
	OptionD       string
	CorrectAnswer string
}

type ListStats struct {
	Total       int `json:"total"`
	MCQ         int `json:"mcq"`
	Written     int `json:"written"`
	TotalPoints int `json:"total_points"`
}

type ListResult struct {
	Items []Question `json:"items"`
	Stats ListStats  `json:"stats"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func validateCommon(text string, points int) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("question text is required")
	}
	if points <= 0 {
		return errors.New("points must be greater than zero")
	}
	return nil
}

func validateMCQFields(a, b, c, d, correct string) error {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" ||
		strings.TrimSpace(c) == "" || strings.TrimSpace(d) == "" {
		return errors.New("all four options are required for a multiple-choice question")
	}
	switch strings.ToUpper(strings.TrimSpace(correct)) {
	case "A", "B", "C", "D":
		return nil
	default:
		return errors.New("correct_answer must be one of A, B, C, D")
	}
}

// Add appends a question to a draft exam. Order numbers are monotonic per
// exam: always max existing plus one, so gaps remain after deletions.
func (s *Service) Add(ctx context.Context, in AddQuestionInput) (*Question, error) {
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	if in.Type != TypeMCQ && in.Type != TypeWritten {
		return nil, errors.New("question_type must be mcq or written")
	}
	if err := validateCommon(in.Text, in.Points); err != nil {
		return nil, err
	}
	if in.Type == TypeMCQ {
		if err := validateMCQFields(in.OptionA, in.OptionB, in.OptionC, in.OptionD, in.CorrectAnswer); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireDraftExamTx(ctx, tx, in.ExamID); err != nil {
		return nil, err
	}

	var orderNum int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(order_num), 0) + 1
		FROM questions
		WHERE exam_id = $1
	`, in.ExamID).Scan(&orderNum); err != nil {
		return nil, fmt.Errorf("next order num: %w", err)
	}

	var optA, optB, optC, optD, correct interface{}
	if in.Type == TypeMCQ {
		optA = strings.TrimSpace(in.OptionA)
		optB = strings.TrimSpace(in.OptionB)
		optC = strings.TrimSpace(in.OptionC)
		optD = strings.TrimSpace(in.OptionD)
		correct = strings.ToUpper(strings.TrimSpace(in.CorrectAnswer))
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO questions (
			exam_id, question_text, question_type, points, order_num,
			option_a, option_b, option_c, option_d, correct_answer, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, now()
		)
		RETURNING id, exam_id, question_text, question_type, points, order_num,
			option_a, option_b, option_c, option_d, correct_answer, created_at
	`, in.ExamID, strings.TrimSpace(in.Text), in.Type, in.Points, orderNum, optA, optB, optC, optD, correct)

	q, err := scanQuestion(row)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit add question: %w", err)
	}
	return q, nil
}

// Edit updates a question in place. The question type is fixed at
// creation and cannot change here.
func (s *Service) Edit(ctx context.Context, in EditQuestionInput) (*Question, error) {
	if err := validateCommon(in.Text, in.Points); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireDraftExamTx(ctx, tx, in.ExamID); err != nil {
		return nil, err
	}

	var qType string
	err = tx.QueryRowContext(ctx, `
		SELECT question_type
		FROM questions
		WHERE id = $1 AND exam_id = $2
		FOR UPDATE
	`, in.QuestionID, in.ExamID).Scan(&qType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionMismatch
		}
		return nil, fmt.Errorf("lock question: %w", err)
	}

	var optA, optB, optC, optD, correct interface{}
	if qType == TypeMCQ {
		if err := validateMCQFields(in.OptionA, in.OptionB, in.OptionC, in.OptionD, in.CorrectAnswer); err != nil {
			return nil, err
		}
		optA = strings.TrimSpace(in.OptionA)
		optB = strings.TrimSpace(in.OptionB)
		optC = strings.TrimSpace(in.OptionC)
		optD = strings.TrimSpace(in.OptionD)
		correct = strings.ToUpper(strings.TrimSpace(in.CorrectAnswer))
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE questions
		SET question_text = $3,
			points = $4,
			option_a = $5,
			option_b = $6,
			option_c = $7,
			option_d = $8,
			correct_answer = $9
		WHERE id = $1 AND exam_id = $2
		RETURNING id, exam_id, question_text, question_type, points, order_num,
			option_a, option_b, option_c, option_d, correct_answer, created_at
	`, in.QuestionID, in.ExamID, strings.TrimSpace(in.Text), in.Points, optA, optB, optC, optD, correct)

	q, err := scanQuestion(row)
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit edit question: %w", err)
	}
	return q, nil
}

// Delete hard-deletes a draft exam's question. Answers that referenced it
// stay behind untouched.
func (s *Service) Delete(ctx context.Context, examID, questionID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := requireDraftExamTx(ctx, tx, examID); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM questions
		WHERE id = $1 AND exam_id = $2
	`, questionID, examID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrQuestionMismatch
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete question: %w", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, examID int64) (*ListResult, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)
	`, examID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check exam: %w", err)
	}
	if !exists {
		return nil, ErrExamNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, question_text, question_type, points, order_num,
			option_a, option_b, option_c, option_d, correct_answer, created_at
		FROM questions
		WHERE exam_id = $1
		ORDER BY order_num ASC, id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	out := &ListResult{Items: make([]Question, 0, 16)}
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		out.Items = append(out.Items, *q)
		out.Stats.Total++
		out.Stats.TotalPoints += q.Points
		if q.Type == TypeMCQ {
			out.Stats.MCQ++
		} else {
			out.Stats.Written++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func requireDraftExamTx(ctx context.Context, tx *sql.Tx, examID int64) error {
	var status string
	err := tx.QueryRowContext(ctx, `
		SELECT status FROM exams WHERE id = $1 FOR UPDATE
	`, examID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrExamNotFound
		}
		return fmt.Errorf("lock exam: %w", err)
	}
	if status != "draft" {
		return ErrExamLocked
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestion(row rowScanner) (*Question, error) {
	var q Question
	var optA, optB, optC, optD, correct sql.NullString
	err := row.Scan(&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Points, &q.OrderNum,
		&optA, &optB, &optC, &optD, &correct, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	if optA.Valid {
		q.OptionA = &optA.String
	}
	if optB.Valid {
		q.OptionB = &optB.String
	}
	if optC.Valid {
		q.OptionC = &optC.String
	}
	if optD.Valid {
		q.OptionD = &optD.String
	}
	if correct.Valid {
		q.CorrectAnswer = &correct.String
	}
	return &q, nil
}

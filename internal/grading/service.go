package grading

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamNotPublished    = errors.New("exam is not open for submissions")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrStudentNameRequired = errors.New("student name is required")
	ErrResultsNotReady     = errors.New("results are not ready yet")
)

const (
	StatusPending   = "pending"
	StatusGraded    = "graded"
	StatusPublished = "published"
)

type Service struct {
	db *sql.DB
}

type Submission struct {
	ID          int64      `json:"id"`
	ExamID      int64      `json:"exam_id"`
	StudentName string     `json:"student_name"`
	TotalScore  int        `json:"total_score"`
	MaxScore    int        `json:"max_score"`
	Percentage  float64    `json:"percentage"`
	Status      string     `json:"status"`
	SubmittedAt time.Time  `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}

type Answer struct {
	ID                int64   `json:"id"`
	SubmissionID      int64   `json:"submission_id"`
	QuestionID        int64   `json:"question_id"`
	SelectedOption    *string `json:"selected_option,omitempty"`
	AnswerText        *string `json:"answer_text,omitempty"`
	IsCorrect         bool    `json:"is_correct"`
	PointsEarned      int     `json:"points_earned"`
	InstructorComment *string `json:"instructor_comment,omitempty"`
}

// QuestionView is the question snapshot carried alongside an answer in
// result and grading reads.
type QuestionView struct {
	ID            int64   `json:"id"`
	Text          string  `json:"question_text"`
	Type          string  `json:"question_type"`
	Points        int     `json:"points"`
	OrderNum      int     `json:"order_num"`
	OptionA       *string `json:"option_a,omitempty"`
	OptionB       *string `json:"option_b,omitempty"`
	OptionC       *string `json:"option_c,omitempty"`
	OptionD       *string `json:"option_d,omitempty"`
	CorrectAnswer *string `json:"correct_answer,omitempty"`
}

type AnsweredQuestion struct {
	Answer   Answer       `json:"answer"`
	Question QuestionView `json:"question"`
}

type ResultView struct {
	Submission Submission         `json:"submission"`
	Items      []AnsweredQuestion `json:"items"`
}

// TakeView is the student-facing exam paper: published exam metadata and
// its questions stripped of correct answers.
type TakeView struct {
	ExamID       int64          `json:"exam_id"`
	Title        string         `json:"title"`
	Description  *string        `json:"description,omitempty"`
	Instructions *string        `json:"instructions,omitempty"`
	Questions    []QuestionView `json:"questions"`
}

type SubmitInput struct {
	ExamID      int64
	StudentName string
	Answers     map[int64]string
}

type ManualGradeInput struct {
	SubmissionID int64
	Points       map[int64]int
	Comments     map[int64]string
}

type PublishGradesResult struct {
	Published int64 `json:"published"`
	NoneFound bool  `json:"none_found"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ExamStatus exposes the exam lifecycle state for the student gate.
func (s *Service) ExamStatus(ctx context.Context, examID int64) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM exams WHERE id = $1`, examID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrExamNotFound
		}
		return "", fmt.Errorf("query exam status: %w", err)
	}
	return status, nil
}

// TakeExam loads a published exam with its ordered questions, hiding the
// answer keys from the student payload.
func (s *Service) TakeExam(ctx context.Context, examID int64) (*TakeView, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, instructions, status
		FROM exams
		WHERE id = $1
	`, examID)

	var view TakeView
	var description, instructions sql.NullString
	var status string
	if err := row.Scan(&view.ExamID, &view.Title, &description, &instructions, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("query exam: %w", err)
	}
	if status != "published" {
		return nil, ErrExamNotPublished
	}
	if description.Valid {
		view.Description = &description.String
	}
	if instructions.Valid {
		view.Instructions = &instructions.String
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_text, question_type, points, order_num,
			option_a, option_b, option_c, option_d
		FROM questions
		WHERE exam_id = $1
		ORDER BY order_num ASC, id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("list exam questions: %w", err)
	}
	defer rows.Close()

	view.Questions = make([]QuestionView, 0, 16)
	for rows.Next() {
		var q QuestionView
		var a, b, c, d sql.NullString
		if err := rows.Scan(&q.ID, &q.Text, &q.Type, &q.Points, &q.OrderNum, &a, &b, &c, &d); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if a.Valid {
			q.OptionA = &a.String
		}
		if b.Valid {
			q.OptionB = &b.String
		}
		if c.Valid {
			q.OptionC = &c.String
		}
		if d.Valid {
			q.OptionD = &d.String
		}
		view.Questions = append(view.Questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return &view, nil
}

// Submit records a student's answer set and auto-grades what it can.
// MCQ answers score immediately; written answers persist ungraded. An
// unanswered MCQ question produces no answer row at all, while a written
// question always gets one, even with empty text. If the exam has no
// written questions the submission lands directly in graded.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Submission, error) {
	studentName := strings.TrimSpace(in.StudentName)
	if studentName == "" {
		return nil, ErrStudentNameRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var examExists bool
	if err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)
	`, in.ExamID).Scan(&examExists); err != nil {
		return nil, fmt.Errorf("check exam: %w", err)
	}
	if !examExists {
		return nil, ErrExamNotFound
	}

	sub := &Submission{
		ExamID:      in.ExamID,
		StudentName: studentName,
		Status:      StatusPending,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO submissions (exam_id, student_name, total_score, max_score, status, submitted_at)
		VALUES ($1, $2, 0, 0, 'pending', now())
		RETURNING id, submitted_at
	`, in.ExamID, studentName).Scan(&sub.ID, &sub.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, question_type, points, correct_answer
		FROM questions
		WHERE exam_id = $1
		ORDER BY order_num ASC, id ASC
	`, in.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list exam questions: %w", err)
	}

	type examQuestion struct {
		id      int64
		qType   string
		points  int
		correct string
	}
	questions := make([]examQuestion, 0, 16)
	for rows.Next() {
		var q examQuestion
		var correct sql.NullString
		if err := rows.Scan(&q.id, &q.qType, &q.points, &correct); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if correct.Valid {
			q.correct = correct.String
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	rows.Close()

	questionTypes := make([]string, 0, len(questions))
	for _, q := range questions {
		questionTypes = append(questionTypes, q.qType)
		sub.MaxScore += q.points

		raw, present := in.Answers[q.id]
		switch q.qType {
		case "mcq":
			res := ScoreMCQ(raw, q.correct, q.points)
			if !present || !res.Answered {
				continue
			}
			sub.TotalScore += res.Earned
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO answers (submission_id, question_id, selected_option, is_correct, points_earned)
				VALUES ($1, $2, $3, $4, $5)
			`, sub.ID, q.id, res.Selected, res.IsCorrect, res.Earned); err != nil {
				return nil, fmt.Errorf("insert mcq answer: %w", err)
			}
		default:
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO answers (submission_id, question_id, answer_text, is_correct, points_earned)
				VALUES ($1, $2, $3, FALSE, 0)
			`, sub.ID, q.id, raw); err != nil {
				return nil, fmt.Errorf("insert written answer: %w", err)
			}
		}
	}

	if StatusOnSubmit(questionTypes) == StatusGraded {
		sub.Status = StatusGraded
		var gradedAt time.Time
		err = tx.QueryRowContext(ctx, `
			UPDATE submissions
			SET total_score = $2, max_score = $3, status = 'graded', graded_at = now()
			WHERE id = $1
			RETURNING graded_at
		`, sub.ID, sub.TotalScore, sub.MaxScore).Scan(&gradedAt)
		if err != nil {
			return nil, fmt.Errorf("finalize submission: %w", err)
		}
		sub.GradedAt = &gradedAt
	} else {
		if _, err := tx.ExecContext(ctx, `
			UPDATE submissions
			SET total_score = $2, max_score = $3
			WHERE id = $1
		`, sub.ID, sub.TotalScore, sub.MaxScore); err != nil {
			return nil, fmt.Errorf("finalize submission: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}

	sub.Percentage = Percentage(sub.TotalScore, sub.MaxScore)
	return sub, nil
}

// ManualGrade sets points and comments on written answers and finalizes
// the submission. MCQ scores pass through untouched. Out-of-range points
// are clamped into [0, question points], and every call lands the
// submission in graded with a fresh graded_at, including re-grades of
// already published submissions.
func (s *Service) ManualGrade(ctx context.Context, in ManualGradeInput) (*Submission, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	sub, err := lockSubmissionTx(ctx, tx, in.SubmissionID)
	if err != nil {
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT a.id, a.points_earned, q.question_type, q.points
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.submission_id = $1
		ORDER BY q.order_num ASC, a.id ASC
	`, in.SubmissionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}

	type gradedAnswer struct {
		id        int64
		earned    int
		qType     string
		maxPoints int
	}
	answers := make([]gradedAnswer, 0, 16)
	for rows.Next() {
		var a gradedAnswer
		if err := rows.Scan(&a.id, &a.earned, &a.qType, &a.maxPoints); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	rows.Close()

	totalScore := 0
	for _, a := range answers {
		if a.qType == "mcq" {
			totalScore += a.earned
			continue
		}

		earned := a.earned
		if p, ok := in.Points[a.id]; ok {
			earned = ClampPoints(p, a.maxPoints)
		}
		isCorrect := earned == a.maxPoints

		var comment interface{}
		if c, ok := in.Comments[a.id]; ok {
			if c = strings.TrimSpace(c); c != "" {
				comment = c
			}
		}

		if comment != nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE answers
				SET points_earned = $2, is_correct = $3, instructor_comment = $4
				WHERE id = $1
			`, a.id, earned, isCorrect, comment)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE answers
				SET points_earned = $2, is_correct = $3
				WHERE id = $1
			`, a.id, earned, isCorrect)
		}
		if err != nil {
			return nil, fmt.Errorf("update answer: %w", err)
		}
		totalScore += earned
	}

	// max_score stays the snapshot taken at submit time: it covers every
	// question, including unanswered MCQs that have no answer row.
	maxScore := sub.MaxScore

	var gradedAt time.Time
	err = tx.QueryRowContext(ctx, `
		UPDATE submissions
		SET total_score = $2, max_score = $3, status = 'graded', graded_at = now()
		WHERE id = $1
		RETURNING graded_at
	`, in.SubmissionID, totalScore, maxScore).Scan(&gradedAt)
	if err != nil {
		return nil, fmt.Errorf("finalize grading: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit manual grade: %w", err)
	}

	sub.TotalScore = totalScore
	sub.MaxScore = maxScore
	sub.Status = StatusGraded
	sub.GradedAt = &gradedAt
	sub.Percentage = Percentage(totalScore, maxScore)
	return sub, nil
}

// PublishGrades releases every graded submission of an exam. Pending
// submissions are left alone; when nothing is graded the call is a no-op
// reported to the caller, not an error.
func (s *Service) PublishGrades(ctx context.Context, examID int64) (*PublishGradesResult, error) {
	var examExists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)
	`, examID).Scan(&examExists); err != nil {
		return nil, fmt.Errorf("check exam: %w", err)
	}
	if !examExists {
		return nil, ErrExamNotFound
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status = 'published'
		WHERE exam_id = $1
		  AND status = 'graded'
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("publish grades: %w", err)
	}
	affected, _ := res.RowsAffected()
	return &PublishGradesResult{Published: affected, NoneFound: affected == 0}, nil
}

// ViewResults returns a submission with its answers paired to question
// snapshots, ordered the way the exam presented them.
func (s *Service) ViewResults(ctx context.Context, submissionID int64) (*ResultView, error) {
	sub, err := s.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.submission_id, a.question_id, a.selected_option, a.answer_text,
			a.is_correct, a.points_earned, a.instructor_comment,
			q.id, q.question_text, q.question_type, q.points, q.order_num,
			q.option_a, q.option_b, q.option_c, q.option_d, q.correct_answer
		FROM answers a
		JOIN questions q ON q.id = a.question_id
		WHERE a.submission_id = $1
		ORDER BY q.order_num ASC, a.id ASC
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list result answers: %w", err)
	}
	defer rows.Close()

	out := &ResultView{Submission: *sub, Items: make([]AnsweredQuestion, 0, 16)}
	for rows.Next() {
		var item AnsweredQuestion
		var selected, text, comment sql.NullString
		var oa, ob, oc, od, correct sql.NullString
		if err := rows.Scan(
			&item.Answer.ID, &item.Answer.SubmissionID, &item.Answer.QuestionID, &selected, &text,
			&item.Answer.IsCorrect, &item.Answer.PointsEarned, &comment,
			&item.Question.ID, &item.Question.Text, &item.Question.Type, &item.Question.Points, &item.Question.OrderNum,
			&oa, &ob, &oc, &od, &correct,
		); err != nil {
			return nil, fmt.Errorf("scan result answer: %w", err)
		}
		if selected.Valid {
			item.Answer.SelectedOption = &selected.String
		}
		if text.Valid {
			item.Answer.AnswerText = &text.String
		}
		if comment.Valid {
			item.Answer.InstructorComment = &comment.String
		}
		if oa.Valid {
			item.Question.OptionA = &oa.String
		}
		if ob.Valid {
			item.Question.OptionB = &ob.String
		}
		if oc.Valid {
			item.Question.OptionC = &oc.String
		}
		if od.Valid {
			item.Question.OptionD = &od.String
		}
		if correct.Valid {
			item.Question.CorrectAnswer = &correct.String
		}
		out.Items = append(out.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result answers: %w", err)
	}
	return out, nil
}

func (s *Service) GetSubmission(ctx context.Context, submissionID int64) (*Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, student_name, total_score, max_score, status, submitted_at, graded_at
		FROM submissions
		WHERE id = $1
	`, submissionID)

	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("query submission: %w", err)
	}
	return sub, nil
}

func (s *Service) ListSubmissions(ctx context.Context, examID int64) ([]Submission, error) {
	var examExists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM exams WHERE id = $1)
	`, examID).Scan(&examExists); err != nil {
		return nil, fmt.Errorf("check exam: %w", err)
	}
	if !examExists {
		return nil, ErrExamNotFound
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, exam_id, student_name, total_score, max_score, status, submitted_at, graded_at
		FROM submissions
		WHERE exam_id = $1
		ORDER BY submitted_at DESC, id DESC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	out := make([]Submission, 0, 16)
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		out = append(out, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return out, nil
}

func lockSubmissionTx(ctx context.Context, tx *sql.Tx, submissionID int64) (*Submission, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, exam_id, student_name, total_score, max_score, status, submitted_at, graded_at
		FROM submissions
		WHERE id = $1
		FOR UPDATE
	`, submissionID)

	sub, err := scanSubmission(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("lock submission: %w", err)
	}
	return sub, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (*Submission, error) {
	var sub Submission
	var gradedAt sql.NullTime
	err := row.Scan(&sub.ID, &sub.ExamID, &sub.StudentName, &sub.TotalScore, &sub.MaxScore, &sub.Status, &sub.SubmittedAt, &gradedAt)
	if err != nil {
		return nil, err
	}
	if gradedAt.Valid {
		sub.GradedAt = &gradedAt.Time
	}
	sub.Percentage = Percentage(sub.TotalScore, sub.MaxScore)
	return &sub, nil
}

package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrExamNotFound    = errors.New("exam not found")
	ErrExamNotDraft    = errors.New("exam can only be modified while draft")
	ErrInvalidSchedule = errors.New("schedule requires start and end with end after start")
	ErrTitleRequired   = errors.New("title is required")
)

const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
)

type Service struct {
	db *sql.DB
}

type Exam struct {
	ID              int64      `json:"id"`
	Title           string     `json:"title"`
	Description     *string    `json:"description,omitempty"`
	Instructions    *string    `json:"instructions,omitempty"`
	Status          string     `json:"status"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	CreatedBy       int64      `json:"created_by"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type CreateExamInput struct {
	Title        string
	Description  string
	Instructions string
	CreatedBy    int64
}

type UpdateExamInput struct {
	ExamID       int64
	Title        string
	Description  string
	Instructions string
}

type ScheduleInput struct {
	ExamID          int64
	StartTime       time.Time
	EndTime         time.Time
	DurationMinutes *int
}

type ListFilter struct {
	Search string
	Status string
	Sort   string
	Page   int
	Limit  int
}

type ListCounts struct {
	Draft     int64 `json:"draft"`
	Published int64 `json:"published"`
	Total     int64 `json:"total"`
}

type ListResult struct {
	Items  []Exam     `json:"items"`
	Counts ListCounts `json:"counts"`
	Page   int        `json:"page"`
	Limit  int        `json:"limit"`
}

// PublishResult distinguishes a real transition from the no-op case where
// the exam was already published.
type PublishResult struct {
	Exam             *Exam `json:"exam"`
	AlreadyPublished bool  `json:"already_published"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) CreateDraft(ctx context.Context, in CreateExamInput) (*Exam, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO exams (title, description, instructions, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, 'draft', $4, now(), now())
		RETURNING id, title, description, instructions, status, start_time, end_time, duration_minutes, created_by, created_at, updated_at
	`, title, nullableString(in.Description), nullableString(in.Instructions), in.CreatedBy)

	e, err := scanExam(row)
	if err != nil {
		return nil, fmt.Errorf("insert exam: %w", err)
	}
	return e, nil
}

func (s *Service) Update(ctx context.Context, in UpdateExamInput) (*Exam, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrTitleRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status, err := examStatusTx(ctx, tx, in.ExamID)
	if err != nil {
		return nil, err
	}
	if status != StatusDraft {
		return nil, ErrExamNotDraft
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE exams
		SET title = $2,
			description = $3,
			instructions = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING id, title, description, instructions, status, start_time, end_time, duration_minutes, created_by, created_at, updated_at
	`, in.ExamID, title, nullableString(in.Description), nullableString(in.Instructions))

	e, err := scanExam(row)
	if err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return e, nil
}

func (s *Service) Schedule(ctx context.Context, in ScheduleInput) (*Exam, error) {
	if in.StartTime.IsZero() || in.EndTime.IsZero() || !in.EndTime.After(in.StartTime) {
		return nil, ErrInvalidSchedule
	}
	if in.DurationMinutes != nil && *in.DurationMinutes <= 0 {
		return nil, ErrInvalidSchedule
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status, err := examStatusTx(ctx, tx, in.ExamID)
	if err != nil {
		return nil, err
	}
	if status == StatusPublished {
		return nil, ErrExamNotDraft
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE exams
		SET start_time = $2,
			end_time = $3,
			duration_minutes = $4,
			status = 'scheduled',
			updated_at = now()
		WHERE id = $1
		RETURNING id, title, description, instructions, status, start_time, end_time, duration_minutes, created_by, created_at, updated_at
	`, in.ExamID, in.StartTime, in.EndTime, nullableInt(in.DurationMinutes))

	e, err := scanExam(row)
	if err != nil {
		return nil, fmt.Errorf("schedule exam: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit schedule: %w", err)
	}
	return e, nil
}

// Publish moves an exam to published. Publishing twice is not an error,
// the second call reports the no-op instead.
func (s *Service) Publish(ctx context.Context, examID int64) (*PublishResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	status, err := examStatusTx(ctx, tx, examID)
	if err != nil {
		return nil, err
	}

	if status == StatusPublished {
		row := tx.QueryRowContext(ctx, `
			SELECT id, title, description, instructions, status, start_time, end_time, duration_minutes, created_by, created_at, updated_at
			FROM exams WHERE id = $1
		`, examID)
		e, err := scanExam(row)
		if err != nil {
			return nil, fmt.Errorf("load exam: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit publish: %w", err)
		}
		return &PublishResult{Exam: e, AlreadyPublished: true}, nil
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE exams
		SET status = 'published',
			updated_at = now()
		WHERE id = $1
		RETURNING id, title, description, instructions, status, start_time, end_time, duration_minutes, created_by, created_at, updated_at
	`, examID)

	e, err := scanExam(row)
	if err != nil {
		return nil, fmt.Errorf("publish exam: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit publish: %w", err)
	}
	return &PublishResult{Exam: e}, nil
}

func (s *Service) Get(ctx context.Context, examID int64) (*Exam, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, instructions, status, start_time, end_time, duration_minutes, created_by, created_at, updated_at
		FROM exams
		WHERE id = $1
	`, examID)

	e, err := scanExam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("query exam: %w", err)
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	status := strings.ToLower(strings.TrimSpace(f.Status))
	switch status {
	case "", "all":
		status = ""
	case StatusDraft, StatusScheduled, StatusPublished:
	default:
		return nil, errors.New("invalid status filter")
	}

	order := "ORDER BY created_at DESC, id DESC"
	if strings.ToLower(strings.TrimSpace(f.Sort)) == "oldest" {
		order = "ORDER BY created_at ASC, id ASC"
	}

	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	search := strings.TrimSpace(f.Search)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, description, instructions, status, start_time, end_time, duration_minutes, created_by, created_at, updated_at
		FROM exams
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR COALESCE(description,'') ILIKE '%' || $2 || '%')
		`+order+`
		LIMIT $3
		OFFSET $4
	`, status, search, f.Limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	out := &ListResult{
		Items: make([]Exam, 0, f.Limit),
		Page:  f.Page,
		Limit: f.Limit,
	}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		out.Items = append(out.Items, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exams: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'draft'),
			COUNT(*) FILTER (WHERE status = 'published'),
			COUNT(*)
		FROM exams
	`).Scan(&out.Counts.Draft, &out.Counts.Published, &out.Counts.Total); err != nil {
		return nil, fmt.Errorf("count exams: %w", err)
	}

	return out, nil
}

// Status returns just the lifecycle state, for callers that gate on it
// without needing the full record.
func (s *Service) Status(ctx context.Context, examID int64) (string, error) {
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

func examStatusTx(ctx context.Context, tx *sql.Tx, examID int64) (string, error) {
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM exams WHERE id = $1 FOR UPDATE`, examID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrExamNotFound
		}
		return "", fmt.Errorf("lock exam: %w", err)
	}
	return status, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExam(row rowScanner) (*Exam, error) {
	var e Exam
	var description, instructions sql.NullString
	var startTime, endTime sql.NullTime
	var duration sql.NullInt64
	err := row.Scan(&e.ID, &e.Title, &description, &instructions, &e.Status, &startTime, &endTime, &duration, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if description.Valid {
		e.Description = &description.String
	}
	if instructions.Valid {
		e.Instructions = &instructions.String
	}
	if startTime.Valid {
		e.StartTime = &startTime.Time
	}
	if endTime.Valid {
		e.EndTime = &endTime.Time
	}
	if duration.Valid {
		d := int(duration.Int64)
		e.DurationMinutes = &d
	}
	return &e, nil
}

func nullableString(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

package report

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"examhub/internal/grading"
)

var ErrExamNotFound = errors.New("exam not found")

// distributionLabels fixes the bucket order for score distributions.
var distributionLabels = []string{"90-100", "80-89", "70-79", "60-69", "50-59", "Below 50"}

type Service struct {
	db               *sql.DB
	passThresholdPct float64
}

func NewService(db *sql.DB, passThresholdPct float64) *Service {
	if passThresholdPct <= 0 {
		passThresholdPct = 50
	}
	return &Service{db: db, passThresholdPct: passThresholdPct}
}

type DistributionBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type SubmissionRow struct {
	ID          int64      `json:"id"`
	StudentName string     `json:"student_name"`
	TotalScore  int        `json:"total_score"`
	MaxScore    int        `json:"max_score"`
	Percentage  float64    `json:"percentage"`
	Status      string     `json:"status"`
	Passed      bool       `json:"passed"`
	SubmittedAt time.Time  `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}

type ExamReport struct {
	ExamID           int64                `json:"exam_id"`
	Title            string               `json:"title"`
	Description      *string              `json:"description,omitempty"`
	Status           string               `json:"status"`
	Participants     int                  `json:"participants"`
	GradedCount      int                  `json:"graded_count"`
	PendingCount     int                  `json:"pending_count"`
	AverageScore     float64              `json:"average_score"`
	HighestScore     float64              `json:"highest_score"`
	LowestScore      float64              `json:"lowest_score"`
	PassCount        int                  `json:"pass_count"`
	FailCount        int                  `json:"fail_count"`
	PassRate         float64              `json:"pass_rate"`
	PassThresholdPct float64              `json:"pass_threshold_pct"`
	Distribution     []DistributionBucket `json:"distribution"`
	Submissions      []SubmissionRow      `json:"submissions"`
}

// ExamReport aggregates every submission of an exam into score statistics.
// Pending submissions count as participants but stay out of the score math
// since their written answers have not been graded yet.
func (s *Service) ExamReport(ctx context.Context, examID int64) (*ExamReport, error) {
	rep := &ExamReport{
		ExamID:           examID,
		PassThresholdPct: s.passThresholdPct,
		Distribution:     newDistribution(),
		Submissions:      make([]SubmissionRow, 0),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT title, description, status
		FROM exams
		WHERE id = $1
	`, examID).Scan(&rep.Title, &rep.Description, &rep.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load exam: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_name, total_score, max_score, status, submitted_at, graded_at
		FROM submissions
		WHERE exam_id = $1
		ORDER BY submitted_at DESC, id DESC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}
	defer rows.Close()

	var sum float64
	for rows.Next() {
		var row SubmissionRow
		var gradedAt sql.NullTime
		if err := rows.Scan(&row.ID, &row.StudentName, &row.TotalScore, &row.MaxScore, &row.Status, &row.SubmittedAt, &gradedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if gradedAt.Valid {
			t := gradedAt.Time
			row.GradedAt = &t
		}
		row.Percentage = grading.Percentage(row.TotalScore, row.MaxScore)
		rep.Participants++

		if row.Status == grading.StatusPending {
			rep.PendingCount++
			rep.Submissions = append(rep.Submissions, row)
			continue
		}

		row.Passed = row.Percentage >= s.passThresholdPct
		rep.GradedCount++
		sum += row.Percentage
		if rep.GradedCount == 1 {
			rep.HighestScore = row.Percentage
			rep.LowestScore = row.Percentage
		} else {
			if row.Percentage > rep.HighestScore {
				rep.HighestScore = row.Percentage
			}
			if row.Percentage < rep.LowestScore {
				rep.LowestScore = row.Percentage
			}
		}
		if row.Passed {
			rep.PassCount++
		} else {
			rep.FailCount++
		}
		bucketFor(rep.Distribution, row.Percentage)
		rep.Submissions = append(rep.Submissions, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}

	if rep.GradedCount > 0 {
		rep.AverageScore = round2(sum / float64(rep.GradedCount))
		rep.PassRate = round2(float64(rep.PassCount) / float64(rep.GradedCount) * 100)
	}
	return rep, nil
}

func newDistribution() []DistributionBucket {
	buckets := make([]DistributionBucket, len(distributionLabels))
	for i, label := range distributionLabels {
		buckets[i] = DistributionBucket{Label: label}
	}
	return buckets
}

// bucketFor increments the bucket a percentage falls into.
func bucketFor(buckets []DistributionBucket, pct float64) {
	idx := len(buckets) - 1
	switch {
	case pct >= 90:
		idx = 0
	case pct >= 80:
		idx = 1
	case pct >= 70:
		idx = 2
	case pct >= 60:
		idx = 3
	case pct >= 50:
		idx = 4
	}
	buckets[idx].Count++
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ExportExamXLSX renders the exam report as a spreadsheet: a metadata block,
// the aggregate statistics, then one row per submission.
func (s *Service) ExportExamXLSX(ctx context.Context, examID int64) ([]byte, string, error) {
	rep, err := s.ExamReport(ctx, examID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	setCell := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	setCell(1, 1, "Exam Report")
	setCell(1, 2, "Title")
	setCell(2, 2, rep.Title)
	if rep.Description != nil {
		setCell(1, 3, "Description")
		setCell(2, 3, *rep.Description)
	}
	setCell(1, 4, "Total Submissions")
	setCell(2, 4, rep.Participants)
	setCell(1, 5, "Generated At")
	setCell(2, 5, time.Now().Format("2006-01-02 15:04:05"))

	setCell(1, 7, "Average Score")
	setCell(2, 7, rep.AverageScore)
	setCell(1, 8, "Highest Score")
	setCell(2, 8, rep.HighestScore)
	setCell(1, 9, "Lowest Score")
	setCell(2, 9, rep.LowestScore)
	setCell(1, 10, fmt.Sprintf("Pass Rate (>= %.0f%%)", rep.PassThresholdPct))
	setCell(2, 10, rep.PassRate)

	headers := []string{"student_name", "total_score", "max_score", "percentage", "status", "result", "submitted_at"}
	headerRow := 12
	for i, h := range headers {
		setCell(i+1, headerRow, h)
	}
	for i, sub := range rep.Submissions {
		row := headerRow + 1 + i
		result := "FAIL"
		if sub.Status == grading.StatusPending {
			result = "PENDING"
		} else if sub.Passed {
			result = "PASS"
		}
		values := []any{
			sub.StudentName,
			sub.TotalScore,
			sub.MaxScore,
			sub.Percentage,
			sub.Status,
			result,
			sub.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			setCell(col+1, row, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "G", 22)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, "", fmt.Errorf("write excel: %w", err)
	}
	filename := fmt.Sprintf("exam_%d_report.xlsx", examID)
	return buf.Bytes(), filename, nil
}

type LoginAttemptRow struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	IPAddress string    `json:"ip_address"`
	Success   bool      `json:"success"`
	CreatedAt time.Time `json:"created_at"`
}

type IPFailureCount struct {
	IPAddress string `json:"ip_address"`
	Failures  int    `json:"failures"`
}

type LoginAttemptsReport struct {
	TotalAttempts  int               `json:"total_attempts"`
	TotalFailures  int               `json:"total_failures"`
	RecentFailures []LoginAttemptRow `json:"recent_failures"`
	FailuresByIP   []IPFailureCount  `json:"failures_by_ip"`
}

func (s *Service) LoginAttempts(ctx context.Context) (*LoginAttemptsReport, error) {
	rep := &LoginAttemptsReport{
		RecentFailures: make([]LoginAttemptRow, 0),
		FailuresByIP:   make([]IPFailureCount, 0),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE success = FALSE)
		FROM login_attempts
	`).Scan(&rep.TotalAttempts, &rep.TotalFailures)
	if err != nil {
		return nil, fmt.Errorf("count login attempts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, ip_address, success, created_at
		FROM login_attempts
		WHERE success = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT 50
	`)
	if err != nil {
		return nil, fmt.Errorf("load recent failures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var row LoginAttemptRow
		if err := rows.Scan(&row.ID, &row.Username, &row.IPAddress, &row.Success, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan login attempt: %w", err)
		}
		rep.RecentFailures = append(rep.RecentFailures, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate login attempts: %w", err)
	}

	ipRows, err := s.db.QueryContext(ctx, `
		SELECT ip_address, COUNT(*) AS failures
		FROM login_attempts
		WHERE success = FALSE
		GROUP BY ip_address
		ORDER BY failures DESC, ip_address ASC
		LIMIT 20
	`)
	if err != nil {
		return nil, fmt.Errorf("group failures by ip: %w", err)
	}
	defer ipRows.Close()
	for ipRows.Next() {
		var row IPFailureCount
		if err := ipRows.Scan(&row.IPAddress, &row.Failures); err != nil {
			return nil, fmt.Errorf("scan ip failures: %w", err)
		}
		rep.FailuresByIP = append(rep.FailuresByIP, row)
	}
	if err := ipRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ip failures: %w", err)
	}

	return rep, nil
}

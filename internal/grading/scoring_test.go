package grading

import "testing"

func TestScoreMCQ(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		correct     string
		points      int
		wantAnswer  bool
		wantCorrect bool
		wantEarned  int
	}{
		{name: "exact match", raw: "B", correct: "B", points: 10, wantAnswer: true, wantCorrect: true, wantEarned: 10},
		{name: "lowercase normalized", raw: "b", correct: "B", points: 10, wantAnswer: true, wantCorrect: true, wantEarned: 10},
		{name: "wrong option", raw: "A", correct: "B", points: 10, wantAnswer: true, wantCorrect: false, wantEarned: 0},
		{name: "blank is unanswered", raw: "", correct: "B", points: 10, wantAnswer: false, wantCorrect: false, wantEarned: 0},
		{name: "whitespace is unanswered", raw: "   ", correct: "B", points: 10, wantAnswer: false, wantCorrect: false, wantEarned: 0},
		{name: "padded selection", raw: " c ", correct: "C", points: 5, wantAnswer: true, wantCorrect: true, wantEarned: 5},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreMCQ(tc.raw, tc.correct, tc.points)
			if got.Answered != tc.wantAnswer {
				t.Fatalf("answered: got %v, want %v", got.Answered, tc.wantAnswer)
			}
			if got.IsCorrect != tc.wantCorrect {
				t.Fatalf("is_correct: got %v, want %v", got.IsCorrect, tc.wantCorrect)
			}
			if got.Earned != tc.wantEarned {
				t.Fatalf("earned: got %d, want %d", got.Earned, tc.wantEarned)
			}
		})
	}
}

func TestStatusOnSubmit(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  string
	}{
		{name: "all mcq grades immediately", types: []string{"mcq", "mcq", "mcq"}, want: StatusGraded},
		{name: "single mcq", types: []string{"mcq"}, want: StatusGraded},
		{name: "written stays pending", types: []string{"written"}, want: StatusPending},
		{name: "mixed stays pending", types: []string{"mcq", "written", "mcq"}, want: StatusPending},
		{name: "no questions", types: nil, want: StatusGraded},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := StatusOnSubmit(tc.types); got != tc.want {
				t.Fatalf("StatusOnSubmit(%v) = %q, want %q", tc.types, got, tc.want)
			}
		})
	}
}

func TestClampPoints(t *testing.T) {
	tests := []struct {
		name   string
		points int
		max    int
		want   int
	}{
		{name: "within range", points: 7, max: 10, want: 7},
		{name: "above max capped", points: 15, max: 10, want: 10},
		{name: "negative floored", points: -5, max: 10, want: 0},
		{name: "exact max", points: 10, max: 10, want: 10},
		{name: "zero", points: 0, max: 10, want: 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClampPoints(tc.points, tc.max); got != tc.want {
				t.Fatalf("ClampPoints(%d, %d) = %d, want %d", tc.points, tc.max, got, tc.want)
			}
		})
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		name  string
		total int
		max   int
		want  float64
	}{
		{name: "full marks", total: 30, max: 30, want: 100},
		{name: "two decimal rounding", total: 25, max: 30, want: 83.33},
		{name: "one third", total: 10, max: 30, want: 33.33},
		{name: "zero max", total: 0, max: 0, want: 0.0},
		{name: "zero score", total: 0, max: 50, want: 0.0},
		{name: "rounds up", total: 2, max: 3, want: 66.67},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Percentage(tc.total, tc.max); got != tc.want {
				t.Fatalf("Percentage(%d, %d) = %v, want %v", tc.total, tc.max, got, tc.want)
			}
		})
	}
}

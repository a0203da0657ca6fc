package question

import "testing"

func TestValidateCommon(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		points  int
		wantErr bool
	}{
		{name: "valid", text: "What is 2+2?", points: 5, wantErr: false},
		{name: "blank text", text: "   ", points: 5, wantErr: true},
		{name: "zero points", text: "What is 2+2?", points: 0, wantErr: true},
		{name: "negative points", text: "What is 2+2?", points: -3, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateCommon(tc.text, tc.points)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateMCQFields(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		c, d    string
		correct string
		wantErr bool
	}{
		{name: "valid uppercase", a: "1", b: "2", c: "3", d: "4", correct: "B", wantErr: false},
		{name: "valid lowercase normalized", a: "1", b: "2", c: "3", d: "4", correct: "c", wantErr: false},
		{name: "missing option", a: "1", b: "", c: "3", d: "4", correct: "A", wantErr: true},
		{name: "whitespace option", a: "1", b: "  ", c: "3", d: "4", correct: "A", wantErr: true},
		{name: "invalid correct answer", a: "1", b: "2", c: "3", d: "4", correct: "E", wantErr: true},
		{name: "empty correct answer", a: "1", b: "2", c: "3", d: "4", correct: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := validateMCQFields(tc.a, tc.b, tc.c, tc.d, tc.correct)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

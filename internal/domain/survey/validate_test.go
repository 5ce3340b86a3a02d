package survey

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func validAnswers() Answers {
	return Answers{
		Q1: "보통",
		Q2: []string{"협업"},
		Q3: "프로젝트 성과 창출",
		Q4: []string{"업무 프로세스 개선"},
	}
}

func TestValidate(t *testing.T) {
	q := Default()

	tests := []struct {
		name       string
		mutate     func(*Answers)
		wantFields []string
		wantMsg    string
	}{
		{name: "valid", mutate: func(*Answers) {}},
		{name: "q5 optional", mutate: func(a *Answers) { a.Q5 = "" }},
		{name: "missing q1", mutate: func(a *Answers) { a.Q1 = "" }, wantFields: []string{"q1"}, wantMsg: MsgRequired},
		{name: "empty multi", mutate: func(a *Answers) { a.Q2 = nil; a.Q4 = []string{} }, wantFields: []string{"q2", "q4"}, wantMsg: MsgRequired},
		{name: "unknown option", mutate: func(a *Answers) { a.Q3 = "휴식" }, wantFields: []string{"q3"}, wantMsg: MsgInvalidOption},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			a := validAnswers()
			tt.mutate(&a)

			err := q.Validate(a)
			if tt.wantFields == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Message != tt.wantMsg {
				t.Fatalf("message = %q, want %q", verr.Message, tt.wantMsg)
			}
			if !reflect.DeepEqual(verr.Fields, tt.wantFields) {
				t.Fatalf("fields = %v, want %v", verr.Fields, tt.wantFields)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	q, err := LoadFile("")
	if err != nil || q.OtherOption != "기타" {
		t.Fatalf("empty path should yield default, got %+v, %v", q, err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "questions.yaml")
	body := `title: 연말 설문
other_option: Other
questions:
  - id: q1
    label: Workload
    type: radio
    options: [High, Low]
  - id: q2
    label: Keywords
    type: checkbox
    options: [Growth, Other]
  - id: q3
    label: Goal
    type: radio
    options: [Skills]
  - id: q4
    label: Wishes
    type: checkbox
    options: [Process, Other]
  - id: q5
    label: Anything else
    type: textarea
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	q, err = LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if q.OtherPrefix() != "Other: " {
		t.Fatalf("prefix = %q", q.OtherPrefix())
	}
	if qq, ok := q.Question("q2"); !ok || !qq.HasOption("Growth") {
		t.Fatalf("q2 not loaded: %+v", qq)
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("other_option: x\nquestions: []\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFile(broken); !errors.Is(err, ErrInvalidQuestionnaire) {
		t.Fatalf("expected ErrInvalidQuestionnaire, got %v", err)
	}
}

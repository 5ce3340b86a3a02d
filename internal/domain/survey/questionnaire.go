package survey

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v2"
)

type Kind string

const (
	KindSingle Kind = "radio"
	KindMulti  Kind = "checkbox"
	KindText   Kind = "textarea"
)

type Question struct {
	ID          string   `yaml:"id" json:"id"`
	Label       string   `yaml:"label" json:"label"`
	Kind        Kind     `yaml:"type" json:"type"`
	Options     []string `yaml:"options,omitempty" json:"options,omitempty"`
	Placeholder string   `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
}

// Questionnaire is the static question content. The form shape is fixed
// (q1 single, q2 multi, q3 single, q4 multi, q5 free text); labels and
// options come from configuration.
type Questionnaire struct {
	Title       string     `yaml:"title" json:"title"`
	OtherOption string     `yaml:"other_option" json:"otherOption"`
	Questions   []Question `yaml:"questions" json:"questions"`
}

var ErrInvalidQuestionnaire = errors.New("invalid questionnaire")

var fixedShape = []struct {
	id   string
	kind Kind
}{
	{"q1", KindSingle},
	{"q2", KindMulti},
	{"q3", KindSingle},
	{"q4", KindMulti},
	{"q5", KindText},
}

func Default() Questionnaire {
	return Questionnaire{
		Title:       "검사파트 설문",
		OtherOption: "기타",
		Questions: []Question{
			{
				ID:      "q1",
				Label:   "작년 업무 강도는 어떠셨나요?",
				Kind:    KindSingle,
				Options: []string{"매우 높음", "높음", "보통", "낮음"},
			},
			{
				ID:      "q2",
				Label:   "작년 한 해 기억에 남는 키워드를 선택해주세요 (복수 선택 가능)",
				Kind:    KindMulti,
				Options: []string{"뿌듯함", "어려움", "협업", "성장", "도전", "기타"},
			},
			{
				ID:      "q3",
				Label:   "올해의 가장 큰 개인적 목표는 무엇인가요?",
				Kind:    KindSingle,
				Options: []string{"직무 역량 강화", "프로젝트 성과 창출", "일과 삶의 균형(워라밸)", "새로운 기술 도전"},
			},
			{
				ID:      "q4",
				Label:   "파트 운영 및 환경에 바라는 점을 선택해주세요 (복수 선택 가능)",
				Kind:    KindMulti,
				Options: []string{"업무 프로세스 개선", "물리적 근무 환경 개선", "기술 가이드라인 수립", "커리어 패스 지원", "기타"},
			},
			{
				ID:          "q5",
				Label:       "그 밖에 하고 싶은 말",
				Kind:        KindText,
				Placeholder: "궁금한 점, 건의사항, 배우고 싶은 기술, 기억나는 업무 등 자유롭게 적어주세요. (선택 사항)",
			},
		},
	}
}

// LoadFile reads a YAML questionnaire. An empty path yields Default().
func LoadFile(path string) (Questionnaire, error) {
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Questionnaire{}, fmt.Errorf("read questionnaire: %w", err)
	}

	var q Questionnaire
	if err := yaml.UnmarshalStrict(raw, &q); err != nil {
		return Questionnaire{}, fmt.Errorf("parse questionnaire: %w", err)
	}

	if err := q.Check(); err != nil {
		return Questionnaire{}, err
	}

	return q, nil
}

// Check verifies the questionnaire matches the fixed form shape.
func (q Questionnaire) Check() error {
	if q.OtherOption == "" {
		return fmt.Errorf("%w: other_option is required", ErrInvalidQuestionnaire)
	}

	if len(q.Questions) != len(fixedShape) {
		return fmt.Errorf("%w: expected %d questions, got %d", ErrInvalidQuestionnaire, len(fixedShape), len(q.Questions))
	}

	for i, want := range fixedShape {
		got := q.Questions[i]
		if got.ID != want.id || got.Kind != want.kind {
			return fmt.Errorf("%w: question %d must be %s/%s", ErrInvalidQuestionnaire, i+1, want.id, want.kind)
		}
		if want.kind != KindText && len(got.Options) == 0 {
			return fmt.Errorf("%w: %s has no options", ErrInvalidQuestionnaire, got.ID)
		}
	}

	return nil
}

func (q Questionnaire) Question(id string) (Question, bool) {
	for _, qq := range q.Questions {
		if qq.ID == id {
			return qq, true
		}
	}
	return Question{}, false
}

// OtherPrefix is the sentinel prefix carrying free text inside a multi-select value.
func (q Questionnaire) OtherPrefix() string {
	return q.OtherOption + ": "
}

func (q Question) HasOption(option string) bool {
	return slices.Contains(q.Options, option)
}

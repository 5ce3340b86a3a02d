package survey

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	MsgRequired      = "필수 문항에 답변해주세요."
	MsgInvalidOption = "선택할 수 없는 항목이 포함되어 있습니다."
)

var validate = validator.New()

// ValidationError is returned before any remote call when the form is
// incomplete. Message is safe to show to the user.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message + " (" + strings.Join(e.Fields, ", ") + ")"
}

type requiredAnswers struct {
	Q1 string   `validate:"required"`
	Q2 []string `validate:"min=1"`
	Q3 string   `validate:"required"`
	Q4 []string `validate:"min=1"`
}

// Validate checks required fields (q1..q4; q5 is optional) and that every
// selected value is one of the configured options.
func (q Questionnaire) Validate(a Answers) error {
	err := validate.Struct(requiredAnswers{Q1: a.Q1, Q2: a.Q2, Q3: a.Q3, Q4: a.Q4})
	if err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}

		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, strings.ToLower(fe.Field()))
		}
		return &ValidationError{Fields: fields, Message: MsgRequired}
	}

	var invalid []string
	check := func(id string, values ...string) {
		qq, ok := q.Question(id)
		if !ok {
			return
		}
		for _, v := range values {
			if !qq.HasOption(v) {
				invalid = append(invalid, id)
				return
			}
		}
	}

	check("q1", a.Q1)
	check("q2", a.Q2...)
	check("q3", a.Q3)
	check("q4", a.Q4...)

	if len(invalid) > 0 {
		return &ValidationError{Fields: invalid, Message: MsgInvalidOption}
	}

	return nil
}

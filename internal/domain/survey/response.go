package survey

import "time"

// Response is one row of the remote survey_responses table. UserID is unique.
type Response struct {
	ID        int64     `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Q1        string    `json:"q1"`
	Q2        []string  `json:"q2"`
	Q3        string    `json:"q3"`
	Q4        []string  `json:"q4"`
	Q5        string    `json:"q5"`
	CreatedAt time.Time `json:"created_at"`
}

// Submitter is the profile slice joined onto a response for the admin list.
type Submitter struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ResponseWithProfile struct {
	Response
	Submitter *Submitter `json:"profiles,omitempty"`
}

// Answers is the editable form state. Multi-select fields hold bare tags;
// free text attached to the other option lives in OtherText.
type Answers struct {
	Q1 string   `json:"q1"`
	Q2 []string `json:"q2"`
	Q3 string   `json:"q3"`
	Q4 []string `json:"q4"`
	Q5 string   `json:"q5"`
}

type OtherText struct {
	Q2 string `json:"q2"`
	Q4 string `json:"q4"`
}

func (a Answers) Clone() Answers {
	a.Q2 = cloneTags(a.Q2)
	a.Q4 = cloneTags(a.Q4)
	return a
}

func cloneTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

package survey

import (
	"slices"
	"strings"
)

// SplitOther reports whether value is a sentinel "<other>: <text>" entry and
// returns the embedded text.
func (q Questionnaire) SplitOther(value string) (string, bool) {
	return strings.CutPrefix(value, q.OtherPrefix())
}

// DecodeMulti turns stored multi-select values into bare tags plus the free
// text of the other option. The sentinel is replaced in place by the bare
// other tag so selection order is kept.
func (q Questionnaire) DecodeMulti(stored []string) ([]string, string) {
	tags := make([]string, 0, len(stored))
	other := ""

	for _, v := range stored {
		if text, ok := q.SplitOther(v); ok {
			other = text
			v = q.OtherOption
		}
		if !slices.Contains(tags, v) {
			tags = append(tags, v)
		}
	}

	return tags, other
}

// EncodeMulti is the inverse of DecodeMulti. The other tag carries its text
// only when the trimmed text is non-empty; otherwise the bare tag is stored.
func (q Questionnaire) EncodeMulti(tags []string, other string) []string {
	out := make([]string, 0, len(tags))
	text := strings.TrimSpace(other)

	for _, tag := range tags {
		if tag == q.OtherOption && text != "" {
			out = append(out, q.OtherPrefix()+text)
			continue
		}
		out = append(out, tag)
	}

	return out
}

func (q Questionnaire) Decode(r Response) (Answers, OtherText) {
	q2, o2 := q.DecodeMulti(r.Q2)
	q4, o4 := q.DecodeMulti(r.Q4)

	return Answers{
		Q1: r.Q1,
		Q2: q2,
		Q3: r.Q3,
		Q4: q4,
		Q5: r.Q5,
	}, OtherText{Q2: o2, Q4: o4}
}

// Encode builds the row to upsert for userID.
func (q Questionnaire) Encode(userID string, a Answers, o OtherText) Response {
	return Response{
		UserID: userID,
		Q1:     a.Q1,
		Q2:     q.EncodeMulti(a.Q2, o.Q2),
		Q3:     a.Q3,
		Q4:     q.EncodeMulti(a.Q4, o.Q4),
		Q5:     a.Q5,
	}
}

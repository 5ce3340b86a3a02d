// Package stats turns the full response set into the admin dashboard
// summary. Nothing here is persisted; the summary is rebuilt on every load.
package stats

import (
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
)

type OptionCount struct {
	Option  string `json:"option"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
	// Other marks the merged bucket of every other-option answer.
	Other bool `json:"other,omitempty"`
	// Unlisted marks a stored value that is not a configured option.
	Unlisted bool `json:"unlisted,omitempty"`
}

type QuestionStats struct {
	ID      string        `json:"id"`
	Label   string        `json:"label"`
	Kind    survey.Kind   `json:"type"`
	Options []OptionCount `json:"options"`
}

// OtherAnswer is a free-text fragment typed next to the other option.
type OtherAnswer struct {
	QuestionID string `json:"questionId"`
	Text       string `json:"text"`
}

type Summary struct {
	TotalRespondents int             `json:"totalRespondents"`
	LatestAt         *time.Time      `json:"latestAt,omitempty"`
	Questions        []QuestionStats `json:"questions"`
	Comments         []string        `json:"comments"`
	OtherAnswers     []OtherAnswer   `json:"otherAnswers"`
	// Degraded is set when the responses could not be fetched and the
	// summary is empty for that reason.
	Degraded bool `json:"degraded,omitempty"`
}

func (s Summary) Question(id string) (QuestionStats, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return QuestionStats{}, false
}

func (q QuestionStats) Option(name string) (OptionCount, bool) {
	for _, o := range q.Options {
		if o.Option == name {
			return o, true
		}
	}
	return OptionCount{}, false
}

// Aggregate counts each choice question across rows. A response counts at
// most once per option; every sentinel or bare other-tag answer lands in
// the single other bucket. Options are ordered by count, ties keep the
// configured option order.
func Aggregate(q survey.Questionnaire, rows []survey.Response) Summary {
	sum := Summary{
		TotalRespondents: len(rows),
		Questions:        make([]QuestionStats, 0, len(q.Questions)),
		Comments:         []string{},
		OtherAnswers:     []OtherAnswer{},
	}

	for _, qq := range q.Questions {
		if qq.Kind == survey.KindText {
			continue
		}
		sum.Questions = append(sum.Questions, countQuestion(q, qq, rows))
	}

	for _, r := range rows {
		if sum.LatestAt == nil || r.CreatedAt.After(*sum.LatestAt) {
			t := r.CreatedAt
			sum.LatestAt = &t
		}

		if text := strings.TrimSpace(r.Q5); text != "" {
			sum.Comments = append(sum.Comments, text)
		}

		for _, m := range []struct {
			id     string
			values []string
		}{{"q2", r.Q2}, {"q4", r.Q4}} {
			for _, v := range m.values {
				if text, ok := q.SplitOther(v); ok && strings.TrimSpace(text) != "" {
					sum.OtherAnswers = append(sum.OtherAnswers, OtherAnswer{QuestionID: m.id, Text: text})
				}
			}
		}
	}

	return sum
}

func countQuestion(q survey.Questionnaire, qq survey.Question, rows []survey.Response) QuestionStats {
	counts := make(map[string]int, len(qq.Options)+1)
	var unlisted []string
	otherSeen := false

	for _, r := range rows {
		seen := make(map[string]bool)

		for _, v := range answerValues(qq.ID, r) {
			if v == "" {
				continue
			}
			if _, ok := q.SplitOther(v); ok || v == q.OtherOption {
				v = q.OtherOption
				otherSeen = true
			}
			if seen[v] {
				continue
			}
			seen[v] = true
			counts[v]++

			if v != q.OtherOption && !qq.HasOption(v) && !slices.Contains(unlisted, v) {
				unlisted = append(unlisted, v)
			}
		}
	}

	opts := make([]OptionCount, 0, len(qq.Options)+len(unlisted)+1)
	for _, o := range qq.Options {
		opts = append(opts, OptionCount{Option: o, Count: counts[o], Other: o == q.OtherOption})
	}
	if otherSeen && !qq.HasOption(q.OtherOption) {
		opts = append(opts, OptionCount{Option: q.OtherOption, Count: counts[q.OtherOption], Other: true})
	}
	for _, v := range unlisted {
		opts = append(opts, OptionCount{Option: v, Count: counts[v], Unlisted: true})
	}

	for i := range opts {
		opts[i].Percent = percent(opts[i].Count, len(rows))
	}

	sort.SliceStable(opts, func(i, j int) bool {
		return opts[i].Count > opts[j].Count
	})

	return QuestionStats{ID: qq.ID, Label: qq.Label, Kind: qq.Kind, Options: opts}
}

func answerValues(id string, r survey.Response) []string {
	switch id {
	case "q1":
		return []string{r.Q1}
	case "q2":
		return r.Q2
	case "q3":
		return []string{r.Q3}
	case "q4":
		return r.Q4
	}
	return nil
}

func percent(count, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}

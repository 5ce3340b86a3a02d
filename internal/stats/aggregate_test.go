package stats

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/geocoder89/surveyhub/internal/domain/survey"
)

func rows(q1s ...string) []survey.Response {
	out := make([]survey.Response, 0, len(q1s))
	for _, v := range q1s {
		out = append(out, survey.Response{Q1: v, Q2: []string{"협업"}, Q3: "직무 역량 강화", Q4: []string{"기타"}})
	}
	return out
}

func TestAggregateSingleChoicePercent(t *testing.T) {
	sum := Aggregate(survey.Default(), rows("높음", "높음", "보통"))

	if sum.TotalRespondents != 3 {
		t.Fatalf("expected 3 respondents, got %d", sum.TotalRespondents)
	}

	q1, ok := sum.Question("q1")
	if !ok {
		t.Fatalf("missing q1")
	}

	want := []OptionCount{
		{Option: "높음", Count: 2, Percent: 67},
		{Option: "보통", Count: 1, Percent: 33},
		{Option: "매우 높음", Count: 0, Percent: 0},
		{Option: "낮음", Count: 0, Percent: 0},
	}
	if !reflect.DeepEqual(q1.Options, want) {
		t.Fatalf("got %+v\nwant %+v", q1.Options, want)
	}
}

func TestAggregateMergesOtherAnswers(t *testing.T) {
	in := []survey.Response{
		{Q1: "높음", Q2: []string{"기타: 야근"}, Q3: "직무 역량 강화", Q4: []string{"커리어 패스 지원"}},
		{Q1: "높음", Q2: []string{"기타"}, Q3: "직무 역량 강화", Q4: []string{"기타: 재택 확대"}},
		{Q1: "보통", Q2: []string{"협업", "협업", "기타: 회식"}, Q3: "직무 역량 강화", Q4: []string{"커리어 패스 지원"}},
	}

	sum := Aggregate(survey.Default(), in)

	q2, _ := sum.Question("q2")
	other, ok := q2.Option("기타")
	if !ok || other.Count != 3 || other.Percent != 100 || !other.Other {
		t.Fatalf("expected merged other bucket of 3, got %+v", other)
	}
	if q2.Options[0].Option != "기타" {
		t.Fatalf("expected other bucket first, got %+v", q2.Options)
	}

	collab, _ := q2.Option("협업")
	if collab.Count != 1 || collab.Percent != 33 {
		t.Fatalf("duplicate value counted twice within one response: %+v", collab)
	}

	wantOther := []OtherAnswer{
		{QuestionID: "q2", Text: "야근"},
		{QuestionID: "q4", Text: "재택 확대"},
		{QuestionID: "q2", Text: "회식"},
	}
	if !reflect.DeepEqual(sum.OtherAnswers, wantOther) {
		t.Fatalf("got %+v\nwant %+v", sum.OtherAnswers, wantOther)
	}
}

func TestAggregateTiesKeepOptionOrder(t *testing.T) {
	in := []survey.Response{
		{Q1: "낮음"},
		{Q1: "매우 높음"},
	}

	q1, _ := Aggregate(survey.Default(), in).Question("q1")

	got := make([]string, 0, len(q1.Options))
	for _, o := range q1.Options {
		got = append(got, o.Option)
	}
	want := []string{"매우 높음", "낮음", "높음", "보통"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestAggregateEmpty(t *testing.T) {
	sum := Aggregate(survey.Default(), nil)

	if sum.TotalRespondents != 0 || sum.LatestAt != nil {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(sum.Questions) != 4 {
		t.Fatalf("expected stats for the four choice questions, got %d", len(sum.Questions))
	}
	for _, q := range sum.Questions {
		for _, o := range q.Options {
			if o.Count != 0 || o.Percent != 0 {
				t.Fatalf("expected zeros, got %+v", o)
			}
		}
	}
	if sum.Comments == nil || sum.OtherAnswers == nil {
		t.Fatalf("expected empty, non-nil lists")
	}
}

func TestAggregateCommentsAndLatest(t *testing.T) {
	early := time.Date(2026, 12, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	in := []survey.Response{
		{Q1: "높음", Q5: "  고생하셨습니다 ", CreatedAt: late},
		{Q1: "보통", Q5: "   ", CreatedAt: early},
	}

	sum := Aggregate(survey.Default(), in)

	if !reflect.DeepEqual(sum.Comments, []string{"고생하셨습니다"}) {
		t.Fatalf("unexpected comments %q", sum.Comments)
	}
	if sum.LatestAt == nil || !sum.LatestAt.Equal(late) {
		t.Fatalf("expected latest %v, got %v", late, sum.LatestAt)
	}
}

func TestAggregateKeepsUnlistedValues(t *testing.T) {
	q1, _ := Aggregate(survey.Default(), rows("높음", "예전 선택지")).Question("q1")

	got, ok := q1.Option("예전 선택지")
	if !ok || got.Count != 1 || !got.Unlisted {
		t.Fatalf("expected unlisted value to be counted, got %+v", got)
	}
}

type fakeResponses struct {
	listFn func(ctx context.Context) ([]survey.ResponseWithProfile, error)
}

func (f *fakeResponses) GetByUser(ctx context.Context, userID string) (*survey.Response, error) {
	return nil, nil
}

func (f *fakeResponses) Upsert(ctx context.Context, r survey.Response) (survey.Response, error) {
	return r, nil
}

func (f *fakeResponses) ListWithProfiles(ctx context.Context) ([]survey.ResponseWithProfile, error) {
	return f.listFn(ctx)
}

func (f *fakeResponses) Delete(ctx context.Context, id int64) error {
	return nil
}

func TestServiceLoad(t *testing.T) {
	svc := NewService(survey.Default(), &fakeResponses{
		listFn: func(ctx context.Context) ([]survey.ResponseWithProfile, error) {
			return []survey.ResponseWithProfile{
				{Response: survey.Response{ID: 1, Q1: "높음"}},
				{Response: survey.Response{ID: 2, Q1: "보통"}},
			}, nil
		},
	}, nil)

	sum, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sum.TotalRespondents != 2 || sum.Degraded {
		t.Fatalf("unexpected summary %+v", sum)
	}
}

func TestServiceLoadDegrades(t *testing.T) {
	boom := errors.New("upstream timeout")
	svc := NewService(survey.Default(), &fakeResponses{
		listFn: func(ctx context.Context) ([]survey.ResponseWithProfile, error) {
			return nil, boom
		},
	}, nil)

	sum, err := svc.Load(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected error to be returned, got %v", err)
	}
	if !sum.Degraded || sum.TotalRespondents != 0 || len(sum.Questions) != 4 {
		t.Fatalf("expected empty degraded summary, got %+v", sum)
	}
}

package identity

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSyntheticID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "ascii", input: "admin", want: "u61646d696e@survey-system.com"},
		{name: "trims whitespace", input: "  admin\t\n", want: "u61646d696e@survey-system.com"},
		{name: "hangul", input: "홍길동", want: "ued998deab8b8eb8f99@survey-system.com"},
		{name: "zero padded", input: "\x01a", want: "u0161@survey-system.com"},
		{name: "empty", input: "", wantErr: ErrEmptyName},
		{name: "whitespace only", input: " \t ", wantErr: ErrEmptyName},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := SyntheticID(tt.input)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSyntheticID_DistinctNamesNeverCollide(t *testing.T) {
	names := []string{"a", "b", "ab", "a b", "김철수", "김철 수", "Admin", "admin", "admin1"}
	seen := map[string]string{}

	for _, n := range names {
		id, err := SyntheticID(n)
		if err != nil {
			t.Fatalf("SyntheticID(%q): %v", n, err)
		}
		if prev, ok := seen[id]; ok {
			t.Fatalf("%q and %q collide on %s", prev, n, id)
		}
		seen[id] = n
	}
}

func TestSyntheticID_Deterministic(t *testing.T) {
	a, _ := SyntheticID("이영희")
	b, _ := SyntheticID(" 이영희 ")

	if a != b {
		t.Fatalf("expected equal identities, got %s and %s", a, b)
	}
}

func TestDisplayNameRoundTrip(t *testing.T) {
	id, err := SyntheticID(" 박지민 ")
	if err != nil {
		t.Fatalf("SyntheticID: %v", err)
	}

	name, err := DisplayName(id)
	if err != nil {
		t.Fatalf("DisplayName: %v", err)
	}
	if name != "박지민" {
		t.Fatalf("got %q", name)
	}

	for _, bad := range []string{"someone@example.com", "u@survey-system.com", "uzz@survey-system.com"} {
		if _, err := DisplayName(bad); !errors.Is(err, ErrNotSyntheticID) {
			t.Fatalf("DisplayName(%q): expected ErrNotSyntheticID, got %v", bad, err)
		}
	}
}

func TestSecretNeverPrints(t *testing.T) {
	id, err := New("admin", "hunter22")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	out := fmt.Sprintf("%v %+v %#v %s", id.Secret, id, id, id.Secret)
	if strings.Contains(out, "hunter22") {
		t.Fatalf("secret leaked: %s", out)
	}
	if string(id.Secret) != "hunter22" {
		t.Fatalf("secret value lost")
	}
}

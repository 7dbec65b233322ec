package eligibility

import (
	"testing"

	"github.com/casevine/core/internal/models"
)

func TestComputeVerdict(t *testing.T) {
	cases := []struct {
		name   string
		scores []int
		want   models.Verdict
	}{
		{"four high scores", []int{5, 5, 5, 5, 1, 1, 1, 1, 1, 1}, models.VerdictStrong},
		{"three mid scores", []int{3, 3, 3, 1, 1, 1, 1, 1, 1, 1}, models.VerdictModerate},
		{"one mid score", []int{3, 1, 1, 1, 1, 1, 1, 1, 1, 1}, models.VerdictWeak},
		{"two mid scores", []int{3, 3, 1, 1, 1, 1, 1, 1, 1, 1}, models.VerdictWeak},
		{"all ones", []int{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, models.VerdictInsufficient},
		{"three fours still moderate", []int{4, 4, 4, 1, 1, 1, 1, 1, 1, 1}, models.VerdictModerate},
		{"all fives", []int{5, 5, 5, 5, 5, 5, 5, 5, 5, 5}, models.VerdictStrong},
	}
	for _, tc := range cases {
		if got := ComputeVerdict(tc.scores); got != tc.want {
			t.Fatalf("%s: ComputeVerdict(%v) = %q want %q", tc.name, tc.scores, got, tc.want)
		}
	}
}

func TestComputeVerdict_Deterministic(t *testing.T) {
	scores := []int{4, 4, 4, 4, 2, 3, 1, 1, 5, 1}
	first := ComputeVerdict(scores)
	for i := 0; i < 100; i++ {
		if got := ComputeVerdict(scores); got != first {
			t.Fatalf("verdict changed between runs: %q vs %q", first, got)
		}
	}
}

func TestClampScore(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 1: 1, 3: 3, 5: 5, 9: 5} {
		if got := clampScore(in); got != want {
			t.Fatalf("clampScore(%d) = %d want %d", in, got, want)
		}
	}
}

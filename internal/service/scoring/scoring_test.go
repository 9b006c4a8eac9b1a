package scoring

import (
	"errors"
	"math"
	"testing"

	"TradePulse/internal/domain/models"
)

func newService(t *testing.T) *Service {
	t.Helper()
	s, err := New(DefaultWeights())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestConvergenceDefaultWeightsScenario(t *testing.T) {
	s := newService(t)
	res, err := s.CalculateConvergence(80, 60, 70)
	if err != nil {
		t.Fatalf("CalculateConvergence: %v", err)
	}
	if res.Score != 71 {
		t.Errorf("score = %d, want 71", res.Score)
	}
	if res.Strength != models.StrengthStrong {
		t.Errorf("strength = %s, want STRONG", res.Strength)
	}
	if res.Breakdown["technical"] != 32 || res.Breakdown["sentiment"] != 18 || res.Breakdown["liquidity"] != 21 {
		t.Errorf("breakdown = %v", res.Breakdown)
	}
}

func TestConvergenceEqualsRoundedWeightedSum(t *testing.T) {
	s := newService(t)
	triples := [][3]float64{
		{0, 0, 0}, {100, 100, 100}, {50, 50, 50},
		{33.3, 66.6, 12.1}, {99.9, 0.1, 55.5}, {70, 70, 70},
	}
	for _, tr := range triples {
		res, err := s.CalculateConvergence(tr[0], tr[1], tr[2])
		if err != nil {
			t.Fatalf("CalculateConvergence(%v): %v", tr, err)
		}
		want := int(math.Round(tr[0]*0.4 + tr[1]*0.3 + tr[2]*0.3))
		if res.Score != want {
			t.Errorf("score(%v) = %d, want %d", tr, res.Score, want)
		}
	}
}

func TestConvergenceMonotoneInEachInput(t *testing.T) {
	s := newService(t)
	base, _ := s.CalculateConvergence(40, 40, 40)
	for _, bumped := range [][3]float64{{60, 40, 40}, {40, 60, 40}, {40, 40, 60}} {
		res, err := s.CalculateConvergence(bumped[0], bumped[1], bumped[2])
		if err != nil {
			t.Fatalf("CalculateConvergence: %v", err)
		}
		if res.Score < base.Score {
			t.Errorf("score decreased when raising an input: %v -> %d < %d", bumped, res.Score, base.Score)
		}
	}
}

func TestConvergenceRejectsOutOfRangeInputs(t *testing.T) {
	s := newService(t)
	bad := [][3]float64{
		{-1, 50, 50}, {50, 101, 50}, {50, 50, math.NaN()}, {math.Inf(1), 50, 50},
	}
	for _, tr := range bad {
		if _, err := s.CalculateConvergence(tr[0], tr[1], tr[2]); err == nil {
			t.Errorf("CalculateConvergence(%v) accepted invalid input", tr)
		}
	}
}

func TestStrengthBoundaries(t *testing.T) {
	s := newService(t)
	cases := []struct {
		score float64
		want  models.Strength
	}{
		{80, models.StrengthVeryStrong},
		{79, models.StrengthStrong},
		{70, models.StrengthStrong},
		{69, models.StrengthModerate},
		{60, models.StrengthModerate},
		{59, models.StrengthWeak},
		{0, models.StrengthWeak},
	}
	for _, tc := range cases {
		res, err := s.CalculateConvergence(tc.score, tc.score, tc.score)
		if err != nil {
			t.Fatalf("CalculateConvergence: %v", err)
		}
		if res.Strength != tc.want {
			t.Errorf("strength(%v) = %s, want %s", tc.score, res.Strength, tc.want)
		}
	}
}

func TestUpdateWeightsInvalidSumLeavesPriors(t *testing.T) {
	s := newService(t)
	err := s.UpdateWeights(Weights{Technical: 0.5, Sentiment: 0.3, Liquidity: 0.3})
	if err == nil {
		t.Fatal("expected validation error for weights summing to 1.1")
	}
	var vErr *models.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T", err)
	}
	if got := s.Weights(); got != DefaultWeights() {
		t.Errorf("weights changed after failed update: %+v", got)
	}
}

func TestUpdateWeightsValidSwap(t *testing.T) {
	s := newService(t)
	want := Weights{Technical: 0.5, Sentiment: 0.25, Liquidity: 0.25}
	if err := s.UpdateWeights(want); err != nil {
		t.Fatalf("UpdateWeights: %v", err)
	}
	if got := s.Weights(); got != want {
		t.Errorf("weights = %+v, want %+v", got, want)
	}
	res, err := s.CalculateConvergence(80, 60, 70)
	if err != nil {
		t.Fatalf("CalculateConvergence: %v", err)
	}
	if res.Score != 73 { // 40 + 15 + 17.5
		t.Errorf("score = %d, want 73", res.Score)
	}
}

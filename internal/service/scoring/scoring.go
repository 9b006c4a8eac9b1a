package scoring

import (
	"fmt"
	"math"
	"sync"

	"TradePulse/internal/domain/models"
)

// Strength thresholds for a convergence score.
const (
	veryStrongFloor = 80
	strongFloor     = 70
	moderateFloor   = 60
)

// weightTolerance is how far the weight sum may drift from 1.0.
const weightTolerance = 0.001

// Weights splits the convergence score between the three layers.
type Weights struct {
	Technical float64 `json:"technical"`
	Sentiment float64 `json:"sentiment"`
	Liquidity float64 `json:"liquidity"`
}

// DefaultWeights is the 40/30/30 split.
func DefaultWeights() Weights {
	return Weights{Technical: 0.4, Sentiment: 0.3, Liquidity: 0.3}
}

// Validate checks each weight is in [0,1] and the sum is 1 within tolerance.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"technical": w.Technical,
		"sentiment": w.Sentiment,
		"liquidity": w.Liquidity,
	} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return models.NewValidationError(name, fmt.Sprintf("weight %v out of [0,1]", v))
		}
	}
	if sum := w.Technical + w.Sentiment + w.Liquidity; math.Abs(sum-1) > weightTolerance {
		return models.NewValidationError("weights", fmt.Sprintf("must sum to 1.0, got %v", sum))
	}
	return nil
}

// Service combines the three layer scores into one convergence score.
// Weights are updatable at runtime; bad updates leave the priors intact.
type Service struct {
	mu      sync.RWMutex
	weights Weights
}

func New(w Weights) (*Service, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Service{weights: w}, nil
}

// Weights returns the current weight set.
func (s *Service) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// UpdateWeights swaps the weight set after validation. On failure the prior
// weights stay in effect.
func (s *Service) UpdateWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.weights = w
	s.mu.Unlock()
	return nil
}

// CalculateConvergence validates the three layer scores, computes the
// weighted sum rounded to the nearest integer, and classifies strength.
// The breakdown carries each layer's rounded contribution for traceability.
func (s *Service) CalculateConvergence(technical, sentiment, liquidity float64) (*models.ConvergenceResult, error) {
	for name, v := range map[string]float64{
		"technical": technical,
		"sentiment": sentiment,
		"liquidity": liquidity,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 100 {
			return nil, models.NewValidationError(name, fmt.Sprintf("score %v out of [0,100]", v))
		}
	}

	s.mu.RLock()
	w := s.weights
	s.mu.RUnlock()

	tc := technical * w.Technical
	sc := sentiment * w.Sentiment
	lc := liquidity * w.Liquidity
	score := int(math.Round(tc + sc + lc))

	return &models.ConvergenceResult{
		Score:    score,
		Strength: classify(score),
		Breakdown: map[string]float64{
			"technical": math.Round(tc*100) / 100,
			"sentiment": math.Round(sc*100) / 100,
			"liquidity": math.Round(lc*100) / 100,
		},
	}, nil
}

func classify(score int) models.Strength {
	switch {
	case score >= veryStrongFloor:
		return models.StrengthVeryStrong
	case score >= strongFloor:
		return models.StrengthStrong
	case score >= moderateFloor:
		return models.StrengthModerate
	default:
		return models.StrengthWeak
	}
}

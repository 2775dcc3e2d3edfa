package service

import (
	"math"

	"github.com/noah-isme/ctf-go-api/internal/models"
)

// CurrentValue evaluates the points a challenge is worth after solves distinct solvers.
//
// linear:      initial - decay*solves
// logarithmic: ((minimum-initial)/decay^2)*solves^2 + initial
//
// Both are floored at minimum. Static challenges and challenges without decay
// parameters keep their base value.
func CurrentValue(challenge models.Challenge, dynamic *models.DynamicChallenge, solves int64) int {
	if challenge.Type != models.ChallengeTypeDynamic || dynamic == nil {
		return challenge.Value
	}
	if solves < 0 {
		solves = 0
	}

	initial := float64(dynamic.Initial)
	minimum := float64(dynamic.Minimum)
	decay := float64(dynamic.Decay)
	n := float64(solves)

	var value float64
	switch dynamic.Function {
	case models.DecayLinear:
		value = initial - decay*n
	case models.DecayLogarithmic:
		if decay == 0 {
			value = minimum
			break
		}
		value = math.Ceil(((minimum-initial)/(decay*decay))*(n*n) + initial)
	default:
		value = initial
	}

	if value < minimum {
		value = minimum
	}

	return int(value)
}

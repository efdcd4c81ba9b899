// Package risk implements the Nohl risk assessment used on safety checklists:
// probability, severity and an optional frequency factor multiply into a score
// that maps onto a three-color traffic light.
package risk

import (
	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

// Color is the traffic-light classification. The German labels are the ones
// printed on operating instructions and are kept verbatim.
type Color string

const (
	ColorRed    Color = "ROT"
	ColorYellow Color = "GELB"
	ColorGreen  Color = "GRUEN"
)

// Rating is the outcome of a Nohl assessment.
type Rating struct {
	Score  int    `json:"score"`
	Color  Color  `json:"color"`
	Advice string `json:"advice"`
}

const (
	factorMin = 1
	factorMax = 4

	redThreshold    = 5
	yellowThreshold = 3
)

// Assess computes the Nohl rating from probability (E), severity (S) and
// frequency (H), each on a 1..4 scale. H defaults to 1 at the caller when the
// frequency factor is not assessed.
func Assess(e, s, h int) (Rating, error) {
	for _, v := range []int{e, s, h} {
		if v < factorMin || v > factorMax {
			return Rating{}, errors.NewValidationError("INVALID_RISK_FACTOR",
				"risk factors must be between 1 and 4")
		}
	}

	score := e * s * h
	switch {
	case score >= redThreshold:
		return Rating{Score: score, Color: ColorRed, Advice: "Hohes Risiko: Sofort handeln!"}, nil
	case score >= yellowThreshold:
		return Rating{Score: score, Color: ColorYellow, Advice: "Mittleres Risiko: Maßnahmen zeitnah umsetzen."}, nil
	default:
		return Rating{Score: score, Color: ColorGreen, Advice: "Akzeptabel, weiter überwachen."}, nil
	}
}

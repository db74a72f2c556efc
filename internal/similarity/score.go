package similarity

import "github.com/example/companion-matching/internal/models"

// ScoreWeights parameterize MatchScore. Source and Destination should add
// up to 1 so that scores stay within 0..100.
type ScoreWeights struct {
	Source      float64 `mapstructure:"source_weight"`
	Destination float64 `mapstructure:"destination_weight"`
	CapMeters   float64 `mapstructure:"cap_meters"`
}

var DefaultWeights = ScoreWeights{Source: 0.7, Destination: 0.3, CapMeters: 10000}

// Score is ((1-min(s/cap,1))*Source + (1-min(d/cap,1))*Destination) * 100.
func (w ScoreWeights) Score(srcDist, dstDist float64) float64 {
	if w.CapMeters <= 0 {
		w = DefaultWeights
	}
	return (proximity(srcDist, w.CapMeters)*w.Source + proximity(dstDist, w.CapMeters)*w.Destination) * 100
}

func proximity(d, limit float64) float64 {
	if d < 0 {
		d = 0
	}
	r := d / limit
	if r > 1 {
		r = 1
	}
	return 1 - r
}

// Level buckets a 0..100 score.
func Level(score float64) models.MatchLevel {
	switch {
	case score >= 80:
		return models.LevelExcellent
	case score >= 60:
		return models.LevelGood
	case score >= 40:
		return models.LevelFair
	default:
		return models.LevelBasic
	}
}

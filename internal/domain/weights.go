package domain

import "fmt"

// Weights are the relative importance of each source in the composite score.
// They need not sum to one: the score re-normalizes over sources with data.
type Weights struct {
	Human      float64 `json:"human"`
	Geo        float64 `json:"geo"`
	Population float64 `json:"population"`
	Pigeon     float64 `json:"pigeon"`
}

// DefaultWeights returns the stock source weighting.
func DefaultWeights() Weights {
	return Weights{Human: 0.5, Geo: 0.3, Population: 0.2, Pigeon: 0.1}
}

// For returns the weight of s.
func (w Weights) For(s Source) float64 {
	switch s {
	case SourceHuman:
		return w.Human
	case SourceGeo:
		return w.Geo
	case SourcePopulation:
		return w.Population
	case SourcePigeon:
		return w.Pigeon
	default:
		return 0
	}
}

// Validate rejects negative weights and a configuration where every primary
// source is switched off.
func (w Weights) Validate() error {
	for _, s := range Sources {
		if w.For(s) < 0 {
			return fmt.Errorf("%w: weight for %s must be non-negative", ErrInvalidArgument, s)
		}
	}
	if w.Human+w.Geo+w.Population <= 0 {
		return fmt.Errorf("%w: at least one of human, geo, population weights must be positive", ErrInvalidArgument)
	}
	return nil
}

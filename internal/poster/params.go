// Package poster holds the request parameters for a map poster render, the
// canonical fingerprint over them, and the theme preset catalog.
package poster

import (
	"strings"

	"posterforge/internal/pkg/errors"
)

// Default distance bounds. Async submissions keep the tighter bound the
// render host tolerates; the synchronous surface allows larger posters.
const (
	MinDistance      = 1000
	MaxDistanceAsync = 4000
	MaxDistanceSync  = 20000
)

// Params are the inputs of one render: where, which preset, and how wide an
// area (in meters) the poster covers.
type Params struct {
	City     string `json:"city"`
	Country  string `json:"country"`
	Theme    string `json:"theme"`
	Distance int    `json:"distance"`
}

// Normalized returns a copy with leading/trailing whitespace stripped from
// all string fields. Fingerprinting and rendering operate on this form.
func (p Params) Normalized() Params {
	return Params{
		City:     strings.TrimSpace(p.City),
		Country:  strings.TrimSpace(p.Country),
		Theme:    strings.TrimSpace(p.Theme),
		Distance: p.Distance,
	}
}

// Validate checks field lengths and the distance bound. maxDistance differs
// between the async and sync surfaces.
func (p Params) Validate(maxDistance int) error {
	n := p.Normalized()
	if err := checkLen("city", n.City); err != nil {
		return err
	}
	if err := checkLen("country", n.Country); err != nil {
		return err
	}
	if err := checkLen("theme", n.Theme); err != nil {
		return err
	}
	if n.Distance < MinDistance || n.Distance > maxDistance {
		return errors.ValidationField("distance", "distance out of range").
			WithField("min", MinDistance).
			WithField("max", maxDistance)
	}
	return nil
}

func checkLen(field, v string) error {
	if v == "" {
		return errors.ValidationField(field, field+" is required")
	}
	if len(v) > 80 {
		return errors.ValidationField(field, field+" must be at most 80 characters")
	}
	return nil
}

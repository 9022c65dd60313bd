// Package dialect decides which stylized dialect, if any, applies to a species.
package dialect

import "github.com/pario-ai/dexcache/pkg/models"

// Choose maps a species record to a dialect. Legendary status takes
// precedence over habitat; habitats other than cave map to no dialect.
func Choose(s models.SpeciesRecord) models.Dialect {
	switch {
	case s.Legendary:
		return models.DialectYoda
	case s.Habitat == models.HabitatCave:
		return models.DialectShakespeare
	default:
		return models.DialectNone
	}
}

// Valid reports whether d is a known dialect.
func Valid(d models.Dialect) bool {
	switch d {
	case models.DialectNone, models.DialectYoda, models.DialectShakespeare:
		return true
	}
	return false
}

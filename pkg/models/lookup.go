package models

import "time"

// LookupResult is the value served for an entity name and stored in the cache.
// OriginalDescription keeps the registry text so the plain view is served
// from the same entry. Fallback marks a rewrite that was attempted and failed.
type LookupResult struct {
	Name                string  `json:"name"`
	DisplayName         string  `json:"display_name"`
	Habitat             string  `json:"habitat,omitempty"`
	Legendary           bool    `json:"is_legendary"`
	Description         string  `json:"description"`
	OriginalDescription string  `json:"original_description,omitempty"`
	Dialect             Dialect `json:"dialect"`
	Translated          bool    `json:"translated"`
	Fallback            bool    `json:"-"`
}

// Plain returns the result with the registry's own description and no dialect.
func (r LookupResult) Plain() LookupResult {
	if r.OriginalDescription != "" {
		r.Description = r.OriginalDescription
	}
	r.OriginalDescription = ""
	r.Dialect = DialectNone
	r.Translated = false
	r.Fallback = false
	return r
}

// Lookup outcomes recorded per call.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// LookupEvent describes a single Lookup call.
type LookupEvent struct {
	ID         int64         `json:"id,omitempty"`
	Name       string        `json:"name"`
	Outcome    string        `json:"outcome"`
	ErrorKind  ErrorKind     `json:"error_kind,omitempty"`
	Dialect    Dialect       `json:"dialect,omitempty"`
	Translated bool          `json:"translated"`
	Fallback   bool          `json:"fallback"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
}

// LookupSummary aggregates lookup events per entity name.
type LookupSummary struct {
	Name         string    `json:"name"`
	RequestCount int       `json:"request_count"`
	Hits         int       `json:"hits"`
	Misses       int       `json:"misses"`
	Errors       int       `json:"errors"`
	Fallbacks    int       `json:"fallbacks"`
	LastSeen     time.Time `json:"last_seen"`
}

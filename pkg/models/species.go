package models

// Dialect is a stylized rewriting mode applied to a species description.
type Dialect string

const (
	// DialectNone passes the description through unchanged.
	DialectNone Dialect = "none"
	// DialectYoda is applied to legendary species.
	DialectYoda Dialect = "yoda"
	// DialectShakespeare is applied to cave dwellers.
	DialectShakespeare Dialect = "shakespeare"
)

// NoDescription is the text used when the registry has no description
// in the target language.
const NoDescription = "No description available."

// HabitatCave is the habitat classifier that selects DialectShakespeare.
const HabitatCave = "cave"

// SpeciesRecord holds the attributes of a species relevant to a lookup.
// An empty Habitat means the registry reported none.
type SpeciesRecord struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Habitat     string `json:"habitat,omitempty"`
	Legendary   bool   `json:"is_legendary"`
	Description string `json:"description"`
}

// HasDescription reports whether the registry supplied a description.
func (s SpeciesRecord) HasDescription() bool {
	return s.Description != "" && s.Description != NoDescription
}

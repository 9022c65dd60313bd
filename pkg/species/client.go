// Package species fetches species records from a PokéAPI-compatible registry.
package species

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/dexcache/pkg/models"
)

const (
	speciesPath  = "/api/v2/pokemon-species/"
	maxBodyBytes = 4 << 20
	op           = "species.fetch"
)

// Client fetches species metadata by name.
type Client struct {
	baseURL    string
	language   string
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the registry at baseURL. Descriptions and display
// names are selected in language.
func New(baseURL, language string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   language,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// speciesPayload is the subset of the registry's species document we use.
type speciesPayload struct {
	Name              string          `json:"name"`
	IsLegendary       bool            `json:"is_legendary"`
	Habitat           *namedResource  `json:"habitat"`
	FlavorTextEntries []flavorText    `json:"flavor_text_entries"`
	Names             []localizedName `json:"names"`
}

type namedResource struct {
	Name string `json:"name"`
}

type flavorText struct {
	FlavorText string        `json:"flavor_text"`
	Language   namedResource `json:"language"`
}

type localizedName struct {
	Name     string        `json:"name"`
	Language namedResource `json:"language"`
}

// Fetch returns the species record for name. It fails with models.ErrNotFound
// when the registry has no such species, models.ErrUnavailable on transport
// or server errors, and models.ErrParse when the payload cannot be decoded.
func (c *Client) Fetch(ctx context.Context, name string) (models.SpeciesRecord, error) {
	target := c.baseURL + speciesPath + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return models.SpeciesRecord{}, models.NewError(models.KindUnavailable, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.SpeciesRecord{}, models.NewError(models.KindUnavailable, op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.SpeciesRecord{}, models.Errorf(models.KindNotFound, op, "species %q not found", name)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return models.SpeciesRecord{}, models.Errorf(models.KindUnavailable, op, "registry returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.SpeciesRecord{}, models.NewError(models.KindUnavailable, op, fmt.Errorf("read response: %w", err))
	}

	var payload speciesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.SpeciesRecord{}, models.NewError(models.KindParse, op, err)
	}
	if payload.Name == "" {
		return models.SpeciesRecord{}, models.Errorf(models.KindParse, op, "payload for %q has no name", name)
	}

	rec := payload.record(c.language)
	if !rec.HasDescription() {
		c.logger.Debug("no description in target language",
			zap.String("species", rec.Name), zap.String("language", c.language))
	}
	return rec, nil
}

func (p speciesPayload) record(language string) models.SpeciesRecord {
	rec := models.SpeciesRecord{
		Name:        p.Name,
		DisplayName: p.Name,
		Legendary:   p.IsLegendary,
		Description: models.NoDescription,
	}
	if p.Habitat != nil {
		rec.Habitat = p.Habitat.Name
	}
	for _, n := range p.Names {
		if n.Language.Name == language && n.Name != "" {
			rec.DisplayName = n.Name
			break
		}
	}
	for _, ft := range p.FlavorTextEntries {
		if ft.Language.Name == language {
			rec.Description = CleanFlavorText(ft.FlavorText)
			break
		}
	}
	return rec
}

var controlReplacer = strings.NewReplacer("\f", " ", "\r", " ", "\n", " ")

// CleanFlavorText replaces the layout control characters the registry embeds
// in flavor text with spaces.
func CleanFlavorText(s string) string {
	return controlReplacer.Replace(s)
}

package species

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/dexcache/pkg/models"
)

func newRegistry(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func serveFile(t *testing.T, path string) http.HandlerFunc {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func TestFetch(t *testing.T) {
	var gotPath string
	handler := serveFile(t, "testdata/pikachu.json")
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		handler(w, r)
	})

	rec, err := New(srv.URL, "en").Fetch(context.Background(), "pikachu")
	require.NoError(t, err)

	assert.Equal(t, "/api/v2/pokemon-species/pikachu", gotPath)
	assert.Equal(t, "pikachu", rec.Name)
	assert.Equal(t, "Pikachu", rec.DisplayName)
	assert.Equal(t, "forest", rec.Habitat)
	assert.False(t, rec.Legendary)
	assert.Equal(t,
		"When several of these POKéMON gather, their electricity could build and cause lightning storms.",
		rec.Description)
}

func TestFetchOtherLanguage(t *testing.T) {
	srv := newRegistry(t, serveFile(t, "testdata/pikachu.json"))

	rec, err := New(srv.URL, "fr").Fetch(context.Background(), "pikachu")
	require.NoError(t, err)
	assert.Equal(t, "Quand plusieurs de ces POKéMON se réunissent, leur électricité peut provoquer des orages.", rec.Description)
	assert.Equal(t, "pikachu", rec.DisplayName, "falls back to the species name")
}

func TestFetchNoDescriptionInLanguage(t *testing.T) {
	srv := newRegistry(t, serveFile(t, "testdata/pikachu.json"))

	rec, err := New(srv.URL, "ko").Fetch(context.Background(), "pikachu")
	require.NoError(t, err)
	assert.Equal(t, models.NoDescription, rec.Description)
	assert.False(t, rec.HasDescription())
}

func TestFetchNullHabitat(t *testing.T) {
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"arceus","is_legendary":false,"habitat":null,"flavor_text_entries":[]}`))
	})

	rec, err := New(srv.URL, "en").Fetch(context.Background(), "arceus")
	require.NoError(t, err)
	assert.Empty(t, rec.Habitat)
	assert.Equal(t, models.NoDescription, rec.Description)
}

func TestFetchEscapesName(t *testing.T) {
	var gotRawPath string
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		gotRawPath = r.URL.EscapedPath()
		w.Write([]byte(`{"name":"mr-mime"}`))
	})

	_, err := New(srv.URL+"/", "en").Fetch(context.Background(), "mr mime/x")
	require.NoError(t, err)
	assert.Equal(t, "/api/v2/pokemon-species/mr%20mime%2Fx", gotRawPath)
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "Not Found", http.StatusNotFound)
			},
			want: models.ErrNotFound,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusBadGateway)
			},
			want: models.ErrUnavailable,
		},
		{
			name: "malformed json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"name":`))
			},
			want: models.ErrParse,
		},
		{
			name: "missing name",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"is_legendary":true}`))
			},
			want: models.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newRegistry(t, tt.handler)
			_, err := New(srv.URL, "en").Fetch(context.Background(), "x")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFetchTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	srv := newRegistry(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := New(srv.URL, "en").Fetch(ctx, "slowpoke")
	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, "en").Fetch(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrUnavailable)
}

func TestCleanFlavorText(t *testing.T) {
	assert.Equal(t, "a b c d", CleanFlavorText("a\nb\fc\rd"))
}

package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareVersions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v1, v2 string
		want   int
	}{
		{"0.1.0", "0.1.0", 0},
		{"0.1.0", "0.2.0", -1},
		{"v1.0.0", "0.9.9", 1},
		{"1.2", "1.2.1", -1},
		{"1.0.0-beta", "1.0.0", 0},
		{"1.10.0", "1.9.0", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, compareVersions(tt.v1, tt.v2), "%s vs %s", tt.v1, tt.v2)
	}
}

func TestCheckForUpdates(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "gdbmi-dap/"+Version, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"tag_name": "v99.0.0", "html_url": "https://github.com/ctagard/gdbmi-dap/releases/tag/v99.0.0"}`))
	}))
	defer srv.Close()

	c := NewChecker()
	c.URL = srv.URL
	info, err := c.CheckForUpdates(context.Background())
	require.NoError(t, err)
	assert.True(t, info.UpdateAvailable)
	assert.Equal(t, "99.0.0", info.LatestVersion)
	assert.Contains(t, info.UpdateMessage(), "v99.0.0")
}

func TestCheckForUpdates_Errors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			_, _ = w.Write([]byte(`{`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewChecker()
	c.URL = srv.URL
	_, err := c.CheckForUpdates(context.Background())
	assert.ErrorContains(t, err, "403")

	c.URL = srv.URL + "/broken"
	_, err = c.CheckForUpdates(context.Background())
	assert.ErrorContains(t, err, "failed to parse")
}

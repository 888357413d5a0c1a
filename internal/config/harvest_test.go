package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harvestDocument = `
providers:
  podaac:
    type: http
    url: https://opendap.jpl.nasa.gov/opendap/
  creodias:
    type: resto
    url: https://datahub.creodias.eu
    username: !ENV CREODIAS_USER
    password: !ENV CREODIAS_PASSWORD
searches:
  - provider: podaac
    parameters:
      include: '\.nc$'
      start_time: '2020-01-01'
  - provider: creodias
    parameters:
      collection: SENTINEL-1
`

func TestParseHarvestResolvesEnvTags(t *testing.T) {
	t.Setenv("CREODIAS_USER", "jane")
	t.Setenv("CREODIAS_PASSWORD", "hunter2")

	document, err := ParseHarvest([]byte(harvestDocument))
	require.NoError(t, err)

	require.Len(t, document.Providers, 2)
	assert.Equal(t, "http", document.Providers["podaac"].Type)
	assert.Equal(t, "jane", document.Providers["creodias"].Username)
	assert.Equal(t, "hunter2", document.Providers["creodias"].Password)

	require.Len(t, document.Searches, 2)
	assert.Equal(t, "podaac", document.Searches[0].Provider)
	assert.Equal(t, `\.nc$`, document.Searches[0].Parameters["include"])
	assert.Equal(t, "SENTINEL-1", document.Searches[1].Parameters["collection"])
}

func TestParseHarvestFailsOnUnsetEnvVariable(t *testing.T) {
	t.Parallel()

	_, err := ParseHarvest([]byte(`
providers:
  x:
    type: ftp
    password: !ENV HARVEST_TEST_UNSET_VARIABLE
searches:
  - provider: x
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HARVEST_TEST_UNSET_VARIABLE")
}

func TestLoadSearchesStandaloneDocument(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "searches.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
searches:
  - provider: podaac
    parameters:
      start_time: '2021-01-01'
`), 0o644))

	searches, err := LoadSearches(path)
	require.NoError(t, err)
	require.Len(t, searches, 1)
	assert.Equal(t, "podaac", searches[0].Provider)
	assert.Equal(t, "2021-01-01", searches[0].Parameters["start_time"])
}

func TestParseHarvestValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		document string
		wantErr  string
	}{
		{
			name:     "no providers",
			document: "searches:\n  - provider: x\n",
			wantErr:  "no providers",
		},
		{
			name:     "provider without type",
			document: "providers:\n  x:\n    url: ftp://host\nsearches:\n  - provider: x\n",
			wantErr:  "a type is required",
		},
		{
			name:     "unknown provider reference",
			document: "providers:\n  x:\n    type: ftp\nsearches:\n  - provider: y\n",
			wantErr:  `unknown provider "y"`,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ParseHarvest([]byte(tc.document))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

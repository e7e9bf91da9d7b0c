package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSetsResolve(t *testing.T) {
	sets := Default().Resolve()

	assert.True(t, sets.IsIgnored("osSendMesg"))
	assert.False(t, sets.IsIgnored("main"))

	assert.True(t, sets.IsRenamed("memcpy"))
	assert.False(t, sets.IsRenamed("main"))

	size, ok := sets.UnsizedLookup("sqrtf")
	require.True(t, ok)
	assert.EqualValues(t, 0x38, size)

	_, ok = sets.UnsizedLookup("unknown_symbol")
	assert.False(t, ok)
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadMergesOverDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	contents := "ignored:\n  - my_custom_stub\nunsized_sizes:\n  my_func: 16\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	sets := cfg.Resolve()
	assert.True(t, sets.IsIgnored("my_custom_stub"))
	size, ok := sets.UnsizedLookup("my_func")
	require.True(t, ok)
	assert.EqualValues(t, 16, size)

	// Renamed set is untouched by a policy file that doesn't mention it.
	assert.True(t, sets.IsRenamed("memcpy"))
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/policy.yaml")
	assert.Error(t, err)
}

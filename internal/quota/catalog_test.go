package quota

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Equal(t, "free", c.Default().Name)
	assert.True(t, c.Metered("free"))
	assert.True(t, c.Metered(" FREE "))
	assert.False(t, c.Metered("pro"))
	assert.False(t, c.Metered("enterprise"))
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_plan: starter
plans:
  - name: starter
    metered: true
    quota_minutes: 120
  - name: team
    metered: false
`), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)

	p, ok := c.Plan("starter")
	require.True(t, ok)
	assert.Equal(t, 120, p.QuotaMinutes)
	assert.Equal(t, "starter", c.Default().Name)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := map[string]string{
		"no plans":         "default_plan: x\nplans: []\n",
		"metered no quota": "plans:\n  - name: a\n    metered: true\n",
		"unknown default":  "default_plan: b\nplans:\n  - name: a\n",
		"bad yaml":         "plans: [",
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(raw))
			assert.Error(t, err)
		})
	}
}

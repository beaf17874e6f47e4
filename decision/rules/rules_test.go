package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tvqphuoc01/diagram-mcp/decision/catalog"
)

func TestDefault(t *testing.T) {
	r := Default()

	assert.Equal(t, CurrentVersion, r.Version)
	assert.InDelta(t, 0.80, r.Thresholds.FuzzyThreshold, 1e-9)
	assert.Less(t, r.Thresholds.FuzzyCeiling, ScoreAlias)
	assert.Greater(t, r.Thresholds.FuzzyCeiling, ScoreSemantic)
	assert.Equal(t, catalog.DefaultProviderOrder, r.ProviderOrder)

	t.Run("connectives are longest first", func(t *testing.T) {
		for i := 1; i < len(r.Connectives); i++ {
			assert.GreaterOrEqual(t, len(r.Connectives[i-1].Phrase), len(r.Connectives[i].Phrase))
		}
	})

	t.Run("symbolic connectives survive normalization", func(t *testing.T) {
		var phrases []string
		for _, c := range r.Connectives {
			phrases = append(phrases, c.Phrase)
		}
		assert.Contains(t, phrases, "->")
		assert.Contains(t, phrases, "distributes traffic to")
	})

	assert.True(t, r.ExpectsConnected("infrastructure"))
	assert.True(t, r.ExpectsConnected("dataflow"))
	assert.False(t, r.ExpectsConnected("sequence"))
}

func TestParseOverrides(t *testing.T) {
	r, err := Parse([]byte(`
version: 1
thresholds:
  fuzzy_threshold: 0.7
connectives:
  - phrase: "Feeds Into"
`))
	require.NoError(t, err)

	assert.InDelta(t, 0.7, r.Thresholds.FuzzyThreshold, 1e-9)
	assert.InDelta(t, 0.85, r.Thresholds.FuzzyCeiling, 1e-9, "unspecified keys keep defaults")
	require.Len(t, r.Connectives, 1)
	assert.Equal(t, "feeds into", r.Connectives[0].Phrase)
	assert.NotEmpty(t, r.Purposes, "tables missing from the override keep defaults")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"version", "version: 2", "unsupported rules version"},
		{"ceiling reaches alias", "version: 1\nthresholds: {fuzzy_ceiling: 0.9}", "fuzzy_ceiling"},
		{"ceiling below threshold", "version: 1\nthresholds: {fuzzy_threshold: 0.88}", "fuzzy_ceiling"},
		{"window", "version: 1\nthresholds: {max_window: 0}", "max_window"},
		{"provider", "version: 1\nprovider_order: [aws, oracle]", "unknown provider"},
		{"target kind", "version: 1\npurposes:\n  - phrase: x\n    targets: [{kind: region}]", "unknown target kind"},
		{"service target", "version: 1\npurposes:\n  - phrase: x\n    targets: [{kind: service}]", "without name"},
		{"no targets", "version: 1\npurposes:\n  - phrase: x\n", "no targets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nconnected_types: [Network]\n"), 0o644))

	r, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, r.ExpectsConnected("network"))
	assert.False(t, r.ExpectsConnected("infrastructure"))

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTargetMatches(t *testing.T) {
	eks := &catalog.ServiceRecord{Provider: catalog.AWS, Category: "compute", Name: "EKS"}

	assert.True(t, Target{Kind: TargetService, Provider: catalog.AWS, Name: "eks"}.Matches(eks))
	assert.False(t, Target{Kind: TargetService, Provider: catalog.GCP, Name: "EKS"}.Matches(eks))
	assert.True(t, Target{Kind: TargetCategory, Category: "compute"}.Matches(eks))
	assert.False(t, Target{Kind: TargetCategory, Category: "database"}.Matches(eks))
}

func TestProviderPreference(t *testing.T) {
	r := Default()
	assert.Equal(t,
		[]catalog.Provider{catalog.GCP, catalog.AWS, catalog.Azure, catalog.IBM, catalog.AlibabaCloud},
		r.ProviderPreference(catalog.GCP))
	assert.Equal(t, catalog.DefaultProviderOrder, r.ProviderPreference(""))
}

func TestDefaultCommonWords(t *testing.T) {
	r := Default()
	assert.Contains(t, r.CommonWords, "run")
	assert.Contains(t, r.CommonWords, "backup")
	assert.NotContains(t, r.CommonWords, "lambda")
}

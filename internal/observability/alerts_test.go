package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func TestAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "autoservis.yml"))
	require.NoError(t, err)

	var spec alertSpec
	require.NoError(t, yaml.Unmarshal(data, &spec))
	require.Len(t, spec.Groups, 1)
	group := spec.Groups[0]
	assert.Equal(t, "autoservis", group.Name)

	expected := map[string]string{
		"HighErrorRate":       "critical",
		"HighLatency":         "warning",
		"LoginRejectSpike":    "warning",
		"SessionSweepFailing": "warning",
	}
	require.Len(t, group.Rules, len(expected))

	runbook, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook.md"))
	require.NoError(t, err)

	for _, rule := range group.Rules {
		severity, ok := expected[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		assert.Equal(t, severity, rule.Labels["severity"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		assert.NotEmpty(t, rule.For, rule.Alert)
		assert.Contains(t, rule.Expr, "autoservis_", rule.Alert)

		link := rule.Annotations["runbook"]
		require.True(t, strings.HasPrefix(link, "docs/runbook.md#"), rule.Alert)
		anchor := strings.TrimPrefix(link, "docs/runbook.md#")
		assert.Contains(t, string(runbook), "## "+anchor, rule.Alert)
	}
}

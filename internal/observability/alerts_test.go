package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

func TestConsoleAlertRules(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "autobid.yml"))
	require.NoError(t, err)

	var file ruleFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	require.Len(t, file.Groups, 1)
	group := file.Groups[0]
	require.Equal(t, "autobid-admin", group.Name)

	// alert -> severity and the series it must read
	want := map[string][2]string{
		"HighErrorRate":         {"critical", "autobid_http_requests_total"},
		"HighLatency":           {"warning", "autobid_http_request_duration_seconds_bucket"},
		"ForbiddenSpike":        {"warning", `autobid_authz_decisions_total{outcome="forbidden"}`},
		"MonitorFeedFailing":    {"warning", "autobid_monitor_feed_refreshes_total"},
		"CountdownRefreshStuck": {"critical", `autobid_job_last_success_timestamp_seconds{job="monitoring:refresh"}`},
	}
	require.Len(t, group.Rules, len(want))

	for _, rule := range group.Rules {
		t.Run(rule.Alert, func(t *testing.T) {
			expected, ok := want[rule.Alert]
			require.True(t, ok, "unexpected rule")
			assert.Equal(t, expected[0], rule.Labels["severity"])
			assert.Contains(t, rule.Expr, expected[1])
			assert.NotEmpty(t, rule.For)
			assert.NotEmpty(t, rule.Annotations["summary"])
			assert.NotEmpty(t, rule.Annotations["description"])
		})
	}
}

package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrings(t *testing.T) {
	oldVersion, oldCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = oldVersion, oldCommit })
	Version, GitCommit = "v1.2.0", "abc1234"

	assert.Equal(t, "v1.2.0 (abc1234)", String())
	assert.Contains(t, Full(), runtime.Version())
	assert.Equal(t, "v1.2.0", GetInfo().Version)
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(Collector()))

	expected := `
# HELP dsv_build_info Build information; the value is always 1.
# TYPE dsv_build_info gauge
dsv_build_info{commit="` + GitCommit + `",go_version="` + runtime.Version() + `",version="` + Version + `"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "dsv_build_info"))
}

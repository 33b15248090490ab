package main

import (
	"bytes"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/recycler/internal/bench"
	"github.com/ajitpratap0/recycler/pkg/config"
	"github.com/ajitpratap0/recycler/pkg/metrics"
	"github.com/ajitpratap0/recycler/pkg/pool"
	"github.com/ajitpratap0/recycler/pkg/testutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Recycler v"+version)
	assert.Contains(t, out, "Go version:")
}

func TestBenchJSON(t *testing.T) {
	out, err := execute(t, "bench", "--workers", "2", "--cycles", "500", "--mode", "cross", "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "cross", report["mode"])
	assert.EqualValues(t, 2, report["workers"])
	assert.EqualValues(t, 1000, report["total_cycles"])
}

func TestBenchText(t *testing.T) {
	out, err := execute(t, "bench", "-w", "1", "-n", "100")
	require.NoError(t, err)
	assert.Contains(t, out, "Recycler bench (local)")
	assert.Contains(t, out, "hit ratio:")
}

func TestBenchCompression(t *testing.T) {
	out, err := execute(t, "bench", "-w", "2", "-n", "100", "-m", "cross", "--compression", "lz4", "--json")
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "lz4", report["compression"])

	_, err = execute(t, "bench", "--compression", "brotli")
	assert.ErrorContains(t, err, "compression must be")
}

func TestBenchRejectsInvalidFlags(t *testing.T) {
	_, err := execute(t, "bench", "--mode", "sideways")
	assert.ErrorContains(t, err, "mode must be local, cross or mixed")

	_, err = execute(t, "bench", "--batch", "0")
	assert.ErrorContains(t, err, "batch must be positive")
}

func TestBenchServesMetrics(t *testing.T) {
	out, err := execute(t, "bench", "-w", "2", "-n", "200", "--metrics-addr", "127.0.0.1:0", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"mode"`)
}

func TestServeMetricsEndpoint(t *testing.T) {
	c := metrics.NewStatsCollector()
	c.Add("message", pool.MessagePool)

	addr, stop, err := serveMetrics("127.0.0.1:0", c, testutil.TestLogger(t))
	require.NoError(t, err)
	defer stop()

	var body string
	testutil.AssertEventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, "metrics endpoint never answered")
	assert.Contains(t, body, `recycler_gets_total{recycler="message"}`)
	assert.Contains(t, body, "go_goroutines")
}

func TestServeMetricsBadAddress(t *testing.T) {
	_, _, err := serveMetrics("256.0.0.1:1", metrics.NewStatsCollector(), testutil.TestLogger(t))
	assert.Error(t, err)
}

// ConfigSuite exercises the config subcommands against files in a shared
// temp directory.
type ConfigSuite struct {
	testutil.IntegrationTestSuite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestInitThenValidate() {
	path := filepath.Join(s.TempDir(), "init.yaml")

	out, err := execute(s.T(), "config", "init", path)
	s.Require().NoError(err)
	s.Contains(out, "wrote "+path)

	out, err = execute(s.T(), "config", "validate", path)
	s.Require().NoError(err)
	s.Contains(out, "is valid")
}

func (s *ConfigSuite) TestValidateRejectsBadFile() {
	path := s.CreateTempFile("bad.yaml", []byte("recycler:\n  link_capacity: 0\n"))

	_, err := execute(s.T(), "config", "validate", path)
	s.ErrorContains(err, "link_capacity must be positive")

	_, err = execute(s.T(), "config", "validate", filepath.Join(s.TempDir(), "missing.yaml"))
	s.ErrorContains(err, "failed to read config file")
}

func (s *ConfigSuite) TestShowOverlaysFile() {
	path := s.CreateTempFile("show.yaml", []byte("name: frames\nbench:\n  mode: mixed\n"))

	out, err := execute(s.T(), "config", "show", "--config", path)
	s.Require().NoError(err)
	s.Contains(out, "name: frames")
	s.Contains(out, "mode: mixed")
	s.Contains(out, "max_capacity_per_worker: 4096")
}

func (s *ConfigSuite) TestBenchFlagsOverrideFile() {
	path := s.CreateTempFile("bench.yaml", []byte(strings.Join([]string{
		"bench:",
		"  workers: 3",
		"  cycles: 50",
		"  mode: mixed",
		"logging:",
		"  level: error",
	}, "\n")))

	out, err := execute(s.T(), "bench", "--config", path, "--cycles", "40", "--json")
	s.Require().NoError(err)

	var report map[string]any
	s.Require().NoError(json.Unmarshal([]byte(out), &report))
	s.Equal("mixed", report["mode"])
	s.EqualValues(3, report["workers"])
	s.EqualValues(40, report["cycles_per_worker"])
}

func (s *ConfigSuite) TestLoadedConfigDrivesRecyclerAndBench() {
	path := s.CreateTempFile("run.yaml", []byte(strings.Join([]string{
		"name: frames",
		"recycler:",
		"  max_capacity_per_worker: 8",
		"bench:",
		"  workers: 2",
		"  cycles: 64",
		"  batch: 4",
		"  mode: cross",
	}, "\n")))

	cfg, err := config.LoadFile(path)
	s.Require().NoError(err)

	messages, err := pool.NewMessagePool(cfg.Recycler.Options()...)
	s.Require().NoError(err)
	owner, other := s.NewWorker("owner"), s.NewWorker("other")
	m := pool.GetMessageFrom(messages, owner)
	s.Require().NoError(m.Release(other))
	s.Equal(8, messages.LocalCapacity(owner))
	s.Equal(1, messages.Queued(owner))

	runner, err := bench.NewRunner(cfg.Bench, cfg.Recycler.Options(), testutil.TestLogger(s.T()))
	s.Require().NoError(err)
	res, err := runner.Run(s.Context())
	s.Require().NoError(err)
	s.EqualValues(128, res.TotalCycles)
	s.LessOrEqual(res.PeakOutstanding, res.OutstandingBound)
}

func (s *ConfigSuite) TestApplyOnlyChangedFlags() {
	cmd := newBenchCmd()
	s.Require().NoError(cmd.Flags().Parse([]string{"--batch", "4", "--metrics-addr", ":9999"}))

	cfg := config.Default()
	cfg.Bench.Cycles = 7
	f := benchFlags{batch: 4, metricsAddr: ":9999", configFile: "x.yaml"}
	f.apply(cmd, cfg)

	s.Equal(4, cfg.Bench.Batch)
	s.Equal(7, cfg.Bench.Cycles)
	s.True(cfg.Observability.EnableMetrics)
	s.Equal(":9999", cfg.Observability.MetricsAddr)
	s.Equal("info", cfg.Logging.Level)
}

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: set_everything
description: "Syncing everything asks from the start"
strict: true
steps:
  - set: everything
  - expect_request:
      last_sync: 0
      max_records: 10000
assertions:
  - type: status
    expect: {mode: all}
`

const failingScenario = `name: wrong_mode
description: "Expects the wrong mode"
strict: true
steps:
  - set: everything
assertions:
  - type: status
    expect: {mode: select}
`

func TestTestCommand_HarnessScenarios(t *testing.T) {
	run := runCLI(t, nil, "test", filepath.Join("..", "harness", "testdata", "scenarios"))
	require.Equal(t, ExitSuccess, run.code, run.stdout)
	assert.Contains(t, run.stdout, "✓ select_exclusion_lifecycle")
	assert.Contains(t, run.stdout, "✓ All scenarios passed")
}

func TestTestCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pass.yaml", passingScenario)
	writeFile(t, dir, "fail.yaml", failingScenario)

	run := runCLI(t, nil, "test", dir)
	assert.Equal(t, ExitFailure, run.code)
	assert.Contains(t, run.stdout, "✓ set_everything")
	assert.Contains(t, run.stdout, "✗ wrong_mode")
	assert.Contains(t, run.stdout, "Test Summary: 1 passed, 1 failed, 2 total")
	assert.Contains(t, run.stderr, "1 scenario(s) failed")
}

func TestTestCommand_JSONFailureReportedOnce(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "fail.yaml", failingScenario)

	run := runCLI(t, nil, "--format", "json", "test", dir)
	assert.Equal(t, ExitFailure, run.code)
	assert.Equal(t, 1, strings.Count(run.stdout, `"status"`), run.stdout)

	resp := decodeResponse(t, run.stdout)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "TEST_FAILED", resp.Error.Code)
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pass.yaml", passingScenario)
	writeFile(t, dir, "fail.yaml", failingScenario)

	run := runCLI(t, nil, "test", dir, "--filter", "pa*")
	require.Equal(t, ExitSuccess, run.code, run.stdout)
	assert.Contains(t, run.stdout, "Test Summary: 1 passed, 0 failed, 1 total")

	run = runCLI(t, nil, "test", dir, "--filter", "[")
	assert.Equal(t, ExitCommandError, run.code)
}

func TestTestCommand_Golden(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pass.yaml", passingScenario)

	run := runCLI(t, nil, "test", dir, "--update")
	require.Equal(t, ExitSuccess, run.code, run.stdout)

	goldenPath := filepath.Join(dir, "golden", "pass.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name": "set_everything"`)

	run = runCLI(t, nil, "test", dir)
	require.Equal(t, ExitSuccess, run.code, run.stdout)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0644))
	run = runCLI(t, nil, "test", dir)
	assert.Equal(t, ExitFailure, run.code)
	assert.Contains(t, run.stdout, "Golden file mismatch")
}

func TestTestCommand_NoScenarios(t *testing.T) {
	run := runCLI(t, nil, "test", t.TempDir())
	require.Equal(t, ExitSuccess, run.code)
	assert.Contains(t, run.stdout, "No scenarios found.")

	run = runCLI(t, nil, "test", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, ExitCommandError, run.code)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("scenarios", "golden", "cycle.golden"), goldenFilePath(filepath.Join("scenarios", "cycle.yaml")))
}

package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nerrors "github.com/nirv/nirv/internal/errors"
)

const testConfig = `
log:
  level: info
  format: text
connectors:
  - name: fixtures
    type: mock
    object_type: mock
    params:
      connect_delay_ms: "0"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nirv.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "NIRV")
}

func TestHelpCommand(t *testing.T) {
	out, _, err := run(t, "--help")
	require.NoError(t, err)
	for _, expected := range []string{"query", "sources", "schema", "serve"} {
		assert.Contains(t, out, expected)
	}
}

func TestQueryWithConfigFile(t *testing.T) {
	path := writeConfig(t, testConfig)

	out, _, err := run(t, "query", "--config", path, "--format", "csv",
		"SELECT name FROM source('mock.users') WHERE active = true ORDER BY name DESC")
	require.NoError(t, err)
	assert.Equal(t, "name\nBob Smith\nAlice Johnson\n", out)
}

func TestLogFlags(t *testing.T) {
	path := writeConfig(t, testConfig)

	_, logs, err := run(t, "sources", "--config", path, "--log-format", "json", "--verbose")
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	for _, line := range strings.Split(strings.TrimSpace(logs), "\n") {
		assert.True(t, strings.HasPrefix(line, "{"), "expected JSON log line, got %q", line)
	}
	assert.Contains(t, logs, `"level":"DEBUG"`)
}

func TestInvalidConfig(t *testing.T) {
	_, _, err := run(t, "sources", "--log-level", "loud")
	require.Error(t, err)
	assert.Equal(t, nerrors.CodeInvalidConfig, nerrors.GetCode(err))

	_, _, err = run(t, "sources", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, nerrors.ErrCategoryConfig, nerrors.GetCategory(err))
}

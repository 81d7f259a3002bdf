package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/configdesk/configdesk/pkg/api"
	"github.com/configdesk/configdesk/pkg/completion"
	"github.com/configdesk/configdesk/pkg/stores"
)

// run executes the root command with args in a fresh working directory
// and returns its stdout.
func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand("test", "none", "unknown")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInitValidateFmt(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join("conf", "config.yaml")

	out, err := run(t, "", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Created "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, stores.DefaultText(), string(data))

	_, err = run(t, "", "init", path)
	assert.ErrorContains(t, err, "already exists")
	_, err = run(t, "", "init", path, "--force")
	require.NoError(t, err)

	out, err = run(t, "", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path)

	messy := "logging:\n    file: ./debug.log\n    level: info\nserver:\n    port: 80\n    host: x\n    use_ssl: false\n"
	out, err = run(t, messy, "fmt", "-")
	require.NoError(t, err)
	assert.Equal(t, "server:\n  host: x\n  port: 80\n  use_ssl: false\nlogging:\n  level: info\n  file: ./debug.log\n", out)
}

func TestFmtWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: {host: x, port: 80, use_ssl: true}\nlogging: {level: warn, file: a.log}\n"), 0o644))

	out, err := run(t, "", "fmt", path, "--write")
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "server:\n  host: x\n  port: 80\n  use_ssl: true\nlogging:\n  level: warn\n  file: a.log\n", string(data))

	require.NoError(t, os.WriteFile(path, []byte("server: [\n"), 0o644))
	_, err = run(t, "", "fmt", path, "--write")
	assert.Error(t, err)
}

func TestValidateReportsFieldErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	bad := filepath.Join(dir, "bad.yaml")
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(good, []byte(stores.DefaultText()), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte(strings.Replace(stores.DefaultText(), "port: 3000", "port: abc", 1)), 0o644))
	require.NoError(t, os.WriteFile(broken, []byte("server:\n  host: [unclosed\n"), 0o644))

	out, err := run(t, "", "validate", good, bad, broken)
	assert.ErrorContains(t, err, "2 of 3 files invalid")
	assert.Contains(t, out, "✓ "+good)
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, "server.port:")

	out, err = run(t, "", "validate", bad, "--json")
	require.Error(t, err)
	var reports []fileReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	require.Len(t, reports, 1)
	assert.False(t, reports[0].Valid)
	assert.Equal(t, "validation_error", reports[0].Kind)
	require.NotEmpty(t, reports[0].Errors)
	assert.Equal(t, "server.port", reports[0].Errors[0].Path.String())
}

func TestComplete(t *testing.T) {
	doc := "server:\n  host: 127.0.0.1\n  po\nlogging:\n  level: \n"

	out, err := run(t, doc, "complete", "-", "--line", "3", "--column", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "path: server (key)")
	assert.Contains(t, out, "port")
	assert.NotContains(t, out, "host")

	out, err = run(t, doc, "complete", "-", "--line", "5", "--column", "9", "--json")
	require.NoError(t, err)
	var res completion.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Located)
	require.Len(t, res.Items, 4)
	assert.Equal(t, "debug", res.Items[0].Label)

	out, err = run(t, "database:\n  x", "complete", "-", "--line", "2", "--column", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "no schema node")

	_, err = run(t, doc, "complete", "-", "--line", "0")
	assert.Error(t, err)
	_, err = run(t, doc, "complete", "-", "--column", "-1")
	assert.Error(t, err)
}

func TestSchema(t *testing.T) {
	out, err := run(t, "", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "server:")
	assert.Contains(t, out, "  port: <integer>")
	assert.Contains(t, out, "  level: debug | info | warn | error")

	out, err = run(t, "", "schema", "--json")
	require.NoError(t, err)
	var tree api.SchemaField
	require.NoError(t, json.Unmarshal([]byte(out), &tree))
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "server", tree.Children[0].Name)
}

func TestHistory(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := run(t, "", "history")
	assert.ErrorContains(t, err, "keeps no history")

	t.Setenv("CONFIGDESK_STORE_DRIVER", "sqlite")
	t.Setenv("CONFIGDESK_STORE_KEEP_REVISIONS", "5")

	out, err := run(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "CHECKSUM")

	out, err = run(t, "", "history", "--json")
	require.NoError(t, err)
	var revs []*stores.Snapshot
	require.NoError(t, json.Unmarshal([]byte(out), &revs))
	require.Len(t, revs, 1, "opening an empty store records the default")

	out, err = run(t, "", "history", "show", revs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, stores.DefaultText(), out)

	out, err = run(t, "", "history", "restore", revs[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Restored "+revs[0].ID)

	out, err = run(t, "", "history", "prune", "--keep", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 revisions")

	_, err = run(t, "", "history", "show", "missing")
	assert.ErrorIs(t, err, stores.ErrNotFound)
}

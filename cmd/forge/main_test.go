package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command inside a fresh temp directory with a relative
// workspace, so the gate's working-directory check passes.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	jsonOutput, verbose, failureLimit = false, false, 5
	templateParams = nil

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", "absent.yaml", "--workspace", "ws"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{"FORGE_WORKSPACE", "FORGE_PROVIDER", "FORGE_MODEL", "FORGE_MODE"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestJoinArgs(t *testing.T) {
	got := joinArgs([]string{"one", "two", "three"})
	if got != "one two three" {
		t.Fatalf("expected 'one two three', got '%s'", got)
	}
}

func TestParseParams(t *testing.T) {
	got, err := parseParams([]string{"params=a, b", "doc=x=y"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"params": "a, b", "doc": "x=y"}, got)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
}

func TestParseIndex(t *testing.T) {
	idx, err := parseIndex("#3")
	require.NoError(t, err)
	assert.Equal(t, 3, idx)

	_, err = parseIndex("three")
	assert.Error(t, err)
}

func TestDirectiveLifecycle(t *testing.T) {
	dir := chdirTemp(t)

	out, err := execute(t, "", "directive", "add", "Reverse", "a", "string")
	require.NoError(t, err)
	assert.Contains(t, out, "Directive #0 added")

	out, err = execute(t, "", "directive", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "Reverse a string")

	out, err = execute(t, "", "directive", "complete", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "Directive #0 completed")

	out, err = execute(t, "", "directive", "complete", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "nothing changed")

	out, err = execute(t, "", "memory")
	require.NoError(t, err)
	assert.Contains(t, out, "version 3")
	assert.Contains(t, out, "Directives: 1 (0 pending)")

	_, err = os.Stat(filepath.Join(dir, "ws", "memory.json"))
	assert.NoError(t, err)
}

func TestSkillsAndFailuresEmpty(t *testing.T) {
	chdirTemp(t)

	out, err := execute(t, "", "skills")
	require.NoError(t, err)
	assert.Contains(t, out, "No skills yet")

	out, err = execute(t, "", "failures", "__controller__")
	require.NoError(t, err)
	assert.Contains(t, out, "No failures recorded for __controller__")
}

func TestCheckPath(t *testing.T) {
	chdirTemp(t)

	out, err := execute(t, "", "check", "path", "skills/add.py")
	require.NoError(t, err)
	assert.Contains(t, out, "SAFE")

	out, err = execute(t, "", "check", "path", "../../etc/passwd")
	assert.True(t, errors.Is(err, errRejected))
	assert.Contains(t, out, "UNSAFE: Path traversal detected")
}

func TestCheckCodeFromStdin(t *testing.T) {
	chdirTemp(t)

	out, err := execute(t, "print(sum([1, 2]))\n", "check", "code", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "SAFE: no denylist match")

	out, err = execute(t, "import os\nos.system('ls')\n", "check", "code", "-")
	assert.ErrorIs(t, err, errRejected)
	assert.Contains(t, out, "UNSAFE [")
}

func TestTemplatesCommands(t *testing.T) {
	chdirTemp(t)

	out, err := execute(t, "", "templates", "list")
	require.NoError(t, err)
	for _, name := range []string{"python_generator", "analysis_prompt", "test_harness"} {
		assert.Contains(t, out, name)
	}

	out, err = execute(t, "", "templates", "assemble", "python_generator",
		"-p", "function_name=add", "-p", "params=a, b", "-p", "test_params=1, 2")
	require.NoError(t, err)
	assert.Contains(t, out, "def add(a, b):")
	assert.Contains(t, out, "result = add(1, 2)")
	assert.Contains(t, out, "Successfully assembled 1 template(s)")

	_, err = execute(t, "", "templates", "assemble", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "template 'missing' not found")
}

func TestPurge(t *testing.T) {
	dir := chdirTemp(t)
	execDir := filepath.Join(dir, "ws", "exec")
	require.NoError(t, os.MkdirAll(execDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(execDir, "exec_1_1.py"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(execDir, "keep.txt"), []byte("x"), 0644))

	out, err := execute(t, "", "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 file(s)")
	assert.FileExists(t, filepath.Join(execDir, "keep.txt"))
}

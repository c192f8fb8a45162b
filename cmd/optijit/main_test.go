package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const program = `
program:
  - function: {name: double, params: [a], body: [{return: {op: "*", left: {ident: a}, right: {int: 2}}}]}
  - expr: {call: {ident: print}, args: [{str: hi}, {int: 1}]}
  - expr: {call: {ident: double}, args: [{int: 21}]}
`

// workspace writes a config and an example program and returns their
// paths.
func workspace(t *testing.T, cfg string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "optijit.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	prog := filepath.Join(dir, "example.yaml")
	require.NoError(t, os.WriteFile(prog, []byte(program), 0o644))
	return cfgPath, prog
}

func invoke(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunPrintsResult(t *testing.T) {
	cfg, prog := workspace(t, "log_level: error\n")
	code, out, errOut := invoke("run", "-config", cfg, prog)
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "hi 1\n42\n", out)
}

func TestCompileReportsUnits(t *testing.T) {
	cfg, prog := workspace(t, "log_level: error\n")
	code, out, errOut := invoke("compile", "-config", cfg, "-stats", "-timing", "-ast", prog)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "example: root example$cu")
	assert.Contains(t, out, "weight")
	assert.Contains(t, out, "functions 2, split fragments 0, lazy stubs 0")
	assert.Contains(t, out, "phase timing:")
	assert.Contains(t, out, "bytecode-generation")
	assert.Contains(t, out, "function double(a)")
}

func TestDisasm(t *testing.T) {
	cfg, prog := workspace(t, "log_level: error\n")
	code, out, errOut := invoke("disasm", "-config", cfg, prog)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "== example$cu")
}

func TestCacheMaintenance(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := workspace(t, "log_level: error\npersistence:\n  dir: "+dir+"\n")

	code, out, errOut := invoke("cache", "-config", cfg, "prune")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "removed 0 entries\n", out)

	code, out, errOut = invoke("cache", "-config", cfg, "clean")
	require.Equal(t, 0, code, errOut)
	assert.Equal(t, "cleaned "+dir+"\n", out)

	code, _, errOut = invoke("cache", "-config", cfg, "vacuum")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, `unknown cache command "vacuum"`)
}

func TestCommandErrors(t *testing.T) {
	code, out, _ := invoke()
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "Usage:")

	code, _, errOut := invoke("frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `error: unknown command "frobnicate"`)

	cfg, _ := workspace(t, "log_level: error\n")
	code, _, errOut = invoke("run", "-config", cfg, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "missing.yaml")

	code, _, errOut = invoke("compile", "-config", cfg)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "compile needs at least one file")
}

func TestCompileErrorIsLabelled(t *testing.T) {
	cfg, prog := workspace(t, "log_level: error\nmax_program_point: 1\n")
	code, _, errOut := invoke("compile", "-config", cfg, prog)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "compile error:")
}

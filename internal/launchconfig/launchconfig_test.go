package launchconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/gdbmi-dap/pkg/types"
)

const testLaunchJSON = `{
	"version": "0.2.0",
	"configurations": [
		{
			"type": "cppdbg",
			"request": "launch",
			"name": "Debug demo",
			"program": "${workspaceFolder}/build/demo",
			"args": ["--input", "${workspaceFolder}/data.txt"],
			"cwd": "build",
			"environment": [{"name": "DEMO_HOME", "value": "${env:DEMO_TEST_HOME}"}],
			"stopAtEntry": true,
			"MIMode": "gdb",
			"miDebuggerPath": "/usr/bin/gdb-multiarch"
		},
		{
			"type": "gdb",
			"request": "launch",
			"name": "Native",
			"program": "bin/tool",
			"env": {"MODE": "fast"},
			"debugger": "gdb"
		},
		{
			"type": "cppdbg",
			"request": "launch",
			"name": "LLDB",
			"program": "demo",
			"MIMode": "lldb"
		},
		{
			"type": "go",
			"request": "launch",
			"name": "Go",
			"program": "${workspaceFolder}"
		}
	]
}`

func writeWorkspace(t *testing.T) (workspace, launchPath string) {
	t.Helper()
	workspace = t.TempDir()
	vscodeDir := filepath.Join(workspace, VSCodeDirName)
	require.NoError(t, os.MkdirAll(vscodeDir, 0o755))
	launchPath = filepath.Join(vscodeDir, LaunchJSONFileName)
	require.NoError(t, os.WriteFile(launchPath, []byte(testLaunchJSON), 0o644))
	return workspace, launchPath
}

func TestLoadAndDiscover(t *testing.T) {
	t.Parallel()

	workspace, launchPath := writeWorkspace(t)
	nested := filepath.Join(workspace, "src", "lib")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	lj, found, err := LoadAndDiscover(nested)
	require.NoError(t, err)
	assert.Equal(t, launchPath, found)
	assert.Equal(t, workspace, GetWorkspaceFolder(found))
	assert.Equal(t, "0.2.0", lj.Version)

	assert.Equal(t, []ConfigurationInfo{
		{Name: "Debug demo", Type: "cppdbg", Request: "launch", Supported: true},
		{Name: "Native", Type: "gdb", Request: "launch", Supported: true},
		{Name: "LLDB", Type: "cppdbg", Request: "launch", Supported: false},
		{Name: "Go", Type: "go", Request: "launch", Supported: false},
	}, lj.ListConfigurations())

	_, err = lj.FindConfiguration("Missing")
	assert.ErrorContains(t, err, `configuration "Missing" not found`)
}

func TestDiscover_NotFound(t *testing.T) {
	t.Parallel()

	_, err := Discover(t.TempDir())
	assert.ErrorContains(t, err, "no .vscode/launch.json found")
}

func TestLoadFromPath_InvalidJSON(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), LaunchJSONFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{invalid json`), 0o644))

	_, err := LoadFromPath(path)
	assert.ErrorContains(t, err, "failed to parse launch.json")
}

func TestResolve(t *testing.T) {
	t.Parallel()

	workspace, launchPath := writeWorkspace(t)
	lj, err := LoadFromPath(launchPath)
	require.NoError(t, err)
	ctx := &ResolutionContext{
		WorkspaceFolder: workspace,
		EnvOverrides:    map[string]string{"DEMO_TEST_HOME": "/opt/demo"},
	}

	cfg, err := lj.FindConfiguration("Debug demo")
	require.NoError(t, err)
	req, err := cfg.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.LaunchRequest{
		GDBPath:     "/usr/bin/gdb-multiarch",
		Program:     workspace + "/build/demo",
		Args:        []string{"--input", workspace + "/data.txt"},
		Cwd:         filepath.Join(workspace, "build"),
		Env:         map[string]string{"DEMO_HOME": "/opt/demo"},
		StopOnEntry: true,
	}, req)

	cfg, err = lj.FindConfiguration("Native")
	require.NoError(t, err)
	req, err = cfg.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(workspace, "bin", "tool"), req.Program)
	assert.Equal(t, "gdb", req.GDBPath)
	assert.Equal(t, map[string]string{"MODE": "fast"}, req.Env)
	assert.False(t, req.StopOnEntry)

	for _, name := range []string{"LLDB", "Go"} {
		cfg, err = lj.FindConfiguration(name)
		require.NoError(t, err)
		_, err = cfg.Resolve(ctx)
		assert.Error(t, err, name)
	}
}

func TestResolveVariables(t *testing.T) {
	t.Parallel()

	ctx := &ResolutionContext{WorkspaceFolder: "/work/proj"}

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "${workspaceFolder}/a.out", want: "/work/proj/a.out"},
		{in: "${workspaceRoot}", want: "/work/proj"},
		{in: "${workspaceFolderBasename}", want: "proj"},
		{in: "plain", want: "plain"},
		{in: "${command:pickProcess}", want: "${command:pickProcess}", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ResolveVariables(tt.in, ctx)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
		} else {
			assert.NoError(t, err, tt.in)
		}
		assert.Equal(t, tt.want, got)
	}

	_, err := ResolveVariables("${workspaceFolder}", nil)
	assert.ErrorContains(t, err, "without a workspace")
}

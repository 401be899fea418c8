// Package launchconfig reads gdb debug configurations from a VS Code
// launch.json, so a session can be started the way the editor would.
//
// Two configuration types are understood: "cppdbg" with MIMode gdb (the
// Microsoft C/C++ extension) and "gdb". Files must be plain JSON.
package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// LaunchJSONFileName is the standard name for VS Code launch configuration file.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the VS Code configuration directory name.
	VSCodeDirName = ".vscode"
)

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
}

// EnvironmentEntry is one element of a cppdbg "environment" array.
type EnvironmentEntry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DebugConfiguration is a launch.json entry. Fields of both supported types
// are listed; the other types' fields are ignored.
type DebugConfiguration struct {
	Type    string `json:"type"`
	Request string `json:"request"`
	Name    string `json:"name"`

	Program string   `json:"program,omitempty"`
	Args    []string `json:"args,omitempty"`
	Cwd     string   `json:"cwd,omitempty"`

	// cppdbg
	Environment    []EnvironmentEntry `json:"environment,omitempty"`
	StopAtEntry    bool               `json:"stopAtEntry,omitempty"`
	MIMode         string             `json:"MIMode,omitempty"`
	MIDebuggerPath string             `json:"miDebuggerPath,omitempty"`

	// gdb
	Env                             map[string]string `json:"env,omitempty"`
	StopOnEntry                     bool              `json:"stopOnEntry,omitempty"`
	StopAtBeginningOfMainSubprogram bool              `json:"stopAtBeginningOfMainSubprogram,omitempty"`
	Debugger                        string            `json:"debugger,omitempty"`
}

// ConfigurationInfo provides summary information about a configuration.
type ConfigurationInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Request   string `json:"request"`
	Supported bool   `json:"supported"`
}

// LoadFromPath loads a launch.json file from an explicit path.
func LoadFromPath(path string) (*LaunchJSON, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read launch.json: %w", err)
	}

	var lj LaunchJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return nil, fmt.Errorf("failed to parse launch.json: %w", err)
	}

	return &lj, nil
}

// Discover searches for a .vscode/launch.json file starting from the given path
// and walking up the directory tree until found or reaching the root.
func Discover(startPath string) (string, error) {
	if startPath == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get current directory: %w", err)
		}
		startPath = cwd
	}

	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	// A file starts the search in its directory.
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		absPath = filepath.Dir(absPath)
	}

	for current := absPath; ; {
		launchPath := filepath.Join(current, VSCodeDirName, LaunchJSONFileName)
		if _, err := os.Stat(launchPath); err == nil {
			return launchPath, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return "", fmt.Errorf("no %s/%s found in %s or parent directories", VSCodeDirName, LaunchJSONFileName, startPath)
}

// LoadAndDiscover finds a launch.json from the start path and loads it.
func LoadAndDiscover(startPath string) (*LaunchJSON, string, error) {
	path, err := Discover(startPath)
	if err != nil {
		return nil, "", err
	}

	lj, err := LoadFromPath(path)
	if err != nil {
		return nil, "", err
	}

	return lj, path, nil
}

// FindConfiguration finds a configuration by name in the LaunchJSON.
func (lj *LaunchJSON) FindConfiguration(name string) (*DebugConfiguration, error) {
	for i := range lj.Configurations {
		if lj.Configurations[i].Name == name {
			return &lj.Configurations[i], nil
		}
	}
	return nil, fmt.Errorf("configuration %q not found", name)
}

// ListConfigurations returns summary information about all configurations.
func (lj *LaunchJSON) ListConfigurations() []ConfigurationInfo {
	infos := make([]ConfigurationInfo, len(lj.Configurations))
	for i, cfg := range lj.Configurations {
		infos[i] = ConfigurationInfo{
			Name:      cfg.Name,
			Type:      cfg.Type,
			Request:   cfg.Request,
			Supported: cfg.Validate() == nil,
		}
	}
	return infos
}

// GetWorkspaceFolder derives the workspace folder from the launch.json path.
// The workspace folder is the parent of the .vscode directory.
func GetWorkspaceFolder(launchJSONPath string) string {
	return filepath.Dir(filepath.Dir(launchJSONPath))
}

// Validate reports whether the configuration can start a gdb session.
func (c *DebugConfiguration) Validate() error {
	switch c.Type {
	case "gdb":
	case "cppdbg":
		if c.MIMode != "" && c.MIMode != "gdb" {
			return fmt.Errorf("configuration %q uses MIMode %q, only gdb is supported", c.Name, c.MIMode)
		}
	default:
		return fmt.Errorf("configuration %q has type %q, expected cppdbg or gdb", c.Name, c.Type)
	}
	if c.Request != "launch" {
		return fmt.Errorf("configuration %q is a %q request, only launch is supported", c.Name, c.Request)
	}
	if c.Program == "" {
		return fmt.Errorf("configuration %q has no program", c.Name)
	}
	return nil
}

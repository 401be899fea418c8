package launchconfig

import (
	"fmt"
	"path/filepath"

	"github.com/ctagard/gdbmi-dap/pkg/types"
)

// Resolve turns the configuration into a launch request, resolving its
// variables. Relative programs and working directories are taken as
// relative to the workspace.
func (c *DebugConfiguration) Resolve(ctx *ResolutionContext) (types.LaunchRequest, error) {
	if err := c.Validate(); err != nil {
		return types.LaunchRequest{}, err
	}
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	var req types.LaunchRequest
	var err error

	if req.Program, err = ResolveVariables(c.Program, ctx); err != nil {
		return req, fmt.Errorf("failed to resolve program: %w", err)
	}
	if req.Cwd, err = ResolveVariables(c.Cwd, ctx); err != nil {
		return req, fmt.Errorf("failed to resolve cwd: %w", err)
	}
	if req.Args, err = resolveSlice(c.Args, ctx); err != nil {
		return req, fmt.Errorf("failed to resolve args: %w", err)
	}

	debugger := c.MIDebuggerPath
	if c.Type == "gdb" {
		debugger = c.Debugger
	}
	if req.GDBPath, err = ResolveVariables(debugger, ctx); err != nil {
		return req, fmt.Errorf("failed to resolve debugger path: %w", err)
	}

	env := make(map[string]string, len(c.Env)+len(c.Environment))
	for k, v := range c.Env {
		if env[k], err = ResolveVariables(v, ctx); err != nil {
			return req, fmt.Errorf("failed to resolve env %s: %w", k, err)
		}
	}
	for _, e := range c.Environment {
		if env[e.Name], err = ResolveVariables(e.Value, ctx); err != nil {
			return req, fmt.Errorf("failed to resolve environment %s: %w", e.Name, err)
		}
	}
	if len(env) > 0 {
		req.Env = env
	}

	req.StopOnEntry = c.StopAtEntry || c.StopOnEntry || c.StopAtBeginningOfMainSubprogram

	if ctx.WorkspaceFolder != "" {
		req.Program = inWorkspace(ctx.WorkspaceFolder, req.Program)
		if req.Cwd != "" {
			req.Cwd = inWorkspace(ctx.WorkspaceFolder, req.Cwd)
		}
	}
	return req, nil
}

func inWorkspace(workspace, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workspace, path)
}

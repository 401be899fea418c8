package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/gdbmi-dap/internal/errors"
	"github.com/ctagard/gdbmi-dap/internal/launchconfig"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

const (
	defaultThread  = 1
	defaultLevels  = 20
	defaultTimeout = 10 * time.Second
)

// launchBreakpoint is a breakpoint given to gdb_launch.
type launchBreakpoint struct {
	Path string `json:"path"`
	types.BreakpointRequest
}

// Session Management Handlers

func (s *Server) handleLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := launchRequest(request)
	if err != nil {
		return toolError(err), nil
	}
	program := req.Program

	var initial []launchBreakpoint
	if bpsJSON := request.GetString("breakpoints", ""); bpsJSON != "" {
		if err := json.Unmarshal([]byte(bpsJSON), &initial); err != nil {
			return toolError(errors.InvalidJSON("breakpoints", err, `[{"path": "/src/main.c", "line": 12}]`)), nil
		}
	}

	entry, err := s.sessionManager.CreateSession()
	if err != nil {
		return toolError(err), nil
	}

	fail := func(err error) (*mcp.CallToolResult, error) {
		_ = s.sessionManager.TerminateSession(entry.ID())
		return toolError(err), nil
	}

	if err := entry.Launch(req); err != nil {
		return fail(err)
	}

	// Group by file: every gdb_breakpoints-style call replaces a file's set.
	byPath := map[string][]types.BreakpointRequest{}
	for _, bp := range initial {
		byPath[bp.Path] = append(byPath[bp.Path], bp.BreakpointRequest)
	}
	paths := make([]string, 0, len(byPath))
	for path := range byPath {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	breakpoints := map[string][]types.Breakpoint{}
	for _, path := range paths {
		bps, err := entry.SetBreakpoints(path, byPath[path])
		if err != nil {
			return fail(err)
		}
		breakpoints[path] = bps
	}

	if err := entry.ConfigurationDone(); err != nil {
		return fail(err)
	}

	s.log.Info("session launched", "session", entry.ID(), "program", program)

	result := map[string]interface{}{
		"sessionId": entry.ID(),
		"status":    string(entry.Status()),
		"program":   program,
	}
	if len(breakpoints) > 0 {
		result["breakpoints"] = breakpoints
	}
	if pid := entry.Info().PID; pid > 0 {
		result["pid"] = pid
	}
	return jsonResult(result)
}

// launchRequest builds the launch request from the tool arguments, starting
// from a launch.json configuration when one is named.
func launchRequest(request mcp.CallToolRequest) (types.LaunchRequest, error) {
	var req types.LaunchRequest
	if name := request.GetString("configuration", ""); name != "" {
		lj, path, err := launchconfig.LoadAndDiscover(request.GetString("workspace", ""))
		if err != nil {
			return req, errors.Wrap(errors.KindInvalidArgument, err).
				WithHint("Pass 'workspace', a directory at or below the one holding .vscode/launch.json.")
		}
		cfg, err := lj.FindConfiguration(name)
		if err != nil {
			return req, errors.Wrap(errors.KindInvalidArgument, err).
				WithDetails("launchJson", path)
		}
		req, err = cfg.Resolve(&launchconfig.ResolutionContext{WorkspaceFolder: launchconfig.GetWorkspaceFolder(path)})
		if err != nil {
			return req, errors.Wrap(errors.KindInvalidArgument, err).
				WithDetails("launchJson", path)
		}
	}

	// Explicit arguments override the configuration.
	if program := request.GetString("program", ""); program != "" {
		req.Program = program
	}
	if req.Program == "" {
		return req, errors.MissingParameter("program",
			"Specify the path to the executable to debug, or a launch.json 'configuration'. Build it with -g so gdb can find lines and variables.")
	}
	if gdbPath := request.GetString("gdbPath", ""); gdbPath != "" {
		req.GDBPath = gdbPath
	}
	if cwd := request.GetString("cwd", ""); cwd != "" {
		req.Cwd = cwd
	}
	if _, set := request.GetArguments()["stopOnEntry"]; set {
		req.StopOnEntry = request.GetBool("stopOnEntry", false)
	}
	if argsJSON := request.GetString("args", ""); argsJSON != "" {
		req.Args = nil
		if err := json.Unmarshal([]byte(argsJSON), &req.Args); err != nil {
			return req, errors.InvalidJSON("args", err, `["-v", "input.txt"]`)
		}
	}
	if envJSON := request.GetString("env", ""); envJSON != "" {
		var env map[string]string
		if err := json.Unmarshal([]byte(envJSON), &env); err != nil {
			return req, errors.InvalidJSON("env", err, `{"LD_LIBRARY_PATH": "/opt/lib"}`)
		}
		if req.Env == nil {
			req.Env = map[string]string{}
		}
		for k, v := range env {
			req.Env[k] = v
		}
	}
	return req, nil
}

func (s *Server) handleListConfigurations(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lj, path, err := launchconfig.LoadAndDiscover(request.GetString("workspace", ""))
	if err != nil {
		return toolError(errors.Wrap(errors.KindInvalidArgument, err)), nil
	}
	return jsonResult(map[string]interface{}{
		"launchJson":     path,
		"configurations": lj.ListConfigurations(),
	})
}

func (s *Server) handleDisconnect(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return toolError(missingSessionID()), nil
	}

	if err := s.sessionManager.TerminateSession(sessionID); err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"sessionId": sessionID,
		"status":    "disconnected",
	})
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]interface{}{
		"sessions": s.sessionManager.ListSessions(),
	})
}

// Inspection Handlers

func (s *Server) handleThreads(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	threads, err := entry.Threads()
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"threads": threads,
	})
}

func (s *Server) handleStack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	threadID := int(request.GetFloat("threadId", defaultThread))
	startFrame := int(request.GetFloat("startFrame", 0))
	levels := int(request.GetFloat("levels", defaultLevels))

	frames, total, err := entry.StackTrace(threadID, startFrame, levels)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"stackFrames": frames,
		"totalFrames": total,
	})
}

func (s *Server) handleScopes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	frameID, err := request.RequireFloat("frameId")
	if err != nil {
		return toolError(errors.MissingParameter("frameId", "Use a frame id from gdb_stack.")), nil
	}

	scopes, err := entry.Scopes(int(frameID))
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"scopes": scopes,
	})
}

func (s *Server) handleVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	ref, err := request.RequireFloat("variablesReference")
	if err != nil {
		return toolError(errors.MissingParameter("variablesReference",
			"Use a variablesReference from gdb_scopes, gdb_variables or gdb_evaluate.")), nil
	}

	vars, err := entry.Variables(int(ref))
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"variables": vars,
	})
}

// handleEvaluate evaluates a single expression or a batch of them
func (s *Server) handleEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanEvaluate() {
		return toolError(errors.New(errors.KindEvaluate, "expression evaluation is not allowed").
			WithHint("Enable mcp.allowEvaluate in the configuration.")), nil
	}

	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	frameID := int(request.GetFloat("frameId", 0))
	if frameID == 0 {
		// Try to get the top frame automatically
		if frames, _, err := entry.StackTrace(defaultThread, 0, 1); err == nil && len(frames) > 0 {
			frameID = frames[0].ID
		}
	}

	// Check for batch mode first
	if expressionsJSON := request.GetString("expressions", ""); expressionsJSON != "" {
		var expressions []string
		if err := json.Unmarshal([]byte(expressionsJSON), &expressions); err != nil {
			return toolError(errors.InvalidJSON("expressions", err, `["x", "y", "arr[3]"]`)), nil
		}

		results := make([]map[string]interface{}, len(expressions))
		for i, expr := range expressions {
			result, err := entry.Evaluate(expr, frameID)
			if err != nil {
				results[i] = map[string]interface{}{
					"expression": expr,
					"error":      err.Error(),
				}
				continue
			}
			results[i] = map[string]interface{}{
				"expression":         expr,
				"result":             result.Result,
				"type":               result.Type,
				"variablesReference": result.VariablesReference,
			}
		}

		return jsonResult(map[string]interface{}{
			"evaluations": results,
			"frameId":     frameID,
		})
	}

	// Single expression mode
	expression := request.GetString("expression", "")
	if expression == "" {
		return toolError(errors.MissingParameter("expression",
			"Provide either 'expression' for a single evaluation (e.g., \"count * 2\") or 'expressions' for batch evaluation (e.g., [\"x\", \"y\"]).")), nil
	}

	result, err := entry.Evaluate(expression, frameID)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(result)
}

func (s *Server) handleWaitStopped(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}
	return s.waitResult(entry, timeoutParam(request))
}

// waitResult waits for entry to stop and reports the stop with the output
// collected since the last report. Timing out is not an error: the result
// says the program is still running.
func (s *Server) waitResult(entry *Entry, timeout time.Duration) (*mcp.CallToolResult, error) {
	status, stop, waitErr := entry.WaitForStop(timeout)
	output, dropped := entry.Output()

	result := map[string]interface{}{
		"sessionId": entry.ID(),
		"status":    string(status),
	}
	if stop != nil {
		result["stopped"] = stop
	}
	if waitErr != nil {
		result["timedOut"] = true
	}
	if status == types.SessionStatusTerminated {
		if code := entry.Info().ExitCode; code != nil {
			result["exitCode"] = *code
		}
	}
	if len(output) > 0 {
		result["output"] = output
	}
	if dropped > 0 {
		result["outputDropped"] = dropped
	}
	return jsonResult(result)
}

// Control Handlers

func (s *Server) handleBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	path, err := request.RequireString("path")
	if err != nil {
		return toolError(errors.MissingParameter("path", "Give the source file path, as gdb knows it.")), nil
	}

	bpsJSON, err := request.RequireString("breakpoints")
	if err != nil {
		return toolError(errors.MissingParameter("breakpoints", "Pass [] to clear the file's breakpoints.")), nil
	}

	var requests []types.BreakpointRequest
	if err := json.Unmarshal([]byte(bpsJSON), &requests); err != nil {
		return toolError(errors.InvalidJSON("breakpoints", err, `[{"line": 10}, {"line": 20, "condition": "x > 5"}]`)), nil
	}

	bps, err := entry.SetBreakpoints(path, requests)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(map[string]interface{}{
		"breakpoints": bps,
	})
}

func (s *Server) handleContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	if err := entry.Continue(int(request.GetFloat("threadId", defaultThread))); err != nil {
		return toolError(err), nil
	}

	if request.GetBool("wait", true) {
		return s.waitResult(entry, timeoutParam(request))
	}
	return jsonResult(map[string]interface{}{
		"status": string(entry.Status()),
	})
}

// handleStep runs next, step or finish depending on the step type
func (s *Server) handleStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	stepType, err := request.RequireString("type")
	if err != nil {
		return toolError(errors.MissingParameter("type", "Use 'over', 'into' or 'out'.")), nil
	}

	var step func(int) error
	switch stepType {
	case "over":
		step = entry.Next
	case "into":
		step = entry.StepIn
	case "out":
		step = entry.StepOut
	default:
		return toolError(errors.New(errors.KindInvalidArgument, "invalid step type %q", stepType).
			WithHint("Use 'over', 'into' or 'out'.")), nil
	}

	if err := step(int(request.GetFloat("threadId", defaultThread))); err != nil {
		return toolError(err), nil
	}

	if request.GetBool("wait", true) {
		return s.waitResult(entry, timeoutParam(request))
	}
	return jsonResult(map[string]interface{}{
		"status": string(entry.Status()),
		"type":   stepType,
	})
}

func (s *Server) handlePause(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	if err := entry.Pause(int(request.GetFloat("threadId", defaultThread))); err != nil {
		return toolError(err), nil
	}

	return s.waitResult(entry, defaultTimeout)
}

func (s *Server) handleSetVariable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.config.CanModifyVariables() {
		return toolError(errors.New(errors.KindSetVariable, "variable modification is not allowed").
			WithHint("Enable mcp.allowModify in the configuration.")), nil
	}

	entry, err := s.getSession(request)
	if err != nil {
		return toolError(err), nil
	}

	ref, err := request.RequireFloat("variablesReference")
	if err != nil {
		return toolError(errors.MissingParameter("variablesReference", "Use the reference of the scope or structure holding the variable.")), nil
	}

	name, err := request.RequireString("name")
	if err != nil {
		return toolError(errors.MissingParameter("name", "Give the variable or member name.")), nil
	}

	value, err := request.RequireString("value")
	if err != nil {
		return toolError(errors.MissingParameter("value", "Give the new value as a C expression.")), nil
	}

	v, err := entry.SetVariable(int(ref), name, value)
	if err != nil {
		return toolError(err), nil
	}

	return jsonResult(v)
}

func (s *Server) getSession(request mcp.CallToolRequest) (*Entry, error) {
	sessionID, err := request.RequireString("sessionId")
	if err != nil {
		return nil, missingSessionID()
	}
	return s.sessionManager.GetSession(sessionID)
}

func missingSessionID() error {
	return errors.MissingParameter("sessionId",
		"Provide the sessionId returned from gdb_launch. Use gdb_list_sessions to see active sessions.")
}

func timeoutParam(request mcp.CallToolRequest) time.Duration {
	ms := request.GetFloat("timeoutMs", 0)
	if ms <= 0 {
		return defaultTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// toolError renders a failure as an MCP error result carrying its code.
func toolError(err error) *mcp.CallToolResult {
	de := errors.FromError(err)
	return mcp.NewToolResultError(fmt.Sprintf("error %d: %s", de.Code(), de.Error()))
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

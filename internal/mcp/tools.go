package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the gdb tool set
func (s *Server) registerTools() {
	// Session Management
	s.registerLaunch()
	s.registerDisconnect()
	s.registerListSessions()
	s.registerListConfigurations()

	// Inspection
	s.registerThreads()
	s.registerStack()
	s.registerScopes()
	s.registerVariables()
	s.registerEvaluate()
	s.registerWaitStopped()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerBreakpoints()
		s.registerContinue()
		s.registerStep()
		s.registerPause()
		s.registerSetVariable()
	}
}

func sessionIDParam() mcp.ToolOption {
	return mcp.WithString("sessionId",
		mcp.Required(),
		mcp.Description("The session ID returned by gdb_launch"),
	)
}

func threadIDParam(action string) mcp.ToolOption {
	return mcp.WithNumber("threadId",
		mcp.Description("The gdb thread ID to "+action+" (default: 1)"),
	)
}

func waitParams() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithBoolean("wait",
			mcp.Description("Wait for the program to stop again and return the stop (default: true)"),
		),
		mcp.WithNumber("timeoutMs",
			mcp.Description("How long to wait for the stop, in milliseconds (default: 10000)"),
		),
	}
}

// Session Management Tools

func (s *Server) registerLaunch() {
	tool := mcp.NewTool("gdb_launch",
		mcp.WithDescription("Start gdb on a compiled program, set initial breakpoints and run it. Returns sessionId needed for all other tools. Use stopOnEntry=true to stop in main, or pass breakpoints to stop where you need to. Give either program or a launch.json configuration."),
		mcp.WithString("program",
			mcp.Description("Path to the executable to debug (built with -g)"),
		),
		mcp.WithString("configuration",
			mcp.Description("Name of a cppdbg or gdb configuration in .vscode/launch.json. Other parameters override it."),
		),
		mcp.WithString("workspace",
			mcp.Description("Directory to search for .vscode/launch.json from (default: the server's working directory)"),
		),
		mcp.WithString("args",
			mcp.Description("JSON array of program arguments, e.g. [\"-v\", \"input.txt\"]"),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory for the program"),
		),
		mcp.WithString("env",
			mcp.Description("JSON object of environment variables for gdb and the program"),
		),
		mcp.WithString("gdbPath",
			mcp.Description("gdb executable to use (default: configured gdb.path)"),
		),
		mcp.WithBoolean("stopOnEntry",
			mcp.Description("Stop at the start of main (default: false)"),
		),
		mcp.WithString("breakpoints",
			mcp.Description("JSON array of breakpoints set before the program runs: [{path: string, line: number, condition?: string, hitCondition?: string}]"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleLaunch)
}

func (s *Server) registerDisconnect() {
	tool := mcp.NewTool("gdb_disconnect",
		mcp.WithDescription("End a debug session. gdb and the program are stopped."),
		sessionIDParam(),
	)
	s.mcpServer.AddTool(tool, s.handleDisconnect)
}

func (s *Server) registerListSessions() {
	tool := mcp.NewTool("gdb_list_sessions",
		mcp.WithDescription("List all debug sessions with their status, last stop and exit code"),
	)
	s.mcpServer.AddTool(tool, s.handleListSessions)
}

func (s *Server) registerListConfigurations() {
	tool := mcp.NewTool("gdb_list_configurations",
		mcp.WithDescription("List the debug configurations of the workspace's .vscode/launch.json and whether gdb_launch can use them"),
		mcp.WithString("workspace",
			mcp.Description("Directory to search for .vscode/launch.json from (default: the server's working directory)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleListConfigurations)
}

// Inspection Tools

func (s *Server) registerThreads() {
	tool := mcp.NewTool("gdb_threads",
		mcp.WithDescription("List the program's threads. The program must be stopped."),
		sessionIDParam(),
	)
	s.mcpServer.AddTool(tool, s.handleThreads)
}

func (s *Server) registerStack() {
	tool := mcp.NewTool("gdb_stack",
		mcp.WithDescription("Get the call stack of a thread. Frame IDs are used by gdb_scopes and gdb_evaluate."),
		sessionIDParam(),
		threadIDParam("inspect"),
		mcp.WithNumber("startFrame",
			mcp.Description("Index of the first frame to return (default: 0)"),
		),
		mcp.WithNumber("levels",
			mcp.Description("Maximum number of frames to return (default: 20)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleStack)
}

func (s *Server) registerScopes() {
	tool := mcp.NewTool("gdb_scopes",
		mcp.WithDescription("Get the variable scopes of a frame. Variable references from earlier scopes calls become invalid."),
		sessionIDParam(),
		mcp.WithNumber("frameId",
			mcp.Required(),
			mcp.Description("Frame ID from gdb_stack"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleScopes)
}

func (s *Server) registerVariables() {
	tool := mcp.NewTool("gdb_variables",
		mcp.WithDescription("Get the variables of a scope, or the members of a structured variable"),
		sessionIDParam(),
		mcp.WithNumber("variablesReference",
			mcp.Required(),
			mcp.Description("variablesReference from gdb_scopes, gdb_variables or gdb_evaluate"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleVariables)
}

func (s *Server) registerEvaluate() {
	tool := mcp.NewTool("gdb_evaluate",
		mcp.WithDescription("Evaluate one or more C/C++ expressions in a frame. Supports single expression OR batch mode."),
		sessionIDParam(),
		mcp.WithString("expression",
			mcp.Description("Single expression to evaluate (e.g., 'count * 2', 'p->next')"),
		),
		mcp.WithString("expressions",
			mcp.Description("JSON array of expressions for batch evaluation: [\"x\", \"y\", \"arr[3]\"]"),
		),
		mcp.WithNumber("frameId",
			mcp.Description("Frame ID from gdb_stack (default: top frame of thread 1)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleEvaluate)
}

func (s *Server) registerWaitStopped() {
	tool := mcp.NewTool("gdb_wait_stopped",
		mcp.WithDescription("Wait until the program stops or exits. Returns the status, the stop and the output since the last call."),
		sessionIDParam(),
		mcp.WithNumber("timeoutMs",
			mcp.Description("How long to wait, in milliseconds (default: 10000)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleWaitStopped)
}

// Control Tools (Full mode only)

func (s *Server) registerBreakpoints() {
	tool := mcp.NewTool("gdb_breakpoints",
		mcp.WithDescription("Set breakpoints in a source file. This REPLACES all breakpoints in the file. Lines without code are reported unverified."),
		sessionIDParam(),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("The source file path, as gdb knows it"),
		),
		mcp.WithString("breakpoints",
			mcp.Required(),
			mcp.Description("JSON array of breakpoints: [{line: number, condition?: string, hitCondition?: string}]"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpoints)
}

func (s *Server) registerContinue() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Continue execution until the next breakpoint or program end"),
		sessionIDParam(),
		threadIDParam("continue"),
	}
	tool := mcp.NewTool("gdb_continue", append(opts, waitParams()...)...)
	s.mcpServer.AddTool(tool, s.handleContinue)
}

func (s *Server) registerStep() {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Execute a step command. Use type='over' to step to next line, 'into' to enter function calls, 'out' to finish the current function."),
		sessionIDParam(),
		threadIDParam("step"),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Step type: 'over', 'into' or 'out'"),
			mcp.Enum("over", "into", "out"),
		),
	}
	tool := mcp.NewTool("gdb_step", append(opts, waitParams()...)...)
	s.mcpServer.AddTool(tool, s.handleStep)
}

func (s *Server) registerPause() {
	tool := mcp.NewTool("gdb_pause",
		mcp.WithDescription("Interrupt the running program"),
		sessionIDParam(),
		threadIDParam("pause"),
	)
	s.mcpServer.AddTool(tool, s.handlePause)
}

func (s *Server) registerSetVariable() {
	tool := mcp.NewTool("gdb_set_variable",
		mcp.WithDescription("Assign a new value to a variable. Use the variablesReference of the scope or structure holding it."),
		sessionIDParam(),
		mcp.WithNumber("variablesReference",
			mcp.Required(),
			mcp.Description("The variables reference containing the variable"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("The variable name to modify"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("The new value, as a C expression"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleSetVariable)
}

package dap

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/go-logr/logr"
	"github.com/google/go-dap"

	"github.com/ctagard/gdbmi-dap/internal/bridge"
	"github.com/ctagard/gdbmi-dap/internal/errors"
	"github.com/ctagard/gdbmi-dap/internal/metrics"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

// handlerFunc serves one request and returns its response.
type handlerFunc func(msg dap.Message) (dap.ResponseMessage, error)

// Extension serves requests no built-in handler knows. request is nil when
// go-dap could not decode the command. A nil error sends an empty success
// response.
type Extension func(command string, request dap.Message) error

// Unsupported is the default Extension: every request fails as unsupported.
func Unsupported(command string, _ dap.Message) error {
	return errors.New(errors.KindUnsupported, "unsupported request %q", command)
}

// Server answers one front end's requests with one bridge session.
// Requests are handled one at a time, in arrival order.
type Server struct {
	transport *Transport
	session   *bridge.Session
	handlers  map[string]handlerFunc
	log       logr.Logger

	// Extension serves unknown commands. Set it before Serve.
	Extension Extension

	mu      sync.Mutex
	closing bool
}

// NewServer creates a server speaking DAP over t.
func NewServer(t *Transport, cfg bridge.Config) *Server {
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	s := &Server{
		transport: t,
		Extension: Unsupported,
	}
	s.session = bridge.NewSession(cfg, s)
	s.log = cfg.Logger.WithName("dap").WithValues("session", s.session.ID())

	s.handlers = map[string]handlerFunc{
		"initialize":        handle(s.onInitialize),
		"launch":            handle(s.onLaunch),
		"setBreakpoints":    handle(s.onSetBreakpoints),
		"configurationDone": handle(s.onConfigurationDone),
		"threads":           handle(s.onThreads),
		"stackTrace":        handle(s.onStackTrace),
		"scopes":            handle(s.onScopes),
		"variables":         handle(s.onVariables),
		"setVariable":       handle(s.onSetVariable),
		"evaluate":          handle(s.onEvaluate),
		"continue":          handle(s.onContinue),
		"next":              handle(s.onNext),
		"stepIn":            handle(s.onStepIn),
		"stepOut":           handle(s.onStepOut),
		"pause":             handle(s.onPause),
		"terminate":         handle(s.onTerminate),
		"disconnect":        handle(s.onDisconnect),
	}
	return s
}

// handle adapts a handler typed to its request.
func handle[T dap.RequestMessage](fn func(T) (dap.ResponseMessage, error)) handlerFunc {
	return func(msg dap.Message) (dap.ResponseMessage, error) {
		req, ok := msg.(T)
		if !ok {
			return nil, errors.New(errors.KindInternal, "unexpected message type %T", msg)
		}
		return fn(req)
	}
}

// Session returns the bridge session the server drives.
func (s *Server) Session() *bridge.Session {
	return s.session
}

// Serve handles requests until the front end disconnects, the connection
// closes or ctx is cancelled. The session is disconnected on return.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = s.transport.Close()
	})
	defer stop()
	defer func() {
		if err := s.session.Disconnect(); err != nil {
			s.log.Error(err, "failed to disconnect session")
		}
		_ = s.transport.Close()
	}()

	s.log.Info("front end connected")
	for {
		msg, err := s.transport.Receive()
		if err != nil {
			var fieldErr *dap.DecodeProtocolMessageFieldError
			if stderrors.As(err, &fieldErr) {
				s.undecodable(fieldErr)
				continue
			}
			if stderrors.Is(err, io.EOF) || stderrors.Is(err, net.ErrClosed) || ctx.Err() != nil || s.isClosing() {
				s.log.Info("front end disconnected")
				return nil
			}
			return fmt.Errorf("failed to read DAP message: %w", err)
		}

		req, ok := msg.(dap.RequestMessage)
		if !ok {
			s.log.V(1).Info("ignoring non-request message", "type", fmt.Sprintf("%T", msg))
			continue
		}
		s.dispatch(req)

		if s.isClosing() {
			return nil
		}
	}
}

func (s *Server) dispatch(msg dap.RequestMessage) {
	req := msg.GetRequest()
	s.log.V(1).Info("request", "seq", req.Seq, "command", req.Command)

	var resp dap.ResponseMessage
	var err error
	if h, ok := s.handlers[req.Command]; ok {
		resp, err = h(msg)
	} else if err = s.Extension(req.Command, msg); err == nil {
		resp = &dap.Response{}
	}

	metrics.IncRequest(req.Command, err == nil)
	if err != nil {
		s.log.Info("request failed", "command", req.Command, "err", err.Error())
		s.sendError(req.Seq, req.Command, err)
		return
	}

	r := resp.GetResponse()
	r.Type = "response"
	r.RequestSeq = req.Seq
	r.Command = req.Command
	r.Success = true
	s.send(resp)
}

// undecodable routes a request go-dap could not decode. Unknown commands go
// to the extension point; other decode failures are invalid arguments.
func (s *Server) undecodable(e *dap.DecodeProtocolMessageFieldError) {
	if e.FieldName != "command" {
		metrics.IncRequest("invalid", false)
		s.sendError(e.Seq, e.FieldValue, errors.New(errors.KindInvalidArgument, "%s", e.Error()))
		return
	}

	err := s.Extension(e.FieldValue, nil)
	metrics.IncRequest(e.FieldValue, err == nil)
	if err != nil {
		s.sendError(e.Seq, e.FieldValue, err)
		return
	}
	s.send(&dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response"},
		RequestSeq:      e.Seq,
		Command:         e.FieldValue,
		Success:         true,
	})
}

func (s *Server) sendError(requestSeq int, command string, err error) {
	de := errors.FromError(err)
	s.send(&dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			RequestSeq:      requestSeq,
			Command:         command,
			Success:         false,
			Message:         de.Kind.String(),
		},
		Body: dap.ErrorResponseBody{
			Error: &dap.ErrorMessage{
				Id:       de.Code(),
				Format:   de.Error(),
				ShowUser: true,
			},
		},
	})
}

func (s *Server) send(msg dap.Message) {
	if err := s.transport.Send(msg); err != nil {
		s.log.V(1).Info("failed to send message", "err", err.Error())
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *Server) event(name string) dap.Event {
	return dap.Event{ProtocolMessage: dap.ProtocolMessage{Type: "event"}, Event: name}
}

// Initialized implements bridge.Notifier.
func (s *Server) Initialized() {
	s.send(&dap.InitializedEvent{Event: s.event("initialized")})
}

// Stopped implements bridge.Notifier.
func (s *Server) Stopped(info types.StoppedInfo) {
	s.send(&dap.StoppedEvent{
		Event: s.event("stopped"),
		Body: dap.StoppedEventBody{
			Reason:            info.Reason,
			Description:       info.Description,
			ThreadId:          info.ThreadID,
			AllThreadsStopped: info.AllThreadsStopped,
			HitBreakpointIds:  info.HitBreakpointIDs,
		},
	})
}

// Exited implements bridge.Notifier.
func (s *Server) Exited(code int) {
	s.send(&dap.ExitedEvent{Event: s.event("exited"), Body: dap.ExitedEventBody{ExitCode: code}})
}

// Terminated implements bridge.Notifier.
func (s *Server) Terminated() {
	s.send(&dap.TerminatedEvent{Event: s.event("terminated")})
}

// Output implements bridge.Notifier.
func (s *Server) Output(category, text string) {
	s.send(&dap.OutputEvent{Event: s.event("output"), Body: dap.OutputEventBody{Category: category, Output: text}})
}

// launchArguments are the launch request's arguments. "program" is accepted
// in place of "target".
type launchArguments struct {
	types.LaunchRequest
	ProgramAlias string `json:"program"`
}

func (s *Server) onInitialize(req *dap.InitializeRequest) (dap.ResponseMessage, error) {
	s.log.Info("initialize", "client", req.Arguments.ClientID, "adapter", req.Arguments.AdapterID)
	caps := s.session.Initialize()
	return &dap.InitializeResponse{
		Body: dap.Capabilities{
			SupportsConfigurationDoneRequest:  caps.SupportsConfigurationDone,
			SupportsConditionalBreakpoints:    caps.SupportsConditionalBreaks,
			SupportsHitConditionalBreakpoints: caps.SupportsHitConditionalBreak,
			SupportsSetVariable:               caps.SupportsSetVariable,
			SupportsEvaluateForHovers:         caps.SupportsEvaluateForHovers,
			SupportsTerminateRequest:          caps.SupportsTerminateRequest,
		},
	}, nil
}

func (s *Server) onLaunch(req *dap.LaunchRequest) (dap.ResponseMessage, error) {
	var args launchArguments
	if len(req.Arguments) > 0 {
		if err := json.Unmarshal(req.Arguments, &args); err != nil {
			return nil, errors.InvalidJSON("arguments", err, `{"target": "./a.out", "gdbpath": "gdb"}`)
		}
	}
	launch := args.LaunchRequest
	if launch.Program == "" {
		launch.Program = args.ProgramAlias
	}
	if err := s.session.Launch(launch); err != nil {
		return nil, err
	}
	return &dap.LaunchResponse{}, nil
}

func (s *Server) onSetBreakpoints(req *dap.SetBreakpointsRequest) (dap.ResponseMessage, error) {
	requests := make([]types.BreakpointRequest, len(req.Arguments.Breakpoints))
	for i, bp := range req.Arguments.Breakpoints {
		requests[i] = types.BreakpointRequest{Line: bp.Line, Condition: bp.Condition, HitCondition: bp.HitCondition}
	}

	bps, err := s.session.SetBreakpoints(req.Arguments.Source.Path, requests)
	if err != nil {
		return nil, err
	}

	out := make([]dap.Breakpoint, len(bps))
	for i, bp := range bps {
		out[i] = dap.Breakpoint{Id: bp.ID, Verified: bp.Verified, Message: bp.Message, Line: bp.Line}
		if bp.Source != nil {
			out[i].Source = &dap.Source{Name: bp.Source.Name, Path: bp.Source.Path}
		}
	}
	return &dap.SetBreakpointsResponse{Body: dap.SetBreakpointsResponseBody{Breakpoints: out}}, nil
}

func (s *Server) onConfigurationDone(*dap.ConfigurationDoneRequest) (dap.ResponseMessage, error) {
	if err := s.session.ConfigurationDone(); err != nil {
		return nil, err
	}
	return &dap.ConfigurationDoneResponse{}, nil
}

func (s *Server) onThreads(*dap.ThreadsRequest) (dap.ResponseMessage, error) {
	threads, err := s.session.Threads()
	if err != nil {
		return nil, err
	}
	out := make([]dap.Thread, len(threads))
	for i, t := range threads {
		out[i] = dap.Thread{Id: t.ID, Name: t.Name}
	}
	return &dap.ThreadsResponse{Body: dap.ThreadsResponseBody{Threads: out}}, nil
}

func (s *Server) onStackTrace(req *dap.StackTraceRequest) (dap.ResponseMessage, error) {
	frames, total, err := s.session.StackTrace(req.Arguments.ThreadId, req.Arguments.StartFrame, req.Arguments.Levels)
	if err != nil {
		return nil, err
	}
	out := make([]dap.StackFrame, len(frames))
	for i, f := range frames {
		out[i] = dap.StackFrame{
			Id:                          f.ID,
			Name:                        f.Name,
			Line:                        f.Line,
			Column:                      f.Column,
			InstructionPointerReference: f.Address,
		}
		if f.Source != nil {
			out[i].Source = &dap.Source{Name: f.Source.Name, Path: f.Source.Path}
		}
		if f.Module != "" {
			out[i].ModuleId = f.Module
		}
	}
	return &dap.StackTraceResponse{Body: dap.StackTraceResponseBody{StackFrames: out, TotalFrames: total}}, nil
}

func (s *Server) onScopes(req *dap.ScopesRequest) (dap.ResponseMessage, error) {
	scopes, err := s.session.Scopes(req.Arguments.FrameId)
	if err != nil {
		return nil, err
	}
	out := make([]dap.Scope, len(scopes))
	for i, sc := range scopes {
		out[i] = dap.Scope{
			Name:               sc.Name,
			PresentationHint:   "locals",
			VariablesReference: sc.VariablesReference,
			NamedVariables:     sc.NamedVariables,
			Expensive:          sc.Expensive,
		}
	}
	return &dap.ScopesResponse{Body: dap.ScopesResponseBody{Scopes: out}}, nil
}

func (s *Server) onVariables(req *dap.VariablesRequest) (dap.ResponseMessage, error) {
	vars, err := s.session.Variables(req.Arguments.VariablesReference)
	if err != nil {
		return nil, err
	}
	out := make([]dap.Variable, len(vars))
	for i, v := range vars {
		out[i] = dap.Variable{
			Name:               v.Name,
			Value:              v.Value,
			Type:               v.Type,
			EvaluateName:       v.EvaluateName,
			VariablesReference: v.VariablesReference,
			NamedVariables:     v.NamedVariables,
		}
	}
	return &dap.VariablesResponse{Body: dap.VariablesResponseBody{Variables: out}}, nil
}

func (s *Server) onSetVariable(req *dap.SetVariableRequest) (dap.ResponseMessage, error) {
	v, err := s.session.SetVariable(req.Arguments.VariablesReference, req.Arguments.Name, req.Arguments.Value)
	if err != nil {
		return nil, err
	}
	return &dap.SetVariableResponse{Body: dap.SetVariableResponseBody{
		Value:              v.Value,
		Type:               v.Type,
		VariablesReference: v.VariablesReference,
	}}, nil
}

func (s *Server) onEvaluate(req *dap.EvaluateRequest) (dap.ResponseMessage, error) {
	res, err := s.session.Evaluate(req.Arguments.Expression, req.Arguments.FrameId)
	if err != nil {
		return nil, err
	}
	return &dap.EvaluateResponse{Body: dap.EvaluateResponseBody{
		Result:             res.Result,
		Type:               res.Type,
		VariablesReference: res.VariablesReference,
		NamedVariables:     res.NamedVariables,
	}}, nil
}

func (s *Server) onContinue(req *dap.ContinueRequest) (dap.ResponseMessage, error) {
	if err := s.session.Continue(req.Arguments.ThreadId); err != nil {
		return nil, err
	}
	return &dap.ContinueResponse{Body: dap.ContinueResponseBody{AllThreadsContinued: true}}, nil
}

func (s *Server) onNext(req *dap.NextRequest) (dap.ResponseMessage, error) {
	if err := s.session.Next(req.Arguments.ThreadId); err != nil {
		return nil, err
	}
	return &dap.NextResponse{}, nil
}

func (s *Server) onStepIn(req *dap.StepInRequest) (dap.ResponseMessage, error) {
	if err := s.session.StepIn(req.Arguments.ThreadId); err != nil {
		return nil, err
	}
	return &dap.StepInResponse{}, nil
}

func (s *Server) onStepOut(req *dap.StepOutRequest) (dap.ResponseMessage, error) {
	if err := s.session.StepOut(req.Arguments.ThreadId); err != nil {
		return nil, err
	}
	return &dap.StepOutResponse{}, nil
}

func (s *Server) onPause(req *dap.PauseRequest) (dap.ResponseMessage, error) {
	if err := s.session.Pause(req.Arguments.ThreadId); err != nil {
		return nil, err
	}
	return &dap.PauseResponse{}, nil
}

// onTerminate stops gdb and the program but keeps the connection open for
// the disconnect that follows.
func (s *Server) onTerminate(*dap.TerminateRequest) (dap.ResponseMessage, error) {
	if err := s.session.Disconnect(); err != nil {
		return nil, err
	}
	s.Terminated()
	return &dap.TerminateResponse{}, nil
}

func (s *Server) onDisconnect(*dap.DisconnectRequest) (dap.ResponseMessage, error) {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	if err := s.session.Disconnect(); err != nil {
		return nil, err
	}
	return &dap.DisconnectResponse{}, nil
}

// ServeListener accepts front ends on l until ctx is cancelled. Every
// connection gets its own server, session and gdb.
func ServeListener(ctx context.Context, l net.Listener, cfg bridge.Config) error {
	stop := context.AfterFunc(ctx, func() {
		_ = l.Close()
	})
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := NewServer(NewTransport(conn), cfg)
			srv.log.Info("accepted connection", "remote", conn.RemoteAddr().String())
			if err := srv.Serve(ctx); err != nil {
				srv.log.Error(err, "connection failed")
			}
		}()
	}
}

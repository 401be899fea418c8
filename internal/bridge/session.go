// Package bridge is the stateful, protocol-agnostic layer between a debugging
// front end and gdb. A Session turns front-end operations into gdb client
// calls, owns the variable reference table and the per-thread registries of
// root variable objects, and reports gdb's asynchronous events through a
// Notifier.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/ctagard/gdbmi-dap/internal/errors"
	"github.com/ctagard/gdbmi-dap/internal/gdb"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

// Notifier receives a session's asynchronous notifications. Calls are made
// from a single goroutine, in the order gdb reported the events.
type Notifier interface {
	Initialized()
	Stopped(info types.StoppedInfo)
	Exited(code int)
	Terminated()
	Output(category, text string)
}

// StartFunc starts gdb for a launch request. The client must be built from cfg.
type StartFunc func(ctx context.Context, req types.LaunchRequest, cfg gdb.Config) (*gdb.Client, error)

// Config configures a Session.
type Config struct {
	// GDBPath is used when the launch request does not name a gdb.
	GDBPath string
	GDBArgs []string
	// NewConsole runs the inferior in its own console window (Windows).
	NewConsole bool
	// Client configures the gdb client (command timeout, sentinel).
	Client gdb.Config
	// ShutdownGrace bounds how long Disconnect waits for gdb to exit before killing it.
	ShutdownGrace time.Duration
	// Start replaces spawning a gdb process. Used by tests.
	Start  StartFunc
	Logger logr.Logger
}

// maxStackDepth is the number of frames a stack trace returns; deeper frames
// cannot be addressed by a Reference.
const maxStackDepth = MaxFrame + 1

// Session is one debugging session backed by one gdb process.
type Session struct {
	id     string
	cfg    Config
	notify Notifier
	log    logr.Logger

	mu         sync.Mutex
	status     types.SessionStatus
	client     *gdb.Client
	launch     types.LaunchRequest
	entryBkpt  int
	lastStop   *types.StoppedInfo
	exitCode   *int
	changed    chan struct{}
	createdAt  time.Time
	references *registry
	evalMu     sync.Mutex

	finished sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSession creates an uninitialized session reporting to notify.
func NewSession(cfg Config, notify Notifier) *Session {
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 2 * time.Second
	}

	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:         id,
		cfg:        cfg,
		notify:     notify,
		log:        cfg.Logger.WithValues("session", id),
		status:     types.SessionStatusUninitialized,
		changed:    make(chan struct{}),
		createdAt:  time.Now(),
		references: newRegistry(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string {
	return s.id
}

// Status returns the current state of the session.
func (s *Session) Status() types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Info summarizes the session.
func (s *Session) Info() types.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := types.SessionInfo{
		SessionID: s.id,
		Status:    s.status,
		Program:   s.launch.Program,
		CreatedAt: s.createdAt,
		LastStop:  s.lastStop,
		ExitCode:  s.exitCode,
	}
	if s.client != nil {
		info.PID = s.client.PID()
	}
	return info
}

// Initialize returns the capabilities of the session.
func (s *Session) Initialize() types.Capabilities {
	return types.Capabilities{
		SupportsConfigurationDone:   true,
		SupportsConditionalBreaks:   true,
		SupportsHitConditionalBreak: true,
		SupportsSetVariable:         true,
		SupportsEvaluateForHovers:   true,
		SupportsTerminateRequest:    true,
	}
}

// Launch starts gdb and prepares it to run req.Program. On success the
// session is initialized and the Notifier's Initialized is called; the
// program itself starts on ConfigurationDone. A failure after gdb started
// terminates the session.
func (s *Session) Launch(req types.LaunchRequest) error {
	if req.Program == "" {
		return errors.New(errors.KindLaunch, "no target program given").
			WithHint("Set 'target' to the path of the executable to debug.")
	}

	s.mu.Lock()
	if s.client != nil || s.status == types.SessionStatusTerminated {
		s.mu.Unlock()
		return errors.New(errors.KindLaunch, "session already launched")
	}
	s.mu.Unlock()

	c, err := s.start(req)
	if err != nil {
		s.log.Error(err, "failed to start gdb")
		return errors.Wrap(errors.KindLaunch, err).WithDetails("program", req.Program)
	}

	s.mu.Lock()
	s.client = c
	s.launch = req
	s.mu.Unlock()

	go s.watch(c)

	if err := s.setup(c, req); err != nil {
		s.log.Error(err, "gdb setup failed", "program", req.Program)
		s.finish(true)
		if serr := c.Shutdown(s.cfg.ShutdownGrace); serr != nil {
			s.log.Error(serr, "failed to stop gdb after setup failure")
		}
		return errors.Wrap(errors.KindInitialization, err)
	}

	s.setStatus(types.SessionStatusInitialized)
	s.log.Info("session initialized", "program", req.Program, "pid", c.PID())
	s.notify.Initialized()
	return nil
}

func (s *Session) start(req types.LaunchRequest) (*gdb.Client, error) {
	cfg := s.cfg.Client
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = s.log.WithName("gdb")
	}
	if s.cfg.Start != nil {
		return s.cfg.Start(s.ctx, req, cfg)
	}

	path := req.GDBPath
	if path == "" {
		path = s.cfg.GDBPath
	}
	env := make([]string, 0, len(req.Env))
	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	return gdb.Spawn(s.ctx, gdb.SpawnConfig{
		Path:   path,
		Args:   s.cfg.GDBArgs,
		Dir:    req.Cwd,
		Env:    env,
		Client: cfg,
	})
}

// setup puts gdb into async mode, creates the console if configured and
// loads the program.
func (s *Session) setup(c *gdb.Client, req types.LaunchRequest) error {
	if err := c.SetAsync(true); err != nil {
		return fmt.Errorf("failed to enable async mode: %w", err)
	}
	if s.cfg.NewConsole {
		if err := c.NewConsole(); err != nil {
			return fmt.Errorf("failed to create console: %w", err)
		}
	}
	if err := c.SetExecutable(req.Program); err != nil {
		return fmt.Errorf("failed to load %s: %w", req.Program, err)
	}
	if len(req.Args) > 0 {
		if err := c.SetArgs(req.Args); err != nil {
			return fmt.Errorf("failed to set program arguments: %w", err)
		}
	}
	if req.Cwd != "" {
		if err := c.SetCwd(req.Cwd); err != nil {
			return fmt.Errorf("failed to set working directory: %w", err)
		}
	}
	return nil
}

// ConfigurationDone starts the program. With StopOnEntry a temporary
// breakpoint on main is inserted first.
func (s *Session) ConfigurationDone() error {
	c, err := s.backend(errors.KindLaunch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	stopOnEntry := s.launch.StopOnEntry
	s.mu.Unlock()

	if stopOnEntry {
		bp, err := c.InsertBreakpoint(gdb.BreakpointSpec{Function: "main", Temporary: true})
		if err != nil {
			return errors.Wrap(errors.KindLaunch, fmt.Errorf("failed to stop on entry: %w", err))
		}
		s.mu.Lock()
		s.entryBkpt = bp.Number
		s.mu.Unlock()
	}

	prev := s.swapStatus(types.SessionStatusRunning)
	if err := c.Run(); err != nil {
		s.restoreStatus(prev)
		return errors.Wrap(errors.KindLaunch, err)
	}
	return nil
}

// Threads lists the inferior's threads.
func (s *Session) Threads() ([]types.ThreadInfo, error) {
	c, err := s.backend(errors.KindThreadsFetch)
	if err != nil {
		return nil, err
	}
	list, err := c.Threads()
	if err != nil {
		return nil, errors.Wrap(errors.KindThreadsFetch, err)
	}

	threads := make([]types.ThreadInfo, 0, len(list.Threads))
	for _, t := range list.Threads {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("thread%d", t.ID)
		}
		threads = append(threads, types.ThreadInfo{ID: t.ID, Name: name, Status: string(t.State)})
	}
	return threads, nil
}

// StackTrace returns up to levels frames of threadID starting at startFrame,
// plus the number of frames available. Zero levels means all.
func (s *Session) StackTrace(threadID, startFrame, levels int) ([]types.StackFrame, int, error) {
	c, err := s.backend(errors.KindStackFetch)
	if err != nil {
		return nil, 0, err
	}
	if threadID < 0 || threadID > MaxThread {
		return nil, 0, errors.New(errors.KindStackFetch, "thread %d cannot be inspected: thread ids above %d are not supported", threadID, MaxThread)
	}

	frames, err := c.StackFrames(threadID, maxStackDepth)
	if err != nil {
		return nil, 0, errors.Wrap(errors.KindStackFetch, err)
	}

	total := len(frames)
	if startFrame > 0 {
		if startFrame >= total {
			return []types.StackFrame{}, total, nil
		}
		frames = frames[startFrame:]
	}
	if levels > 0 && levels < len(frames) {
		frames = frames[:levels]
	}

	out := make([]types.StackFrame, 0, len(frames))
	for _, f := range frames {
		ref := Reference{Tag: TagFrame, Thread: threadID, Frame: f.Level}
		if !ref.Valid() {
			continue
		}
		name := f.Func
		if name == "" {
			name = "??"
		}
		sf := types.StackFrame{
			ID:      ref.Encode(),
			Name:    name,
			Line:    f.Line,
			Address: f.Addr,
			Module:  f.From,
		}
		if f.File != "" || f.FullName != "" {
			sf.Source = &types.SourceInfo{Name: f.File, Path: f.FullName}
		}
		out = append(out, sf)
	}
	return out, total, nil
}

// Continue resumes threadID.
func (s *Session) Continue(threadID int) error {
	return s.resume(errors.KindContinue, func(c *gdb.Client) error { return c.Continue(threadID) })
}

// Next steps threadID over one source line.
func (s *Session) Next(threadID int) error {
	return s.resume(errors.KindNext, func(c *gdb.Client) error { return c.Next(threadID) })
}

// StepIn steps threadID into the next call.
func (s *Session) StepIn(threadID int) error {
	return s.resume(errors.KindStepIn, func(c *gdb.Client) error { return c.StepIn(threadID) })
}

// StepOut runs threadID until the current function returns.
func (s *Session) StepOut(threadID int) error {
	return s.resume(errors.KindStepOut, func(c *gdb.Client) error { return c.StepOut(threadID) })
}

// Pause interrupts threadID. The stop is reported through the Notifier.
func (s *Session) Pause(threadID int) error {
	c, err := s.backend(errors.KindPause)
	if err != nil {
		return err
	}
	if err := c.Interrupt(threadID); err != nil {
		return errors.Wrap(errors.KindPause, err)
	}
	return nil
}

// resume runs an execution command. The session counts as running from
// before the command is sent so that a stop reported ahead of the reply is
// not overwritten.
func (s *Session) resume(kind errors.FailureKind, run func(*gdb.Client) error) error {
	c, err := s.backend(kind)
	if err != nil {
		return err
	}
	prev := s.swapStatus(types.SessionStatusRunning)
	if err := run(c); err != nil {
		s.restoreStatus(prev)
		return errors.Wrap(kind, err)
	}
	return nil
}

// Disconnect ends the session: gdb is asked to exit and its process group is
// killed if it does not. No Terminated notification is sent.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()

	s.finish(false)
	defer s.cancel()

	if c == nil {
		return nil
	}
	if err := c.Shutdown(s.cfg.ShutdownGrace); err != nil {
		return errors.Wrap(errors.KindDisconnect, err)
	}
	s.log.Info("session disconnected")
	return nil
}

// WaitForStop blocks until the program is stopped or the session has
// terminated, and returns the status it found. A stop that happened before
// the call counts.
func (s *Session) WaitForStop(timeout time.Duration) (types.SessionStatus, *types.StoppedInfo, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.Lock()
		status, changed := s.status, s.changed
		var info *types.StoppedInfo
		if s.lastStop != nil {
			cp := *s.lastStop
			info = &cp
		}
		s.mu.Unlock()

		switch status {
		case types.SessionStatusStopped:
			return status, info, nil
		case types.SessionStatusTerminated:
			return status, nil, nil
		}

		select {
		case <-changed:
		case <-deadline.C:
			return status, nil, fmt.Errorf("timed out after %s waiting for the program to stop", timeout)
		}
	}
}

// backend returns the gdb client, failing with kind when there is none.
func (s *Session) backend(kind errors.FailureKind) (*gdb.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil, errors.New(kind, "gdb is not running").
			WithHint("Launch a program first.")
	}
	if s.status == types.SessionStatusTerminated {
		return nil, errors.New(kind, "session has terminated")
	}
	return s.client, nil
}

func (s *Session) setStatus(status types.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != types.SessionStatusTerminated {
		s.status = status
	}
}

func (s *Session) swapStatus(status types.SessionStatus) types.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status
	if prev != types.SessionStatusTerminated {
		s.status = status
	}
	return prev
}

// restoreStatus undoes swapStatus after a failed execution command, unless
// an event changed the status in between.
func (s *Session) restoreStatus(prev types.SessionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == types.SessionStatusRunning {
		s.status = prev
	}
}

// broadcastLocked wakes WaitForStop callers. s.mu must be held.
func (s *Session) broadcastLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// finish moves the session to terminated once.
func (s *Session) finish(notify bool) {
	s.finished.Do(func() {
		s.mu.Lock()
		s.status = types.SessionStatusTerminated
		s.broadcastLocked()
		s.mu.Unlock()

		s.log.Info("session terminated")
		if notify {
			s.notify.Terminated()
		}
	})
}

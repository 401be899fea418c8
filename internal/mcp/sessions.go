package mcp

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/ctagard/gdbmi-dap/internal/bridge"
	"github.com/ctagard/gdbmi-dap/internal/errors"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

// maxOutput bounds the program output kept per session between reads.
const maxOutput = 1000

// OutputLine is one piece of program or gdb console output.
type OutputLine struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// outputLog is the Notifier of an MCP session. MCP has no server push, so
// output is kept until the next tool call collects it; stops and exits are
// read back from the session itself.
type outputLog struct {
	mu      sync.Mutex
	lines   []OutputLine
	dropped int
}

func (o *outputLog) Initialized()              {}
func (o *outputLog) Stopped(types.StoppedInfo) {}
func (o *outputLog) Exited(int)                {}
func (o *outputLog) Terminated()               {}

func (o *outputLog) Output(category, text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.lines) == maxOutput {
		o.lines = o.lines[1:]
		o.dropped++
	}
	o.lines = append(o.lines, OutputLine{Category: category, Text: text})
}

// drain returns the output since the last call and how many lines were lost
// to the bound.
func (o *outputLog) drain() ([]OutputLine, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	lines, dropped := o.lines, o.dropped
	o.lines, o.dropped = nil, 0
	return lines, dropped
}

// Entry is a session owned by the manager.
type Entry struct {
	*bridge.Session
	output *outputLog

	mu       sync.Mutex
	lastUsed time.Time
}

// Output returns the output collected since the previous call.
func (e *Entry) Output() ([]OutputLine, int) {
	return e.output.drain()
}

func (e *Entry) touch() {
	e.mu.Lock()
	e.lastUsed = time.Now()
	e.mu.Unlock()
}

func (e *Entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUsed
}

// SessionManager manages multiple debug sessions
type SessionManager struct {
	sessions map[string]*Entry
	mu       sync.RWMutex

	config         bridge.Config
	maxSessions    int
	sessionTimeout time.Duration
	log            logr.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSessionManager creates a session manager whose sessions use cfg. Sessions
// unused for sessionTimeout are disconnected.
func NewSessionManager(cfg bridge.Config, maxSessions int, sessionTimeout time.Duration) *SessionManager {
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	sm := &SessionManager{
		sessions:       make(map[string]*Entry),
		config:         cfg,
		maxSessions:    maxSessions,
		sessionTimeout: sessionTimeout,
		log:            cfg.Logger.WithName("mcp"),
		ctx:            ctx,
		cancel:         cancel,
	}

	go sm.cleanupLoop()

	return sm
}

// cleanupLoop periodically disconnects idle sessions
func (sm *SessionManager) cleanupLoop() {
	interval := min(time.Minute, sm.sessionTimeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.cleanupExpiredSessions(time.Now())
		}
	}
}

// cleanupExpiredSessions disconnects sessions idle for longer than the timeout
func (sm *SessionManager) cleanupExpiredSessions(now time.Time) {
	sm.mu.Lock()
	var expired []*Entry
	for id, entry := range sm.sessions {
		if now.Sub(entry.idleSince()) > sm.sessionTimeout {
			expired = append(expired, entry)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, entry := range expired {
		sm.log.Info("disconnecting idle session", "session", entry.ID())
		sm.disconnect(entry)
	}
}

// CreateSession creates an uninitialized session
func (sm *SessionManager) CreateSession() (*Entry, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= sm.maxSessions {
		return nil, errors.SessionLimitReached(sm.maxSessions)
	}

	output := &outputLog{}
	entry := &Entry{
		Session:  bridge.NewSession(sm.config, output),
		output:   output,
		lastUsed: time.Now(),
	}
	sm.sessions[entry.ID()] = entry
	return entry, nil
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(id string) (*Entry, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	entry, ok := sm.sessions[id]
	if !ok {
		return nil, errors.SessionNotFound(id)
	}
	entry.touch()
	return entry, nil
}

// ListSessions returns all sessions, oldest first
func (sm *SessionManager) ListSessions() []types.SessionInfo {
	sm.mu.RLock()
	infos := make([]types.SessionInfo, 0, len(sm.sessions))
	for _, entry := range sm.sessions {
		infos = append(infos, entry.Info())
	}
	sm.mu.RUnlock()

	slices.SortFunc(infos, func(a, b types.SessionInfo) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return infos
}

// TerminateSession disconnects a session and forgets it
func (sm *SessionManager) TerminateSession(id string) error {
	sm.mu.Lock()
	entry, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if !ok {
		return errors.SessionNotFound(id)
	}
	return sm.disconnect(entry)
}

func (sm *SessionManager) disconnect(entry *Entry) error {
	if err := entry.Disconnect(); err != nil {
		sm.log.Info("failed to disconnect session", "session", entry.ID(), "err", err.Error())
		return err
	}
	return nil
}

// Close disconnects every session and stops the cleanup loop
func (sm *SessionManager) Close() {
	sm.cancel()

	sm.mu.Lock()
	entries := make([]*Entry, 0, len(sm.sessions))
	for id, entry := range sm.sessions {
		entries = append(entries, entry)
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Go(func() {
			_ = sm.disconnect(entry)
		})
	}
	wg.Wait()
}

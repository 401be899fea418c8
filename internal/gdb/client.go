// Package gdb drives a GDB process over its machine interface.
//
// A Client owns gdb's stdio pipes. Commands are written as
// "<token>-<command>\n" and matched to their result records by token;
// asynchronous records are classified into Events delivered on a single
// channel. Any number of commands may be outstanding at once.
package gdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"

	"github.com/ctagard/gdbmi-dap/internal/metrics"
	"github.com/ctagard/gdbmi-dap/internal/mi"
)

// DefaultTimeout is how long a command waits for its result record.
const DefaultTimeout = time.Second

// Config configures a Client.
type Config struct {
	// Timeout bounds every command. Zero means DefaultTimeout.
	Timeout time.Duration
	// Sentinel is the prompt line that ends each output batch. Empty means mi.DefaultSentinel().
	Sentinel string
	// EventBuffer is the capacity of the event channel.
	EventBuffer int
	Logger      logr.Logger
}

// resolver runs on the read loop when the result record for its token arrives.
type resolver func(rec *mi.ResultRecord)

// Client provides typed access to a gdb process speaking MI.
type Client struct {
	stdin   io.WriteCloser
	stdout  io.Reader
	writeMu sync.Mutex

	framer  *mi.Framer
	timeout time.Duration
	log     logr.Logger

	token   atomic.Int64
	pending map[int]resolver
	mu      sync.Mutex

	breakpoints []Breakpoint
	bpMu        sync.Mutex

	verified map[string]map[int]struct{}
	linesMu  sync.Mutex

	events chan Event
	done   chan struct{}

	cmd      *exec.Cmd
	exited   chan struct{}
	closeErr error
	closed   sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewClient starts reading MI output from stdout. Commands are written to stdin.
// The caller must drain Events for as long as the client runs.
func NewClient(stdin io.WriteCloser, stdout io.Reader, cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 256
	}
	if cfg.Logger.GetSink() == nil {
		cfg.Logger = logr.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		stdin:    stdin,
		stdout:   stdout,
		framer:   mi.NewFramer(cfg.Sentinel),
		timeout:  cfg.Timeout,
		log:      cfg.Logger,
		pending:  make(map[int]resolver),
		verified: make(map[string]map[int]struct{}),
		events:   make(chan Event, cfg.EventBuffer),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(1)
	go c.readLoop()

	return c
}

// Events returns the channel of asynchronous events. It is closed when gdb's
// output ends.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed once gdb's output stream has ended.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Timeout returns the per-command timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Pending returns the number of commands waiting for a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Send writes command and waits for its result record. It fails with a
// *CommandError when gdb answers ^error and with a *TimeoutError when no
// answer arrives in time.
func (c *Client) Send(command string) (*mi.ResultRecord, error) {
	return c.call(command, nil)
}

// call is Send with a hook that runs on the read loop while the reply is
// processed, so state derived from the reply changes in the same step. An
// error from onReply fails the call.
func (c *Client) call(command string, onReply func(*mi.ResultRecord) error) (*mi.ResultRecord, error) {
	select {
	case <-c.ctx.Done():
		return nil, ErrClosed
	default:
	}

	type reply struct {
		rec *mi.ResultRecord
		err error
	}
	ch := make(chan reply, 1)
	token := int(c.token.Add(1))
	start := time.Now()

	c.mu.Lock()
	c.pending[token] = func(rec *mi.ResultRecord) {
		var err error
		if rec.Class == mi.ClassError {
			err = &CommandError{
				Command: command,
				Message: rec.Result.Text("msg"),
				Code:    rec.Result.String("code"),
			}
		} else if onReply != nil {
			err = onReply(rec)
		}
		ch <- reply{rec: rec, err: err}
	}
	n := len(c.pending)
	c.mu.Unlock()
	metrics.SetPending(n)

	c.log.V(1).Info("mi send", "token", token, "command", command)
	if err := c.write(strconv.Itoa(token) + "-" + command + "\n"); err != nil {
		c.forget(token)
		metrics.ObserveCommand(command, "write_error", time.Since(start))
		return nil, fmt.Errorf("failed to send %q: %w", command, err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	var r reply
	select {
	case r = <-ch:
	case <-timer.C:
		if c.forget(token) {
			metrics.ObserveCommand(command, "timeout", time.Since(start))
			c.log.Info("gdb did not answer in time", "token", token, "command", command, "timeout", c.timeout)
			return nil, &TimeoutError{Command: command, After: c.timeout}
		}
		// The reply claimed the token first; its resolver is delivering it.
		r = <-ch
	case <-c.ctx.Done():
		if c.forget(token) {
			return nil, ErrClosed
		}
		r = <-ch
	}

	metrics.ObserveCommand(command, string(r.rec.Class), time.Since(start))
	if r.err != nil {
		return r.rec, r.err
	}
	return r.rec, nil
}

// forget removes token from the pending table and reports whether it was still there.
func (c *Client) forget(token int) bool {
	c.mu.Lock()
	_, ok := c.pending[token]
	delete(c.pending, token)
	n := len(c.pending)
	c.mu.Unlock()
	metrics.SetPending(n)
	return ok
}

func (c *Client) write(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := io.WriteString(c.stdin, line)
	return err
}

// readLoop feeds gdb's output through the framer and parser. Each chunk is
// fully classified and resolved before the next one is read.
func (c *Client) readLoop() {
	defer c.wg.Done()
	defer close(c.done)
	defer close(c.events)

	buf := make([]byte, 32*1024)
	for {
		n, err := c.stdout.Read(buf)
		if n > 0 {
			c.handleChunk(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || c.ctx.Err() != nil {
				c.log.Info("gdb output closed")
			} else {
				c.log.Error(err, "failed to read gdb output")
			}
			return
		}
	}
}

func (c *Client) handleChunk(chunk []byte) {
	for _, batch := range c.framer.Write(chunk) {
		records, err := mi.ParseBatch(batch)
		if err != nil {
			metrics.IncParseError()
			c.log.Error(err, "skipping malformed MI output")
		}
		for _, rec := range records {
			for _, oob := range rec.OutOfBand {
				c.untrackDeleted(oob)
				if ev, ok := classify(oob); ok {
					c.publish(ev)
				}
			}
			if rec.Result != nil {
				c.resolve(rec.Result)
			}
		}
	}
}

func (c *Client) resolve(rec *mi.ResultRecord) {
	token, ok := rec.TokenValue()
	if !ok {
		c.log.V(1).Info("ignoring result record without token", "class", rec.Class)
		return
	}

	c.mu.Lock()
	r, ok := c.pending[token]
	delete(c.pending, token)
	n := len(c.pending)
	c.mu.Unlock()

	if !ok {
		c.log.V(1).Info("dropping reply for unknown or expired token", "token", token, "class", rec.Class)
		return
	}
	metrics.SetPending(n)
	c.log.V(1).Info("mi reply", "token", token, "class", rec.Class)
	r(rec)
}

func (c *Client) publish(ev Event) {
	metrics.IncEvent(ev.Kind.String())
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// Close stops accepting commands and closes gdb's stdin. It does not wait for
// gdb to exit; use Shutdown for that.
func (c *Client) Close() error {
	c.closed.Do(func() {
		c.cancel()
		c.closeErr = c.stdin.Close()
	})
	return c.closeErr
}

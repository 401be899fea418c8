// Package gdbtest provides an in-memory stand-in for a gdb process speaking MI,
// for tests of code built on the gdb client.
package gdbtest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Sentinel is the prompt line the fake ends every batch with.
const Sentinel = "(gdb) \n"

// Handler answers one command. The returned text is written to the client
// as is; an empty string means the command gets no reply.
type Handler func(token int, command string) string

// Fake is a scripted gdb connected to a client through pipes.
type Fake struct {
	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	writeMu sync.Mutex

	mu       sync.Mutex
	handler  Handler
	commands []string

	done chan struct{}
}

// New starts a fake answering commands with h.
func New(h Handler) *Fake {
	f := &Fake{handler: h, done: make(chan struct{})}
	f.stdinR, f.stdinW = io.Pipe()
	f.stdoutR, f.stdoutW = io.Pipe()
	go f.serve()
	return f
}

// Stdin is the pipe a client writes commands to.
func (f *Fake) Stdin() io.WriteCloser { return f.stdinW }

// Stdout is the pipe a client reads MI output from.
func (f *Fake) Stdout() io.Reader { return f.stdoutR }

// SetHandler replaces the handler for subsequent commands.
func (f *Fake) SetHandler(h Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

// Commands returns every command received so far, without tokens.
func (f *Fake) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

// CommandsWithPrefix returns the received commands starting with prefix.
func (f *Fake) CommandsWithPrefix(prefix string) []string {
	var out []string
	for _, c := range f.Commands() {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// Emit writes raw output to the client. Pipe errors after Close are ignored.
func (f *Fake) Emit(text string) {
	if text == "" {
		return
	}
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	_, _ = io.WriteString(f.stdoutW, text)
}

// Close ends the fake's output, as if gdb had exited.
func (f *Fake) Close() {
	_ = f.stdoutW.Close()
	_ = f.stdinR.Close()
}

// Exited is closed once the fake received gdb-exit or its stdin was closed.
func (f *Fake) Exited() <-chan struct{} {
	return f.done
}

func (f *Fake) serve() {
	defer close(f.done)
	sc := bufio.NewScanner(f.stdinR)
	for sc.Scan() {
		token, command, ok := splitCommand(sc.Text())
		if !ok {
			continue
		}
		f.mu.Lock()
		f.commands = append(f.commands, command)
		h := f.handler
		f.mu.Unlock()

		if h != nil {
			f.Emit(h(token, command))
		}
		if command == "gdb-exit" {
			f.Close()
			return
		}
	}
	f.Close()
}

func splitCommand(line string) (int, string, bool) {
	i := strings.IndexByte(line, '-')
	if i <= 0 {
		return 0, "", false
	}
	token, err := strconv.Atoi(line[:i])
	if err != nil {
		return 0, "", false
	}
	return token, line[i+1:], true
}

// Done formats a ^done reply. results, if any, is the text after the comma.
func Done(token int, results string) string {
	return Result(token, "done", results)
}

// Running formats a ^running reply.
func Running(token int) string {
	return Result(token, "running", "")
}

// Error formats an ^error reply carrying msg.
func Error(token int, msg string) string {
	return Result(token, "error", fmt.Sprintf("msg=%q", msg))
}

// Result formats a result record of any class followed by the prompt.
func Result(token int, class, results string) string {
	if results != "" {
		results = "," + results
	}
	return fmt.Sprintf("%d^%s%s\n%s", token, class, results, Sentinel)
}

// Batch joins records into one batch ending with the prompt.
func Batch(records ...string) string {
	return strings.Join(records, "\n") + "\n" + Sentinel
}

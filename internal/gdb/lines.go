package gdb

import (
	"fmt"
	"slices"

	"github.com/ctagard/gdbmi-dap/internal/mi"
)

// VerifyLines asks gdb which lines of path hold code and caches the answer
// for the client's lifetime. Already verified files are not queried again.
func (c *Client) VerifyLines(path string) error {
	c.linesMu.Lock()
	_, ok := c.verified[path]
	c.linesMu.Unlock()
	if ok {
		return nil
	}

	_, err := c.call("symbol-list-lines "+mi.Quote(path), func(rec *mi.ResultRecord) error {
		if rec.Class != mi.ClassDone {
			return fmt.Errorf("%w: symbol-list-lines answered %s", ErrUnexpectedClass, rec.Class)
		}
		lines := make(map[int]struct{})
		for _, t := range rec.Result.List("lines").Tuples() {
			if n, ok := t.Int("line"); ok && n > 0 {
				lines[n] = struct{}{}
			}
		}
		c.linesMu.Lock()
		c.verified[path] = lines
		c.linesMu.Unlock()
		return nil
	})
	return err
}

// IsLineVerified reports whether line of path is known to hold code.
func (c *Client) IsLineVerified(path string, line int) bool {
	c.linesMu.Lock()
	defer c.linesMu.Unlock()
	_, ok := c.verified[path][line]
	return ok
}

// VerifiedLines returns the cached code lines of path in ascending order.
func (c *Client) VerifiedLines(path string) ([]int, bool) {
	c.linesMu.Lock()
	defer c.linesMu.Unlock()
	set, ok := c.verified[path]
	if !ok {
		return nil, false
	}
	lines := make([]int, 0, len(set))
	for n := range set {
		lines = append(lines, n)
	}
	slices.Sort(lines)
	return lines, true
}

package bridge

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/ctagard/gdbmi-dap/internal/errors"
	"github.com/ctagard/gdbmi-dap/internal/gdb"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

// SetBreakpoints replaces the breakpoints of the source file at path.
//
// The file's executable lines are verified first and the whole request fails
// if that is not possible. Requested lines without code are reported
// unverified and never reach gdb; a rejected insert is reported unverified
// too. Results are in request order.
func (s *Session) SetBreakpoints(path string, requests []types.BreakpointRequest) ([]types.Breakpoint, error) {
	if path == "" {
		return nil, errors.New(errors.KindBreakpointSet, "no source path given").
			WithHint("Pass the source file to set breakpoints in.")
	}
	c, err := s.backend(errors.KindBreakpointSet)
	if err != nil {
		return nil, err
	}

	if err := c.VerifyLines(path); err != nil {
		return nil, errors.Wrap(errors.KindLineVerification, err).WithDetails("path", path)
	}
	if err := c.DeleteBreakpointsByFile(path); err != nil {
		return nil, errors.Wrap(errors.KindBreakpointSet, err).WithDetails("path", path)
	}

	source := &types.SourceInfo{Name: filepath.Base(path), Path: path}
	results := make([]types.Breakpoint, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		results[i] = types.Breakpoint{Line: req.Line, Source: source}

		if !c.IsLineVerified(path, req.Line) {
			results[i].Message = fmt.Sprintf("no executable code at line %d", req.Line)
			continue
		}
		ignore, err := ignoreCount(req.HitCondition)
		if err != nil {
			results[i].Message = err.Error()
			continue
		}

		spec := gdb.BreakpointSpec{File: path, Line: req.Line, Condition: req.Condition, Ignore: ignore}
		wg.Go(func() {
			bp, err := c.InsertBreakpoint(spec)
			if err != nil {
				s.log.Info("breakpoint rejected", "path", path, "line", req.Line, "err", err.Error())
				results[i].Message = err.Error()
				return
			}
			results[i].ID = bp.Number
			results[i].Verified = true
			if bp.Line > 0 {
				results[i].Line = bp.Line
			}
		})
	}
	wg.Wait()

	return results, nil
}

// ignoreCount turns a hit condition ("stop on the Nth hit") into the number
// of hits gdb should ignore.
func ignoreCount(hitCondition string) (int, error) {
	hitCondition = strings.TrimSpace(hitCondition)
	if hitCondition == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(hitCondition)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("hit condition %q is not a positive hit count", hitCondition)
	}
	return n - 1, nil
}

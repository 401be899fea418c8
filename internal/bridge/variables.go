package bridge

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ctagard/gdbmi-dap/internal/errors"
	"github.com/ctagard/gdbmi-dap/internal/gdb"
	"github.com/ctagard/gdbmi-dap/pkg/types"
)

// globalThread holds root objects of evaluations made without a frame.
const globalThread = 0

// Scopes returns the scopes of the frame frameRef refers to. The root
// variable objects created for that thread since its last scopes request
// are deleted first, along with every reference into them.
func (s *Session) Scopes(frameRef int) ([]types.Scope, error) {
	ref, ok := DecodeReference(frameRef)
	if !ok || ref.Tag != TagFrame {
		return nil, errors.New(errors.KindScopeCleanup, "invalid frame reference %d", frameRef)
	}
	c, err := s.backend(errors.KindScopeCleanup)
	if err != nil {
		return nil, err
	}

	threads := []int{ref.Thread}
	if ref.Thread != globalThread {
		threads = append(threads, globalThread)
	}
	for _, thread := range threads {
		if err := s.drain(c, thread); err != nil {
			return nil, errors.Wrap(errors.KindScopeCleanup, err)
		}
	}

	locals := s.references.put(Reference{Tag: TagLocals, Thread: ref.Thread, Frame: ref.Frame})
	return []types.Scope{{Name: "Locals", VariablesReference: locals}}, nil
}

// drain deletes the root variable objects of thread. Objects whose delete
// timed out stay registered for the next drain; gdb rejecting a delete means
// the object is already gone.
func (s *Session) drain(c *gdb.Client, thread int) error {
	roots := s.references.takeRoots(thread)
	s.references.forget(thread)
	if len(roots) == 0 {
		return nil
	}

	var mu sync.Mutex
	var retry []string
	var g errgroup.Group
	for _, object := range roots {
		g.Go(func() error {
			err := c.DeleteVariable(object)
			if err != nil && gdb.IsTimeout(err) {
				mu.Lock()
				retry = append(retry, object)
				mu.Unlock()
			}
			return err
		})
	}
	err := g.Wait()
	for _, object := range retry {
		s.references.addRoot(thread, object)
	}
	if err != nil {
		return err
	}
	s.log.V(1).Info("drained variable objects", "thread", thread, "count", len(roots))
	return nil
}

// Variables lists what ref refers to: the locals of a frame or the children
// of a variable. Entries with children get their own reference.
func (s *Session) Variables(ref int) ([]types.Variable, error) {
	decoded, ok := DecodeReference(ref)
	if !ok {
		return nil, errors.New(errors.KindVariableFetch, "invalid variable reference %d", ref)
	}
	cont, ok := s.references.lookup(ref)
	if !ok {
		return nil, errors.New(errors.KindVariableFetch, "unknown variable reference %d", ref).
			WithHint("References are valid until the next scopes request for the same thread.")
	}
	c, err := s.backend(errors.KindVariableFetch)
	if err != nil {
		return nil, err
	}

	var vars []gdb.Variable
	switch decoded.Tag {
	case TagLocals:
		vars, err = s.createLocals(c, decoded)
	case TagVariable:
		vars, err = c.ListChildren(cont.object)
	default:
		return nil, errors.New(errors.KindVariableFetch, "reference %d does not hold variables", ref)
	}
	if err != nil {
		return nil, errors.Wrap(errors.KindVariableFetch, err)
	}

	out, err := s.present(ref, decoded, vars, decoded.Tag == TagLocals)
	if err != nil {
		return nil, errors.Wrap(errors.KindVariableFetch, err)
	}
	return out, nil
}

// createLocals creates one root variable object per local of the frame.
func (s *Session) createLocals(c *gdb.Client, ref Reference) ([]gdb.Variable, error) {
	locals, err := c.Locals(ref.Thread, ref.Frame)
	if err != nil {
		return nil, err
	}

	vars := make([]gdb.Variable, len(locals))
	var g errgroup.Group
	for i, local := range locals {
		g.Go(func() error {
			v, err := c.CreateVariable(local.Name, ref.Thread, ref.Frame)
			if err != nil {
				return err
			}
			s.references.addRoot(ref.Thread, v.ObjectName)
			vars[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vars, nil
}

// present converts vars listed under the container n, registering a
// reference for every variable with children.
func (s *Session) present(n int, ref Reference, vars []gdb.Variable, roots bool) ([]types.Variable, error) {
	members := make(map[string]member, len(vars))
	out := make([]types.Variable, 0, len(vars))
	for _, v := range vars {
		tv := types.Variable{Name: v.Name, Value: v.Value, Type: v.Type}
		if roots {
			tv.EvaluateName = v.Name
		}
		if v.NumChild > 0 || v.HasMore {
			child, err := s.references.allocate(ref.Thread, ref.Frame, v.ObjectName)
			if err != nil {
				return nil, err
			}
			tv.VariablesReference = child
			tv.NamedVariables = v.NumChild
		}
		members[v.Name] = member{object: v.ObjectName, typ: v.Type, ref: tv.VariablesReference}
		out = append(out, tv)
	}
	s.references.setMembers(n, members)
	return out, nil
}

// SetVariable assigns value to the variable called name listed under ref
// and returns its new value.
func (s *Session) SetVariable(ref int, name, value string) (types.Variable, error) {
	cont, ok := s.references.lookup(ref)
	if !ok {
		return types.Variable{}, errors.New(errors.KindSetVariable, "unknown variable reference %d", ref)
	}
	m, ok := cont.members[name]
	if !ok {
		return types.Variable{}, errors.New(errors.KindSetVariable, "no variable %q under reference %d", name, ref).
			WithHint("List the variables of the reference before assigning to one.")
	}
	c, err := s.backend(errors.KindSetVariable)
	if err != nil {
		return types.Variable{}, err
	}

	newValue, err := c.AssignVariable(m.object, value)
	if err != nil {
		return types.Variable{}, errors.Wrap(errors.KindSetVariable, err).WithDetails("variable", name)
	}
	return types.Variable{Name: name, Value: newValue, Type: m.typ, VariablesReference: m.ref}, nil
}

// Evaluate evaluates expression in the frame frameRef refers to, or in
// gdb's current context when frameRef is zero.
func (s *Session) Evaluate(expression string, frameRef int) (types.EvaluateResult, error) {
	c, err := s.backend(errors.KindEvaluate)
	if err != nil {
		return types.EvaluateResult{}, err
	}

	// Frame selection and creation must not interleave with another evaluation.
	s.evalMu.Lock()
	defer s.evalMu.Unlock()

	thread, frame := globalThread, 0
	if frameRef != 0 {
		ref, ok := DecodeReference(frameRef)
		if !ok || ref.Tag != TagFrame {
			return types.EvaluateResult{}, errors.New(errors.KindEvaluate, "invalid frame reference %d", frameRef)
		}
		if err := c.SelectThread(ref.Thread); err != nil {
			return types.EvaluateResult{}, errors.Wrap(errors.KindEvaluate, err)
		}
		if err := c.SelectFrame(ref.Frame); err != nil {
			return types.EvaluateResult{}, errors.Wrap(errors.KindEvaluate, err)
		}
		thread, frame = ref.Thread, ref.Frame
	}

	v, err := c.CreateVariable(expression, 0, 0)
	if err != nil {
		return types.EvaluateResult{}, errors.Wrap(errors.KindEvaluate, err).WithDetails("expression", expression)
	}
	s.references.addRoot(thread, v.ObjectName)

	res := types.EvaluateResult{Result: v.Value, Type: v.Type}
	if v.NumChild > 0 || v.HasMore {
		n, err := s.references.allocate(thread, frame, v.ObjectName)
		if err != nil {
			return types.EvaluateResult{}, errors.Wrap(errors.KindEvaluate, err)
		}
		res.VariablesReference = n
		res.NamedVariables = v.NumChild
	}
	return res, nil
}

package bridge

import (
	"fmt"
	"sync"
)

// member is a variable listed under a container, addressable by its display name.
type member struct {
	object string
	typ    string
	ref    int
}

// container is what a locals or variable reference resolves to.
type container struct {
	// object is the variable object whose children the reference lists.
	// Empty for locals.
	object  string
	members map[string]member
}

// registry holds the reference table and the root variable objects created
// per thread. Both are keyed by thread so that one thread's scope can be
// drained without touching the others.
type registry struct {
	mu      sync.Mutex
	refs    map[int]*container
	roots   map[int][]string
	nextSeq map[int]int
}

func newRegistry() *registry {
	return &registry{
		refs:    make(map[int]*container),
		roots:   make(map[int][]string),
		nextSeq: make(map[int]int),
	}
}

// put registers ref with an empty container.
func (r *registry) put(ref Reference) int {
	n := ref.Encode()
	r.mu.Lock()
	r.refs[n] = &container{}
	r.mu.Unlock()
	return n
}

// allocate assigns the next sequence number of thread to a variable object
// with children and returns the encoded reference.
func (r *registry) allocate(thread, frame int, object string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.nextSeq[thread] + 1
	ref := Reference{Tag: TagVariable, Thread: thread, Frame: frame, Seq: seq}
	if !ref.Valid() {
		return 0, fmt.Errorf("no variable reference available for %s", ref)
	}
	r.nextSeq[thread] = seq

	n := ref.Encode()
	r.refs[n] = &container{object: object}
	return n, nil
}

func (r *registry) lookup(n int) (container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.refs[n]
	if !ok {
		return container{}, false
	}
	return *c, true
}

// setMembers records what n listed, for a later SetVariable.
func (r *registry) setMembers(n int, members map[string]member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.refs[n]; ok {
		c.members = members
	}
}

func (r *registry) addRoot(thread int, object string) {
	r.mu.Lock()
	r.roots[thread] = append(r.roots[thread], object)
	r.mu.Unlock()
}

// takeRoots removes and returns the root objects of thread.
func (r *registry) takeRoots(thread int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	roots := r.roots[thread]
	delete(r.roots, thread)
	return roots
}

// forget drops every reference of thread and restarts its sequence.
func (r *registry) forget(thread int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n := range r.refs {
		if ref, ok := DecodeReference(n); ok && ref.Thread == thread {
			delete(r.refs, n)
		}
	}
	delete(r.nextSeq, thread)
}

// rootCount returns the number of tracked root objects across threads.
func (r *registry) rootCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, roots := range r.roots {
		n += len(roots)
	}
	return n
}

package bridge

import (
	"fmt"
	"math"
)

// ScopeTag says what a Reference points at.
type ScopeTag int

const (
	// TagFrame references a stack frame (stack trace frame ids).
	TagFrame ScopeTag = 1
	// TagLocals references the locals scope of a frame.
	TagLocals ScopeTag = 2
	// TagVariable references a variable object with children.
	TagVariable ScopeTag = 3
)

// Field limits of a Reference. Thread ids and frame levels take two decimal
// digits each, which caps what can be inspected at threads 0-99 and the
// innermost 100 frames. The sequence number is bounded so that every
// encoded reference fits the signed 32-bit range front ends accept.
const (
	MaxThread = 99
	MaxFrame  = 99
	MaxSeq    = (math.MaxInt32 - 99_999) / 100_000
)

// Reference is the decoded form of the integers handed to front ends as
// frame ids and variablesReference values.
//
// Encoded layout in decimal: [seq][tag][thread:2][frame:2].
type Reference struct {
	Tag    ScopeTag
	Thread int
	Frame  int
	Seq    int
}

// Valid reports whether every field is in range.
func (r Reference) Valid() bool {
	return r.Tag >= TagFrame && r.Tag <= TagVariable &&
		r.Thread >= 0 && r.Thread <= MaxThread &&
		r.Frame >= 0 && r.Frame <= MaxFrame &&
		r.Seq >= 0 && r.Seq <= MaxSeq
}

// Encode packs r into a positive integer. It panics if r is not Valid;
// callers check ranges before building references.
func (r Reference) Encode() int {
	if !r.Valid() {
		panic(fmt.Sprintf("bridge: reference out of range: %+v", r))
	}
	return ((r.Seq*10+int(r.Tag))*100+r.Thread)*100 + r.Frame
}

// DecodeReference unpacks n. It reports false for values no Reference encodes to.
func DecodeReference(n int) (Reference, bool) {
	if n <= 0 {
		return Reference{}, false
	}
	r := Reference{
		Frame:  n % 100,
		Thread: (n / 100) % 100,
		Tag:    ScopeTag((n / 10_000) % 10),
		Seq:    n / 100_000,
	}
	return r, r.Valid()
}

func (r Reference) String() string {
	var tag string
	switch r.Tag {
	case TagFrame:
		tag = "frame"
	case TagLocals:
		tag = "locals"
	case TagVariable:
		tag = "variable"
	default:
		tag = fmt.Sprintf("tag%d", int(r.Tag))
	}
	return fmt.Sprintf("%s(thread=%d frame=%d seq=%d)", tag, r.Thread, r.Frame, r.Seq)
}

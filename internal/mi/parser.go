package mi

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	resultPrefix    = regexp.MustCompile(`^(\d*)\^(done|running|connected|error|exit)`)
	outOfBandPrefix = regexp.MustCompile(`^(?:(\d*)([*+=])|([~@&]))`)
	className       = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*`)
	variableName    = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)=`)
)

// ParseError reports a malformed record. It only ever affects the one line it names.
type ParseError struct {
	Line   string
	Offset int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mi: %s at offset %d in %q", e.Reason, e.Offset, e.Line)
}

// ParseLine parses a single output line. It returns an out-of-band record, a
// result record, or neither when the line has no MI shape (for example
// program output that shares GDB's terminal).
func ParseLine(line string) (OutOfBand, *ResultRecord, error) {
	if m := resultPrefix.FindStringSubmatch(line); m != nil {
		s := &state{src: line, pos: len(m[0])}
		result, err := s.tail()
		if err != nil {
			return nil, nil, err
		}
		return nil, &ResultRecord{Token: m[1], Class: ResultClass(m[2]), Result: result}, nil
	}

	m := outOfBandPrefix.FindStringSubmatch(line)
	if m == nil {
		return nil, nil, nil
	}
	s := &state{src: line, pos: len(m[0])}

	if m[3] != "" {
		if s.peek() != '"' {
			return nil, nil, s.fail("expected quoted stream text")
		}
		text, err := s.cstring()
		if err != nil {
			return nil, nil, err
		}
		if s.pos != len(s.src) {
			return nil, nil, s.fail("trailing data after stream text")
		}
		return &StreamRecord{Type: StreamType(m[3][0]), Text: Unescape(string(text))}, nil, nil
	}

	class := className.FindString(s.rest())
	if class == "" {
		return nil, nil, s.fail("expected async class")
	}
	s.pos += len(class)
	result, err := s.tail()
	if err != nil {
		return nil, nil, err
	}
	return &AsyncRecord{Token: m[1], State: AsyncState(m[2][0]), Class: class, Result: result}, nil, nil
}

// ParseBatch parses every line of a batch. Lines that fail to parse are
// skipped and reported through the joined error; the remaining lines are still
// returned. A batch normally yields one Record; a second result record starts
// a new one so that each Record holds at most one result.
func ParseBatch(batch string) ([]*Record, error) {
	var (
		records []*Record
		errs    []error
		cur     = &Record{}
	)
	for _, line := range strings.Split(batch, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		oob, res, err := ParseLine(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		switch {
		case oob != nil:
			cur.OutOfBand = append(cur.OutOfBand, oob)
		case res != nil:
			if cur.Result != nil {
				records = append(records, cur)
				cur = &Record{}
			}
			cur.Result = res
		}
	}
	if !cur.Empty() {
		records = append(records, cur)
	}
	return records, errors.Join(errs...)
}

// state is the parser's position in one line plus the stack of containers
// opened and not yet closed.
type state struct {
	src  string
	pos  int
	open []byte
}

func (s *state) rest() string {
	return s.src[s.pos:]
}

func (s *state) peek() byte {
	if s.pos >= len(s.src) {
		return 0
	}
	return s.src[s.pos]
}

func (s *state) fail(format string, args ...any) error {
	return &ParseError{Line: s.src, Offset: s.pos, Reason: fmt.Sprintf(format, args...)}
}

// tail parses what follows a record's class: nothing, or ",name=value,...".
func (s *state) tail() (Tuple, error) {
	if s.pos == len(s.src) {
		return Tuple{}, nil
	}
	if s.peek() != ',' {
		return nil, s.fail("expected ','")
	}
	s.pos++
	return s.results()
}

// results parses name=value pairs up to the end of the line. MI2 writes the
// extra locations of a multi-location breakpoint as bare tuples after it, as
// in bkpt={...},{...},{...}; those are collected into a "locations" list on
// the tuple they follow, the shape MI3 uses.
func (s *state) results() (Tuple, error) {
	t := Tuple{}
	last := ""
	for {
		if s.peek() == '{' && last != "" {
			if err := s.location(t, last); err != nil {
				return nil, err
			}
		} else {
			name, v, err := s.result()
			if err != nil {
				return nil, err
			}
			t[name] = v
			last = name
		}
		switch s.peek() {
		case 0:
			return t, nil
		case ',':
			s.pos++
		case '}', ']':
			return nil, s.close(s.peek())
		default:
			return nil, s.fail("expected ',' after %s", last)
		}
	}
}

// location parses a bare tuple and appends it to the locations of t[owner].
func (s *state) location(t Tuple, owner string) error {
	prev, ok := t[owner].(Tuple)
	if !ok {
		return s.fail("bare tuple after %s", owner)
	}
	v, err := s.tuple()
	if err != nil {
		return err
	}
	prev["locations"] = append(prev.List("locations"), v)
	return nil
}

func (s *state) result() (string, Value, error) {
	m := variableName.FindStringSubmatch(s.rest())
	if m == nil {
		return "", nil, s.fail("expected name=value")
	}
	s.pos += len(m[0])
	v, err := s.value()
	if err != nil {
		return "", nil, err
	}
	return m[1], v, nil
}

func (s *state) value() (Value, error) {
	switch c := s.peek(); c {
	case '"':
		return s.cstring()
	case '{':
		return s.tuple()
	case '[':
		return s.list()
	case '}', ']':
		return nil, s.close(c)
	case 0:
		return nil, s.fail("unexpected end of record")
	default:
		return nil, s.fail("unexpected %q", c)
	}
}

// cstring scans a quoted string. Only \" is significant; the contents are
// kept verbatim.
func (s *state) cstring() (Const, error) {
	for i := s.pos + 1; i < len(s.src); i++ {
		switch s.src[i] {
		case '\\':
			i++
		case '"':
			v := s.src[s.pos+1 : i]
			s.pos = i + 1
			return Const(v), nil
		}
	}
	return "", s.fail("unterminated string")
}

func (s *state) tuple() (Value, error) {
	s.openContainer('{')
	t := Tuple{}
	if s.peek() == '}' {
		return t, s.close('}')
	}
	for {
		name, v, err := s.result()
		if err != nil {
			return nil, err
		}
		t[name] = v
		switch c := s.peek(); c {
		case ',':
			s.pos++
		case '}', ']':
			if err := s.close(c); err != nil {
				return nil, err
			}
			return t, nil
		default:
			return nil, s.fail("expected ',' or '}' in tuple")
		}
	}
}

func (s *state) list() (Value, error) {
	s.openContainer('[')
	l := List{}
	if s.peek() == ']' {
		return l, s.close(']')
	}
	for {
		var (
			v   Value
			err error
		)
		if variableName.MatchString(s.rest()) {
			_, v, err = s.result()
		} else {
			v, err = s.value()
		}
		if err != nil {
			return nil, err
		}
		l = append(l, v)
		switch c := s.peek(); c {
		case ',':
			s.pos++
		case ']', '}':
			if err := s.close(c); err != nil {
				return nil, err
			}
			return l, nil
		default:
			return nil, s.fail("expected ',' or ']' in list")
		}
	}
}

func (s *state) openContainer(c byte) {
	s.open = append(s.open, c)
	s.pos++
}

// close pops the innermost open container, which must match c.
func (s *state) close(c byte) error {
	want := byte('{')
	if c == ']' {
		want = '['
	}
	if len(s.open) == 0 {
		return s.fail("unmatched %q", c)
	}
	if top := s.open[len(s.open)-1]; top != want {
		return s.fail("%q closes %q", c, top)
	}
	s.open = s.open[:len(s.open)-1]
	s.pos++
	return nil
}

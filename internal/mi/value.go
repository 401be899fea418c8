package mi

import (
	"strconv"
	"strings"
)

// Value is one of Const, Tuple or List.
type Value interface {
	value()
}

// Const is a quoted string value. The text is kept as GDB wrote it, escapes included.
type Const string

// Tuple is a set of named values, written {name=value,...}.
type Tuple map[string]Value

// List is an ordered sequence of values, written [value,...] or [name=value,...].
type List []Value

func (Const) value() {}
func (Tuple) value() {}
func (List) value()  {}

// Get follows a path of tuple keys and returns the value at its end, or nil.
func (t Tuple) Get(path ...string) Value {
	var cur Value = t
	for _, key := range path {
		tup, ok := cur.(Tuple)
		if !ok {
			return nil
		}
		cur, ok = tup[key]
		if !ok {
			return nil
		}
	}
	return cur
}

// String returns the constant stored under key, or "".
func (t Tuple) String(key string) string {
	if c, ok := t[key].(Const); ok {
		return string(c)
	}
	return ""
}

// Text returns the unescaped constant stored under key.
func (t Tuple) Text(key string) string {
	return Unescape(t.String(key))
}

// Has reports whether key is present.
func (t Tuple) Has(key string) bool {
	_, ok := t[key]
	return ok
}

// Int parses the constant stored under key as a decimal integer.
func (t Tuple) Int(key string) (int, bool) {
	s := t.String(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Tuple returns the tuple stored under key, or nil.
func (t Tuple) Tuple(key string) Tuple {
	if v, ok := t[key].(Tuple); ok {
		return v
	}
	return nil
}

// List returns the list stored under key, or nil.
func (t Tuple) List(key string) List {
	if v, ok := t[key].(List); ok {
		return v
	}
	return nil
}

// Tuples returns the tuple items of the list, skipping anything else.
func (l List) Tuples() []Tuple {
	out := make([]Tuple, 0, len(l))
	for _, v := range l {
		if t, ok := v.(Tuple); ok {
			out = append(out, t)
		}
	}
	return out
}

// Strings returns the constant items of the list, skipping anything else.
func (l List) Strings() []string {
	out := make([]string, 0, len(l))
	for _, v := range l {
		if c, ok := v.(Const); ok {
			out = append(out, string(c))
		}
	}
	return out
}

// Unescape converts the C escape sequences GDB uses in quoted strings.
// Unknown escapes keep their character.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'a':
			b.WriteByte('\a')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case 'e':
			b.WriteByte(0x1b)
		case '0', '1', '2', '3', '4', '5', '6', '7':
			j := i
			for j < len(s) && j < i+3 && s[j] >= '0' && s[j] <= '7' {
				j++
			}
			n, _ := strconv.ParseUint(s[i:j], 8, 8)
			b.WriteByte(byte(n))
			i = j - 1
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// Quote returns s as an MI c-string, escaping backslashes and quotes.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '\\', '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

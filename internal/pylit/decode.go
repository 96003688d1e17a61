package pylit

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// SyntaxError reports where a literal stopped parsing.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("pylit: %s at offset %d", e.Msg, e.Offset)
}

// Decode parses exactly one literal from s. Surrounding whitespace is
// ignored; anything else after the literal is an error.
func Decode(s string) (any, error) {
	d := &decoder{src: s}
	d.skipSpace()
	v, err := d.value()
	if err != nil {
		return nil, err
	}
	d.skipSpace()
	if d.pos != len(d.src) {
		return nil, d.errorf("unexpected trailing %q", d.rest(12))
	}
	return v, nil
}

type decoder struct {
	src string
	pos int
}

func (d *decoder) errorf(format string, args ...any) error {
	return &SyntaxError{Offset: d.pos, Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) rest(n int) string {
	r := d.src[d.pos:]
	if len(r) > n {
		r = r[:n]
	}
	return r
}

func (d *decoder) skipSpace() {
	for d.pos < len(d.src) {
		switch d.src[d.pos] {
		case ' ', '\t', '\r', '\n':
			d.pos++
		default:
			return
		}
	}
}

func (d *decoder) peek() byte {
	if d.pos >= len(d.src) {
		return 0
	}
	return d.src[d.pos]
}

func (d *decoder) value() (any, error) {
	if d.pos >= len(d.src) {
		return nil, d.errorf("unexpected end of input")
	}
	c := d.peek()
	switch {
	case c == '\'' || c == '"':
		s, err := d.quoted(false)
		if err != nil {
			return nil, err
		}
		return string(s), nil
	case (c == 'b' || c == 'B') && d.pos+1 < len(d.src) && (d.src[d.pos+1] == '\'' || d.src[d.pos+1] == '"'):
		d.pos++
		return d.quoted(true)
	case c == '[':
		d.pos++
		items, _, err := d.items(']')
		if err != nil {
			return nil, err
		}
		return items, nil
	case c == '(':
		d.pos++
		items, trailingComma, err := d.items(')')
		if err != nil {
			return nil, err
		}
		// (x) is just x; (x,) is a one element tuple.
		if len(items) == 1 && !trailingComma {
			return items[0], nil
		}
		return Tuple(items), nil
	case c == '{':
		d.pos++
		return d.dict()
	case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
		return d.number()
	default:
		return d.word()
	}
}

func (d *decoder) word() (any, error) {
	start := d.pos
	for d.pos < len(d.src) {
		c := d.src[d.pos]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' {
			d.pos++
			continue
		}
		break
	}
	switch w := d.src[start:d.pos]; w {
	case "None":
		return nil, nil
	case "True":
		return true, nil
	case "False":
		return false, nil
	default:
		d.pos = start
		return nil, d.errorf("unexpected %q", d.rest(12))
	}
}

func (d *decoder) number() (any, error) {
	start := d.pos
	if c := d.peek(); c == '-' || c == '+' {
		d.pos++
	}
	isFloat := false
scan:
	for d.pos < len(d.src) {
		c := d.src[d.pos]
		switch {
		case c >= '0' && c <= '9':
		case c == '.' || c == 'e' || c == 'E':
			isFloat = true
		case (c == '-' || c == '+') && (d.src[d.pos-1] == 'e' || d.src[d.pos-1] == 'E'):
		default:
			break scan
		}
		d.pos++
	}
	text := d.src[start:d.pos]
	if isFloat {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			d.pos = start
			return nil, d.errorf("bad float %q", text)
		}
		return f, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		d.pos = start
		return nil, d.errorf("bad integer %q", text)
	}
	return n, nil
}

// items parses comma separated values up to close. It reports whether the
// last value was followed by a comma.
func (d *decoder) items(close byte) ([]any, bool, error) {
	items := []any{}
	trailingComma := false
	for {
		d.skipSpace()
		if d.peek() == close {
			d.pos++
			return items, trailingComma, nil
		}
		if d.pos >= len(d.src) {
			return nil, false, d.errorf("missing %q", close)
		}
		v, err := d.value()
		if err != nil {
			return nil, false, err
		}
		items = append(items, v)
		trailingComma = false
		d.skipSpace()
		switch d.peek() {
		case ',':
			d.pos++
			trailingComma = true
		case close:
		default:
			return nil, false, d.errorf("expected ',' or %q", close)
		}
	}
}

func (d *decoder) dict() (any, error) {
	out := map[string]any{}
	for {
		d.skipSpace()
		if d.peek() == '}' {
			d.pos++
			return out, nil
		}
		key, err := d.value()
		if err != nil {
			return nil, err
		}
		k, ok := key.(string)
		if !ok {
			return nil, d.errorf("dict key %v is not a string", key)
		}
		d.skipSpace()
		if d.peek() != ':' {
			return nil, d.errorf("expected ':'")
		}
		d.pos++
		d.skipSpace()
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		out[k] = v
		d.skipSpace()
		switch d.peek() {
		case ',':
			d.pos++
		case '}':
		default:
			return nil, d.errorf("expected ',' or '}'")
		}
	}
}

// quoted parses a quoted literal starting at the quote character. In a str
// literal \xNN is a code point; in a bytes literal it is a raw byte.
func (d *decoder) quoted(raw bool) ([]byte, error) {
	q := d.src[d.pos]
	d.pos++
	var out []byte
	for {
		if d.pos >= len(d.src) {
			return nil, d.errorf("unterminated string")
		}
		c := d.src[d.pos]
		if c == q {
			d.pos++
			return out, nil
		}
		if c != '\\' {
			out = append(out, c)
			d.pos++
			continue
		}
		d.pos++
		if d.pos >= len(d.src) {
			return nil, d.errorf("unterminated escape")
		}
		e := d.src[d.pos]
		d.pos++
		switch e {
		case '\\', '\'', '"':
			out = append(out, e)
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case 'v':
			out = append(out, '\v')
		case 'a':
			out = append(out, '\a')
		case '0':
			out = append(out, 0)
		case 'x':
			v, err := d.hex(2)
			if err != nil {
				return nil, err
			}
			if raw {
				out = append(out, byte(v))
			} else {
				out = utf8.AppendRune(out, rune(v))
			}
		case 'u':
			v, err := d.hex(4)
			if err != nil {
				return nil, err
			}
			out = utf8.AppendRune(out, rune(v))
		case 'U':
			v, err := d.hex(8)
			if err != nil {
				return nil, err
			}
			out = utf8.AppendRune(out, rune(v))
		default:
			out = append(out, '\\', e)
		}
	}
}

func (d *decoder) hex(n int) (uint64, error) {
	if d.pos+n > len(d.src) {
		return 0, d.errorf("short hex escape")
	}
	v, err := strconv.ParseUint(d.src[d.pos:d.pos+n], 16, 32)
	if err != nil {
		return 0, d.errorf("bad hex escape %q", d.src[d.pos:d.pos+n])
	}
	d.pos += n
	return v, nil
}

// Int converts a decoded value to int64.
func Int(v any) (int64, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("pylit: %s is not an integer", describe(v))
	}
}

// Bool converts a decoded value using Python truthiness for bools and ints.
func Bool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		return x != 0, nil
	default:
		return false, fmt.Errorf("pylit: %s is not a bool", describe(v))
	}
}

// String converts a decoded str or bytes value to a Go string.
func String(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	default:
		return "", fmt.Errorf("pylit: %s is not a string", describe(v))
	}
}

// Seq returns the elements of a list or tuple.
func Seq(v any) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case Tuple:
		return []any(x), nil
	default:
		return nil, fmt.Errorf("pylit: %s is not a sequence", describe(v))
	}
}

func describe(v any) string {
	if v == nil {
		return "None"
	}
	s, err := Encode(v)
	if err != nil {
		return fmt.Sprintf("%T", v)
	}
	if len(s) > 40 {
		s = s[:37] + "..."
	}
	return strings.TrimSpace(s)
}

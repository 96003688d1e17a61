// Package pylit encodes Go values as Python literals and parses the literals
// a MicroPython board prints back.
//
// Decoded values use these Go types: nil (None), bool, int64, float64,
// string, []byte (bytes), []any (list), Tuple (tuple) and map[string]any
// (dict with string keys).
package pylit

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Tuple is a Python tuple. Lists decode to []any.
type Tuple []any

// Encode renders v as a Python literal expression.
func Encode(v any) (string, error) {
	var b strings.Builder
	if err := encode(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

// EncodeArgs renders args as a comma separated argument list.
func EncodeArgs(args ...any) (string, error) {
	parts := make([]string, 0, len(args))
	for i, a := range args {
		s, err := Encode(a)
		if err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", "), nil
}

func encode(b *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case int:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int8:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int16:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int32:
		b.WriteString(strconv.FormatInt(int64(x), 10))
	case int64:
		b.WriteString(strconv.FormatInt(x, 10))
	case uint:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint8:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint16:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint32:
		b.WriteString(strconv.FormatUint(uint64(x), 10))
	case uint64:
		b.WriteString(strconv.FormatUint(x, 10))
	case float32:
		return encodeFloat(b, float64(x))
	case float64:
		return encodeFloat(b, x)
	case string:
		quoteString(b, x)
	case []byte:
		quoteBytes(b, x)
	case []string:
		b.WriteByte('[')
		for i, s := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			quoteString(b, s)
		}
		b.WriteByte(']')
	case []any:
		b.WriteByte('[')
		if err := encodeItems(b, x); err != nil {
			return err
		}
		b.WriteByte(']')
	case Tuple:
		b.WriteByte('(')
		if err := encodeItems(b, x); err != nil {
			return err
		}
		if len(x) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			quoteString(b, k)
			b.WriteString(": ")
			if err := encode(b, x[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	default:
		return fmt.Errorf("pylit: cannot encode %T", v)
	}
	return nil
}

func encodeItems(b *strings.Builder, items []any) error {
	for i, it := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := encode(b, it); err != nil {
			return err
		}
	}
	return nil
}

func encodeFloat(b *strings.Builder, f float64) error {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("pylit: cannot encode %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	b.WriteString(s)
	return nil
}

func quoteString(b *strings.Builder, s string) {
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(b, `\x%02x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('\'')
}

func quoteBytes(b *strings.Builder, p []byte) {
	b.WriteString("b'")
	for _, c := range p {
		switch {
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\'':
			b.WriteString(`\'`)
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		default:
			fmt.Fprintf(b, `\x%02x`, c)
		}
	}
	b.WriteByte('\'')
}

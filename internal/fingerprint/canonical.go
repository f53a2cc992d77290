package fingerprint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Canonicalize returns the normalized text of p that gets hashed.
//
// Only the outermost mapping has its keys sorted. Nested mappings keep the
// order they were received in, so {"a":{"y":1,"x":2}} and {"a":{"x":2,"y":1}}
// canonicalize differently.
func Canonicalize(p Payload) string {
	switch p.Kind {
	case KindString:
		return p.Str
	case KindAbsent:
		return ""
	case KindMapping:
		fields := make([]Field, len(p.Fields))
		copy(fields, p.Fields)
		sort.SliceStable(fields, func(i, j int) bool { return fields[i].Key < fields[j].Key })

		var b strings.Builder
		writeJSON(&b, Mapping(fields...))
		return b.String()
	default:
		var b strings.Builder
		writeJSON(&b, p)
		return b.String()
	}
}

func writeJSON(b *strings.Builder, p Payload) {
	switch p.Kind {
	case KindAbsent:
		b.WriteString("null")
	case KindString:
		writeString(b, p.Str)
	case KindNumber:
		b.WriteString(formatNumber(p.Num))
	case KindBoolean:
		b.WriteString(strconv.FormatBool(p.Bool))
	case KindSequence:
		b.WriteByte('[')
		for i, item := range p.Items {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSON(b, item)
		}
		b.WriteByte(']')
	case KindMapping:
		b.WriteByte('{')
		for i, f := range p.Fields {
			if i > 0 {
				b.WriteByte(',')
			}
			writeString(b, f.Key)
			b.WriteByte(':')
			writeJSON(b, f.Value)
		}
		b.WriteByte('}')
	}
}

// writeString quotes s the way JavaScript's JSON.stringify does: only quote,
// backslash and control characters are escaped, lone surrogates become
// \uXXXX and invalid UTF-8 becomes U+FFFD.
func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); {
		if r, ok := surrogateAt(s, i); ok {
			fmt.Fprintf(b, `\u%04x`, r)
			i += 3
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

// formatNumber prints a JSON number in its shortest round-trip form, so 1,
// 1.0 and 1e0 are the same value. Exponents are used outside [1e-6, 1e21).
func formatNumber(literal string) string {
	f, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		// out of float64 range; keep what the client sent
		return literal
	}
	if f == 0 {
		return "0"
	}
	abs := f
	if abs < 0 {
		abs = -abs
	}
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mantissa, exp, _ := strings.Cut(s, "e")
		sign := exp[:1]
		digits := strings.TrimLeft(exp[1:], "0")
		return mantissa + "e" + sign + digits
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

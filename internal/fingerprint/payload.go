package fingerprint

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/tidwall/gjson"
)

// Kind is the tag of a Payload.
type Kind int

const (
	KindAbsent Kind = iota
	KindString
	KindNumber
	KindBoolean
	KindSequence
	KindMapping
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

var ErrInvalidJSON = errors.New("invalid JSON body")

// Field is one key/value pair of a mapping, in document order.
type Field struct {
	Key   string
	Value Payload
}

// Payload is a request body as a tagged variant. Mappings keep the order
// their keys appeared in, so nested objects can be serialized untouched.
type Payload struct {
	Kind   Kind
	Str    string // KindString
	Num    string // KindNumber, JSON literal as received
	Bool   bool   // KindBoolean
	Items  []Payload
	Fields []Field
}

func Absent() Payload { return Payload{Kind: KindAbsent} }

func Text(s string) Payload { return Payload{Kind: KindString, Str: s} }

func Number(literal string) Payload { return Payload{Kind: KindNumber, Num: literal} }

func Bool(b bool) Payload { return Payload{Kind: KindBoolean, Bool: b} }

func Sequence(items ...Payload) Payload {
	return Payload{Kind: KindSequence, Items: items}
}

func Mapping(fields ...Field) Payload {
	return Payload{Kind: KindMapping, Fields: fields}
}

// Parse decodes a JSON document into a Payload. An empty (or all-whitespace)
// body is Absent.
func Parse(body []byte) (Payload, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return Absent(), nil
	}
	if !gjson.ValidBytes(body) {
		return Payload{}, ErrInvalidJSON
	}
	return fromResult(gjson.ParseBytes(body)), nil
}

func fromResult(r gjson.Result) Payload {
	switch r.Type {
	case gjson.Null:
		return Absent()
	case gjson.True:
		return Bool(true)
	case gjson.False:
		return Bool(false)
	case gjson.Number:
		return Number(r.Raw)
	case gjson.String:
		return Text(stringValue(r))
	}

	if r.IsArray() {
		var items []Payload
		r.ForEach(func(_, v gjson.Result) bool {
			items = append(items, fromResult(v))
			return true
		})
		return Sequence(items...)
	}

	// repeated keys: last value wins, first position is kept
	var fields []Field
	index := map[string]int{}
	r.ForEach(func(k, v gjson.Result) bool {
		key := stringValue(k)
		if i, ok := index[key]; ok {
			fields[i].Value = fromResult(v)
			return true
		}
		index[key] = len(fields)
		fields = append(fields, Field{Key: key, Value: fromResult(v)})
		return true
	})
	return Mapping(fields...)
}

// stringValue returns the decoded text of a JSON string. gjson turns an
// unpaired surrogate escape into U+FFFD, which would make "\ud800" and
// "\ud801" equal; such strings are decoded here instead, keeping each lone
// surrogate as its 3-byte WTF-8 form for writeString to escape again.
func stringValue(r gjson.Result) string {
	if !hasSurrogateEscape(r.Raw) {
		return r.Str
	}
	return unquote(r.Raw)
}

func hasSurrogateEscape(raw string) bool {
	for i := 0; i+3 < len(raw); i++ {
		if raw[i] == '\\' && raw[i+1] == 'u' && (raw[i+2] == 'd' || raw[i+2] == 'D') &&
			strings.IndexByte("89abcdefABCDEF", raw[i+3]) >= 0 {
			return true
		}
	}
	return false
}

// unquote decodes a quoted JSON string that is already known to be valid.
func unquote(raw string) string {
	s := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		case 'u':
			r := hex4(s[i+1:])
			i += 4
			if r >= 0xD800 && r < 0xDC00 {
				if rest := s[i+1:]; len(rest) >= 6 && rest[0] == '\\' && rest[1] == 'u' {
					if low := hex4(rest[2:]); low >= 0xDC00 && low <= 0xDFFF {
						b.WriteRune(utf16.DecodeRune(r, low))
						i += 6
						continue
					}
				}
			}
			if utf16.IsSurrogate(r) {
				writeSurrogate(&b, r)
				continue
			}
			b.WriteRune(r)
		default:
			// '"', '\\' and '/'
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func hex4(s string) rune {
	n, _ := strconv.ParseUint(s[:4], 16, 32)
	return rune(n)
}

// writeSurrogate writes r in the generalized UTF-8 form utf8.EncodeRune
// refuses for surrogates.
func writeSurrogate(b *strings.Builder, r rune) {
	b.WriteByte(byte(0xE0 | r>>12))
	b.WriteByte(byte(0x80 | (r>>6)&0x3F))
	b.WriteByte(byte(0x80 | r&0x3F))
}

// surrogateAt reports the lone surrogate encoded at s[i:], if any.
func surrogateAt(s string, i int) (rune, bool) {
	if len(s)-i < 3 || s[i] != 0xED || s[i+1] < 0xA0 || s[i+1] > 0xBF || s[i+2] < 0x80 || s[i+2] > 0xBF {
		return 0, false
	}
	return rune(s[i]&0x0F)<<12 | rune(s[i+1]&0x3F)<<6 | rune(s[i+2]&0x3F), true
}

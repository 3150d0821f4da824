package gameconfig

import (
	"encoding/json"
	"strings"
)

const indentUnit = "  "

// Serialize renders obj in canonical form: quoted keys, two-space indent,
// insertion order. The output is valid both as JSON and as a script literal.
func Serialize(obj *Object) string {
	var b strings.Builder
	writeValue(&b, obj, 0)
	return b.String()
}

// Compact renders a value on a single line, for display and the raw editor.
func Compact(v any) string {
	var b strings.Builder
	writeCompact(&b, v)
	return b.String()
}

func writeValue(b *strings.Builder, v any, depth int) {
	switch x := v.(type) {
	case *Object:
		if x.Len() == 0 {
			b.WriteString("{}")
			return
		}
		b.WriteString("{\n")
		for i, k := range x.keys {
			b.WriteString(strings.Repeat(indentUnit, depth+1))
			writeString(b, k)
			b.WriteString(": ")
			writeValue(b, x.values[k], depth+1)
			if i < len(x.keys)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indentUnit, depth))
		b.WriteByte('}')
	case []any:
		if len(x) == 0 {
			b.WriteString("[]")
			return
		}
		b.WriteString("[\n")
		for i, item := range x {
			b.WriteString(strings.Repeat(indentUnit, depth+1))
			writeValue(b, item, depth+1)
			if i < len(x)-1 {
				b.WriteByte(',')
			}
			b.WriteByte('\n')
		}
		b.WriteString(strings.Repeat(indentUnit, depth))
		b.WriteByte(']')
	default:
		writeScalar(b, v)
	}
}

func writeCompact(b *strings.Builder, v any) {
	switch x := v.(type) {
	case *Object:
		b.WriteByte('{')
		for i, k := range x.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			writeString(b, k)
			b.WriteString(": ")
			writeCompact(b, x.values[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			writeCompact(b, item)
		}
		b.WriteByte(']')
	default:
		writeScalar(b, v)
	}
}

func writeScalar(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if x {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case float64:
		b.WriteString(formatNumber(x))
	case string:
		writeString(b, x)
	}
}

// writeString quotes s as JSON. HTML-significant characters come out as
// \u escapes, so a value such as "</script>" cannot end the host script.
func writeString(b *strings.Builder, s string) {
	data, _ := json.Marshal(s)
	b.Write(data)
}

package gameconfig

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// VarName is the variable generated games assign their tunables to.
const VarName = "GAME_CONFIG"

// assignPattern matches the assignment up to and including the opening brace.
var assignPattern = regexp.MustCompile(`(?m)(?:\b(?:const|let|var)\s+|\bwindow\.|^[ \t]*)` + VarName + `\s*=\s*\{`)

// FindLiteral locates the first configuration assignment in src and returns
// the span [start, end) of its object literal, braces included.
func FindLiteral(src string) (start, end int, ok bool) {
	loc := assignPattern.FindStringIndex(src)
	if loc == nil {
		return 0, 0, false
	}
	start = loc[1] - 1
	end, ok = matchBrace(src, start)
	if !ok {
		return 0, 0, false
	}
	return start, end, true
}

// matchBrace returns the offset just past the brace closing the one at open.
// Strings, template literals and comments are skipped so braces inside them
// do not count.
func matchBrace(src string, open int) (int, bool) {
	depth := 0
	for i := open; i < len(src); i++ {
		switch c := src[i]; c {
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
			if depth == 0 {
				if c != '}' {
					return 0, false
				}
				return i + 1, true
			}
			if depth < 0 {
				return 0, false
			}
		case '"', '\'', '`':
			j := skipString(src, i)
			if j < 0 {
				return 0, false
			}
			i = j
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				for i < len(src) && src[i] != '\n' {
					i++
				}
			} else if i+1 < len(src) && src[i+1] == '*' {
				j := strings.Index(src[i+2:], "*/")
				if j < 0 {
					return 0, false
				}
				i += j + 3
			}
		}
	}
	return 0, false
}

// skipString returns the offset of the closing quote of the string starting at i.
func skipString(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j
		case '\n':
			if quote != '`' {
				return -1
			}
		}
	}
	return -1
}

// Editor extracts configuration from game sources and writes edits back.
// It never fails loudly: problems are logged and the source is left alone.
type Editor struct {
	log logrus.FieldLogger
}

// NewEditor returns an Editor logging through log.
func NewEditor(log logrus.FieldLogger) *Editor {
	return &Editor{log: log}
}

// Extract returns the configuration embedded in src, or nil when there is
// none or it cannot be read.
func (e *Editor) Extract(src string) *Object {
	start, end, ok := FindLiteral(src)
	if !ok {
		return nil
	}
	obj, err := ParseLiteral(src[start:end])
	if err != nil {
		e.log.WithError(err).Warn("Failed to read game configuration")
		return nil
	}
	return obj
}

// ApplyEdits merges edits into the configuration of src and returns the
// rewritten source. Only the object literal span changes. On any failure the
// original src is returned.
func (e *Editor) ApplyEdits(src string, edits map[string]any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			e.log.WithField("panic", r).Warn("Configuration edit aborted")
			out = src
		}
	}()

	start, end, ok := FindLiteral(src)
	if !ok {
		e.log.Warn("No configuration found to edit")
		return src
	}
	obj, err := ParseLiteral(src[start:end])
	if err != nil {
		e.log.WithError(err).Warn("Failed to read game configuration")
		return src
	}

	keys := make([]string, 0, len(edits))
	for k := range edits {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := normalize(edits[k], 0)
		if err != nil {
			e.log.WithError(err).WithField("key", k).Warn("Rejected configuration edit")
			return src
		}
		obj.Set(k, v)
	}

	return src[:start] + Serialize(obj) + src[end:]
}

// normalize converts Go values into the value set Object holds.
func normalize(v any, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("value nested too deep")
	}
	switch x := v.(type) {
	case nil, bool, string:
		return x, nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, fmt.Errorf("non-finite number %v", x)
		}
		return x, nil
	case float32:
		return normalize(float64(x), depth)
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case *Object:
		out := NewObject()
		for _, k := range x.keys {
			nv, err := normalize(x.values[k], depth+1)
			if err != nil {
				return nil, err
			}
			out.Set(k, nv)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := NewObject()
		for _, k := range keys {
			nv, err := normalize(x[k], depth+1)
			if err != nil {
				return nil, err
			}
			out.Set(k, nv)
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			nv, err := normalize(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

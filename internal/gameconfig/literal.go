// Package gameconfig reads and rewrites the tunable configuration object that
// generated games embed in their source.
//
// The configuration is a script object literal, not JSON, so it is read with a
// small permissive parser instead of being evaluated. Supported values are
// numbers, strings, booleans, null, arrays and nested objects.
package gameconfig

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrSyntax is returned for literals the parser cannot read.
var ErrSyntax = errors.New("gameconfig: invalid object literal")

// Object is an insertion-ordered mapping from key to value. Values are
// float64, bool, string, nil, []any or *Object.
type Object struct {
	keys   []string
	values map[string]any
}

// NewObject returns an empty Object.
func NewObject() *Object {
	return &Object{values: make(map[string]any)}
}

// Set assigns a value, appending the key if it is new.
func (o *Object) Set(key string, v any) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

// Get returns the value stored under key.
func (o *Object) Get(key string) (any, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

// Len returns the number of keys.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Equal reports whether two objects hold the same keys in the same order
// with equal values.
func (o *Object) Equal(other *Object) bool {
	if o.Len() != other.Len() {
		return false
	}
	if o == nil {
		return true
	}
	for i, k := range o.keys {
		if other.keys[i] != k || !valuesEqual(o.values[k], other.values[k]) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b any) bool {
	switch av := a.(type) {
	case *Object:
		bv, ok := b.(*Object)
		return ok && av.Equal(bv)
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// ParseLiteral parses text holding exactly one object literal.
func ParseLiteral(text string) (*Object, error) {
	v, err := ParseValue(text)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, fmt.Errorf("%w: not an object", ErrSyntax)
	}
	return obj, nil
}

// ParseValue parses any literal value: object, array, string, number,
// boolean or null. Trailing input other than whitespace, comments or a
// semicolon is rejected.
func ParseValue(text string) (any, error) {
	p := &parser{lex: lexer{src: text}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	v, err := p.value(0)
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokPunct && p.tok.text == ";" {
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %q after value", p.tok.text)
	}
	return v, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokPunct
	tokString
	tokNumber
	tokIdent
)

type token struct {
	kind tokenKind
	text string // raw punctuation or identifier, decoded string contents
	num  float64
	pos  int
}

type lexer struct {
	src string
	pos int
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return fmt.Errorf("%w: offset %d: %s", ErrSyntax, pos, fmt.Sprintf(format, args...))
}

// skip consumes whitespace and comments.
func (l *lexer) skip() error {
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			l.pos++
		case strings.HasPrefix(l.src[l.pos:], "//"):
			end := strings.IndexByte(l.src[l.pos:], '\n')
			if end < 0 {
				l.pos = len(l.src)
			} else {
				l.pos += end + 1
			}
		case strings.HasPrefix(l.src[l.pos:], "/*"):
			end := strings.Index(l.src[l.pos+2:], "*/")
			if end < 0 {
				return l.errorf(l.pos, "unterminated comment")
			}
			l.pos += end + 4
		default:
			r, size := utf8.DecodeRuneInString(l.src[l.pos:])
			if r == '\u00a0' || r == '\ufeff' || r == '\u2028' || r == '\u2029' {
				l.pos += size
				continue
			}
			return nil
		}
	}
	return nil
}

func (l *lexer) next() (token, error) {
	if err := l.skip(); err != nil {
		return token{}, err
	}
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: start}, nil
	}

	c := l.src[l.pos]
	switch {
	case strings.IndexByte("{}[]:,;+-", c) >= 0:
		l.pos++
		return token{kind: tokPunct, text: string(c), pos: start}, nil
	case c == '"' || c == '\'' || c == '`':
		s, err := l.string(c)
		if err != nil {
			return token{}, err
		}
		return token{kind: tokString, text: s, pos: start}, nil
	case isDigit(c) || (c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1])):
		n, err := l.number()
		if err != nil {
			return token{}, err
		}
		return token{kind: tokNumber, num: n, text: l.src[start:l.pos], pos: start}, nil
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if isIdentStart(r) {
		l.pos += size
		for l.pos < len(l.src) {
			r, size = utf8.DecodeRuneInString(l.src[l.pos:])
			if !isIdentPart(r) {
				break
			}
			l.pos += size
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil
	}
	return token{}, l.errorf(start, "unexpected character %q", r)
}

func (l *lexer) string(quote byte) (string, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == quote:
			l.pos++
			return b.String(), nil
		case c == '\\':
			if err := l.escape(&b); err != nil {
				return "", err
			}
		case quote == '`' && c == '$' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '{':
			return "", l.errorf(l.pos, "template substitution is not a literal")
		case (c == '\n' || c == '\r') && quote != '`':
			return "", l.errorf(l.pos, "newline in string")
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return "", l.errorf(start, "unterminated string")
}

func (l *lexer) escape(b *strings.Builder) error {
	at := l.pos
	l.pos++ // backslash
	if l.pos >= len(l.src) {
		return l.errorf(at, "unterminated escape")
	}
	c := l.src[l.pos]
	l.pos++
	switch c {
	case 'n':
		b.WriteByte('\n')
	case 't':
		b.WriteByte('\t')
	case 'r':
		b.WriteByte('\r')
	case 'b':
		b.WriteByte('\b')
	case 'f':
		b.WriteByte('\f')
	case 'v':
		b.WriteByte('\v')
	case '0':
		b.WriteByte(0)
	case '\n':
		// line continuation
	case '\r':
		if l.pos < len(l.src) && l.src[l.pos] == '\n' {
			l.pos++
		}
	case 'x':
		r, err := l.hex(2)
		if err != nil {
			return err
		}
		b.WriteRune(r)
	case 'u':
		if l.pos < len(l.src) && l.src[l.pos] == '{' {
			end := strings.IndexByte(l.src[l.pos:], '}')
			if end < 0 {
				return l.errorf(at, "unterminated unicode escape")
			}
			n, err := strconv.ParseUint(l.src[l.pos+1:l.pos+end], 16, 32)
			if err != nil {
				return l.errorf(at, "bad unicode escape")
			}
			l.pos += end + 1
			b.WriteRune(rune(n))
			return nil
		}
		r, err := l.hex(4)
		if err != nil {
			return err
		}
		b.WriteRune(r)
	default:
		b.WriteByte(c)
	}
	return nil
}

func (l *lexer) hex(n int) (rune, error) {
	if l.pos+n > len(l.src) {
		return 0, l.errorf(l.pos, "short hex escape")
	}
	v, err := strconv.ParseUint(l.src[l.pos:l.pos+n], 16, 32)
	if err != nil {
		return 0, l.errorf(l.pos, "bad hex escape")
	}
	l.pos += n
	return rune(v), nil
}

func (l *lexer) number() (float64, error) {
	start := l.pos
	if strings.HasPrefix(l.src[l.pos:], "0x") || strings.HasPrefix(l.src[l.pos:], "0X") {
		l.pos += 2
		for l.pos < len(l.src) && (isHex(l.src[l.pos]) || l.src[l.pos] == '_') {
			l.pos++
		}
		v, err := strconv.ParseUint(strings.ReplaceAll(l.src[start+2:l.pos], "_", ""), 16, 64)
		if err != nil {
			return 0, l.errorf(start, "bad hex number")
		}
		return float64(v), nil
	}

	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := strings.ReplaceAll(l.src[start:l.pos], "_", "")
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, l.errorf(start, "bad number %q", text)
	}
	return v, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHex(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentStart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

// maxDepth bounds nesting so hostile input cannot exhaust the stack.
const maxDepth = 64

type parser struct {
	lex lexer
	tok token
}

func (p *parser) advance() error {
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return p.lex.errorf(p.tok.pos, format, args...)
}

func (p *parser) punct(s string) bool {
	return p.tok.kind == tokPunct && p.tok.text == s
}

func (p *parser) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, p.errorf("nesting too deep")
	}
	switch p.tok.kind {
	case tokString:
		s := p.tok.text
		return s, p.advance()
	case tokNumber:
		n := p.tok.num
		return n, p.advance()
	case tokIdent:
		var v any
		switch p.tok.text {
		case "true":
			v = true
		case "false":
			v = false
		case "null", "undefined":
			v = nil
		default:
			return nil, p.errorf("unsupported identifier %q", p.tok.text)
		}
		return v, p.advance()
	case tokPunct:
		switch p.tok.text {
		case "{":
			return p.object(depth)
		case "[":
			return p.array(depth)
		case "-", "+":
			neg := p.tok.text == "-"
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.tok.kind != tokNumber {
				return nil, p.errorf("expected number after sign")
			}
			n := p.tok.num
			if neg {
				n = -n
			}
			return n, p.advance()
		}
	case tokEOF:
		return nil, p.errorf("unexpected end of input")
	}
	return nil, p.errorf("unexpected %q", p.tok.text)
}

func (p *parser) object(depth int) (*Object, error) {
	obj := NewObject()
	if err := p.advance(); err != nil { // {
		return nil, err
	}
	for !p.punct("}") {
		var key string
		switch p.tok.kind {
		case tokIdent, tokString:
			key = p.tok.text
		case tokNumber:
			key = formatNumber(p.tok.num)
		default:
			return nil, p.errorf("expected property name, got %q", p.tok.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if !p.punct(":") {
			return nil, p.errorf("expected ':' after %q", key)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)

		if p.punct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if !p.punct("}") {
			return nil, p.errorf("expected ',' or '}', got %q", p.tok.text)
		}
	}
	return obj, p.advance()
}

func (p *parser) array(depth int) ([]any, error) {
	items := []any{}
	if err := p.advance(); err != nil { // [
		return nil, err
	}
	for !p.punct("]") {
		if p.punct(",") {
			return nil, p.errorf("array holes are not supported")
		}
		v, err := p.value(depth + 1)
		if err != nil {
			return nil, err
		}
		items = append(items, v)

		if p.punct(",") {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		if !p.punct("]") {
			return nil, p.errorf("expected ',' or ']', got %q", p.tok.text)
		}
	}
	return items, p.advance()
}

func formatNumber(v float64) string {
	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Package response turns raw generator output into a playable HTML document
// and a controls list.
//
// Generator output is unreliable: it may be a JSON envelope, delimited text,
// a bare or fenced document, or prose around fragments of one, and it is
// often cut off mid-stream. Each output is extracted by an ordered chain of
// strategies where the first hit wins, and the chosen document is then
// repaired into a complete one.
package response

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/tatianab/game-forge/internal/models"
)

// ErrInvalidFormat means no strategy could locate any document.
var ErrInvalidFormat = errors.New("response: no game document found")

// Result is the parsed form of one response.
type Result struct {
	Document string
	Controls []models.ControlDescriptor
}

// Strategy extracts a candidate from raw text; ok is false on a miss.
type Strategy func(raw string) (string, bool)

// Delimiter tokens the prompt asks the generator to emit.
const (
	HTMLStart     = "---HTML_START---"
	HTMLEnd       = "---HTML_END---"
	ControlsStart = "---CONTROLS_START---"
	ControlsEnd   = "---CONTROLS_END---"
)

// DocumentStrategies are tried in order to find the document.
var DocumentStrategies = []Strategy{
	EnvelopeDocument,
	DelimitedDocument,
	StructuralDocument,
	FencedDocument,
	SyntheticDocument,
}

// ControlsStrategies are tried in order to find the controls payload.
var ControlsStrategies = []Strategy{
	EnvelopeControls,
	DelimitedControls,
	FencedControls,
}

// Parse extracts and repairs the document and controls from raw.
func Parse(raw string) (Result, error) {
	doc, ok := firstHit(DocumentStrategies, raw)
	if !ok || strings.TrimSpace(doc) == "" {
		return Result{}, ErrInvalidFormat
	}

	controls := []models.ControlDescriptor{models.DefaultControl}
	if payload, ok := firstHit(ControlsStrategies, raw); ok {
		if parsed := parseControls(payload); len(parsed) > 0 {
			controls = parsed
		}
	}

	return Result{
		Document: Repair(doc),
		Controls: controls,
	}, nil
}

func firstHit(strategies []Strategy, raw string) (string, bool) {
	for _, s := range strategies {
		if out, ok := s(raw); ok {
			return out, true
		}
	}
	return "", false
}

// marker builds a pattern for a delimiter token that tolerates whitespace
// between its dashes and its name.
func marker(token string) *regexp.Regexp {
	name := strings.Trim(token, "-")
	return regexp.MustCompile(`-{3}\s*` + regexp.QuoteMeta(name) + `\s*-{3}`)
}

var (
	htmlStartRe     = marker(HTMLStart)
	htmlEndRe       = marker(HTMLEnd)
	controlsStartRe = marker(ControlsStart)
	controlsEndRe   = marker(ControlsEnd)
)

// between returns the text after the start marker, up to the end marker if
// present and otherwise to the end of raw. A start marker followed only by
// whitespace is a miss: there is no fragment to repair.
func between(raw string, start, end *regexp.Regexp) (string, bool) {
	loc := start.FindStringIndex(raw)
	if loc == nil {
		return "", false
	}
	rest := raw[loc[1]:]
	if endLoc := end.FindStringIndex(rest); endLoc != nil {
		rest = rest[:endLoc[0]]
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

// DelimitedDocument reads the text between the HTML markers. A missing end
// marker means the output was truncated; everything after the start is kept.
func DelimitedDocument(raw string) (string, bool) {
	doc, ok := between(raw, htmlStartRe, htmlEndRe)
	if !ok {
		return "", false
	}
	// the model sometimes fences the delimited block as well
	if inner, ok := fenced(doc, isMarkup); ok {
		return inner, true
	}
	return doc, true
}

// DelimitedControls reads the text between the controls markers.
func DelimitedControls(raw string) (string, bool) {
	payload, ok := between(raw, controlsStartRe, controlsEndRe)
	if !ok {
		return "", false
	}
	if inner, ok := fenced(payload, isJSONArray); ok {
		return inner, true
	}
	return payload, true
}

var (
	htmlOpenRe  = regexp.MustCompile(`(?i)<!doctype\s+html[^>]*>|<html[\s>]`)
	htmlCloseRe = regexp.MustCompile(`(?i)</html\s*>`)
)

// StructuralDocument takes the span from the first root open marker to the
// matching close, or to the end of raw when the close is missing.
func StructuralDocument(raw string) (string, bool) {
	loc := htmlOpenRe.FindStringIndex(raw)
	if loc == nil {
		return "", false
	}
	rest := raw[loc[0]:]
	if closeLoc := htmlCloseRe.FindStringIndex(rest); closeLoc != nil {
		rest = rest[:closeLoc[1]]
	}
	return strings.TrimSpace(rest), true
}

var fenceRe = regexp.MustCompile("```([A-Za-z0-9_-]*)[ \t]*\r?\n?")

// fenced returns the body of the first code fence whose content satisfies
// accept. An unclosed fence runs to the end of text.
func fenced(text string, accept func(lang, body string) bool) (string, bool) {
	rest := text
	for {
		loc := fenceRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			return "", false
		}
		lang := strings.ToLower(rest[loc[2]:loc[3]])
		body := rest[loc[1]:]
		next := ""
		if end := strings.Index(body, "```"); end >= 0 {
			next = body[end+3:]
			body = body[:end]
		}
		body = strings.TrimSpace(body)
		if body != "" && accept(lang, body) {
			return body, true
		}
		if next == "" {
			return "", false
		}
		rest = next
	}
}

func isMarkup(lang, body string) bool {
	switch lang {
	case "html", "htm", "xhtml":
		return true
	case "", "text":
		return strings.Contains(body, "<")
	}
	return false
}

func isJSONArray(lang, body string) bool {
	return (lang == "json" || lang == "") && strings.HasPrefix(body, "[")
}

// FencedDocument strips a markdown code fence around markup.
func FencedDocument(raw string) (string, bool) {
	return fenced(raw, isMarkup)
}

// FencedControls takes a fenced JSON array.
func FencedControls(raw string) (string, bool) {
	return fenced(raw, isJSONArray)
}

// SyntheticDocument keeps raw as-is when it holds game code fragments but no
// document wrapper; Repair then builds the shell around it.
func SyntheticDocument(raw string) (string, bool) {
	if !hasGameFragments(raw) {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

// envelope is the JSON object form some models answer with.
type envelope struct {
	HTML     string          `json:"html"`
	Controls json.RawMessage `json:"controls"`
}

func readEnvelope(raw string) (envelope, bool) {
	text := strings.TrimSpace(raw)
	if inner, ok := fenced(text, func(lang, body string) bool {
		return (lang == "json" || lang == "") && strings.HasPrefix(body, "{")
	}); ok {
		text = inner
	}
	if !strings.HasPrefix(text, "{") {
		return envelope{}, false
	}
	var env envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		html, ok := partialHTMLField(text)
		if !ok {
			return envelope{}, false
		}
		return envelope{HTML: html}, true
	}
	return env, true
}

var htmlFieldRe = regexp.MustCompile(`"html"\s*:\s*"`)

var rawControlEscapes = strings.NewReplacer("\n", `\n`, "\r", `\r`, "\t", `\t`)

// partialHTMLField decodes the html string of an envelope that was cut off,
// up to its closing quote or the last complete escape before the cut.
func partialHTMLField(text string) (string, bool) {
	loc := htmlFieldRe.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]
	end := len(body)
scan:
	for i := 0; i < len(body); i++ {
		switch body[i] {
		case '"':
			end = i
			break scan
		case '\\':
			need := 2
			if i+1 < len(body) && body[i+1] == 'u' {
				need = 6
			}
			if i+need > len(body) {
				end = i
				break scan
			}
			i += need - 1
		}
	}

	var html string
	quoted := `"` + rawControlEscapes.Replace(body[:end]) + `"`
	if err := json.Unmarshal([]byte(quoted), &html); err != nil {
		return "", false
	}
	return html, true
}

// EnvelopeDocument reads the html field of a JSON envelope.
func EnvelopeDocument(raw string) (string, bool) {
	env, ok := readEnvelope(raw)
	if !ok || strings.TrimSpace(env.HTML) == "" {
		return "", false
	}
	return strings.TrimSpace(env.HTML), true
}

// EnvelopeControls reads the controls field of a JSON envelope.
func EnvelopeControls(raw string) (string, bool) {
	env, ok := readEnvelope(raw)
	if !ok || len(env.Controls) == 0 {
		return "", false
	}
	return string(env.Controls), true
}

// wireControl is a control as the generator writes it.
type wireControl struct {
	Icon  string `json:"icon"`
	Label string `json:"label"`
	Key   string `json:"key"`
}

// parseControls decodes a JSON array of controls. Unusable payloads and
// entries without a label yield nothing.
func parseControls(payload string) []models.ControlDescriptor {
	var wire []wireControl
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil
	}
	var out []models.ControlDescriptor
	for _, w := range wire {
		label := strings.TrimSpace(w.Label)
		if label == "" {
			continue
		}
		out = append(out, models.ControlDescriptor{
			Icon:  models.ParseIconClass(w.Icon),
			Label: label,
			Key:   strings.TrimSpace(w.Key),
		})
	}
	return out
}

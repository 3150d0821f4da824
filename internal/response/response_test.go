package response

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/tatianab/game-forge/internal/models"
)

const fullDoc = `<!DOCTYPE html>
<html><head><style>body{margin:0}</style></head><body><canvas id="c"></canvas><script>
const GAME_CONFIG = { speed: 3 };
loop();
</script></body></html>`

const fullResponse = "Here is your game!\n" +
	HTMLStart + "\n" + fullDoc + "\n" + HTMLEnd + "\n" +
	ControlsStart + "\n" + `[{"icon":"arrows","label":"Move"},{"icon":"space","label":"Jump","key":"Space"}]` + "\n" + ControlsEnd

func TestParseDelimited(t *testing.T) {
	res, err := Parse(fullResponse)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Document != fullDoc {
		t.Errorf("Document = %q", res.Document)
	}
	want := []models.ControlDescriptor{
		{Icon: models.IconDirectionalKeys, Label: "Move"},
		{Icon: models.IconActionKey, Label: "Jump", Key: "Space"},
	}
	if len(res.Controls) != len(want) {
		t.Fatalf("Controls = %+v", res.Controls)
	}
	for i := range want {
		if res.Controls[i] != want[i] {
			t.Errorf("Controls[%d] = %+v, want %+v", i, res.Controls[i], want[i])
		}
	}
}

func TestParseMarkerWhitespace(t *testing.T) {
	raw := "--- HTML_START ---\n<html><body></body></html>\n---  HTML_END---\n---CONTROLS_START ---\n[]\n--- CONTROLS_END---"
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Document != "<!DOCTYPE html>\n<html><body></body></html>" {
		t.Errorf("Document = %q", res.Document)
	}
	if len(res.Controls) != 1 || res.Controls[0] != models.DefaultControl {
		t.Errorf("Empty controls should become the default, got %+v", res.Controls)
	}
}

func TestParseTruncatedDelimited(t *testing.T) {
	raw := HTMLStart + "\n<!DOCTYPE html>\n<html><body><script>let x = 1;"
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "<!DOCTYPE html>\n<html><body><script>let x = 1;\n</script>\n</body>\n</html>"
	if res.Document != want {
		t.Errorf("Document = %q, want %q", res.Document, want)
	}
}

func TestParseTruncationTolerance(t *testing.T) {
	startAt := strings.Index(fullResponse, HTMLStart) + len(HTMLStart) + 2
	endAt := strings.Index(fullResponse, HTMLEnd)
	for cut := startAt; cut < endAt; cut++ {
		raw := fullResponse[:cut]
		res, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(cut=%d): %v", cut, err)
		}
		if strings.TrimSpace(res.Document) == "" {
			t.Fatalf("Empty document at cut=%d", cut)
		}
		if !Complete(res.Document) {
			t.Fatalf("Incomplete document at cut=%d: %q", cut, res.Document)
		}
	}
}

func TestParseStructural(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "prose around document",
			raw:  "Sure, here it is:\n<html><body><canvas></canvas></body></html>\nEnjoy!",
			want: "<!DOCTYPE html>\n<html><body><canvas></canvas></body></html>",
		},
		{
			name: "uppercase and truncated",
			raw:  "<!doctype html><HTML><BODY><canvas>",
			want: "<!doctype html><HTML><BODY><canvas>\n</body>\n</html>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if res.Document != tt.want {
				t.Errorf("Document = %q, want %q", res.Document, tt.want)
			}
		})
	}
}

func TestParseFencedFragment(t *testing.T) {
	raw := "```html\n<canvas id=\"c\"></canvas>\n<script>start()</script>\n```\nHave fun."
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !Complete(res.Document) {
		t.Fatalf("Incomplete document: %q", res.Document)
	}
	if !strings.Contains(res.Document, "<body>\n<canvas id=\"c\"></canvas>\n<script>start()</script>\n</body>") {
		t.Errorf("Fragment not wrapped: %q", res.Document)
	}
	if strings.Contains(res.Document, "```") || strings.Contains(res.Document, "Have fun") {
		t.Errorf("Fence or prose leaked: %q", res.Document)
	}
}

func TestParseSynthetic(t *testing.T) {
	raw := "Paste this: <canvas width=400></canvas><script>requestAnimationFrame(draw)"
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.HasPrefix(res.Document, "<!DOCTYPE html>\n<html>\n<head>") {
		t.Errorf("Expected synthetic shell, got %q", res.Document)
	}
	if !strings.Contains(res.Document, "requestAnimationFrame(draw)\n</script>\n</body>\n</html>") {
		t.Errorf("Unclosed script not repaired: %q", res.Document)
	}
}

func TestParseEnvelope(t *testing.T) {
	raw := "```json\n" + `{"html": "<!DOCTYPE html><html><body>\"hi\"</body></html>", "controls": [{"icon": "click", "label": "Shoot"}]}` + "\n```"
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.Document != `<!DOCTYPE html><html><body>"hi"</body></html>` {
		t.Errorf("Document = %q", res.Document)
	}
	if len(res.Controls) != 1 || res.Controls[0].Icon != models.IconPointerClick {
		t.Errorf("Controls = %+v", res.Controls)
	}
}

func TestParseTruncatedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "cut inside the html string",
			raw:  `{"html": "<!DOCTYPE html>\n<html><body><canvas id=\"c\"></canvas><script>const GAME_CONFIG = {speed: 3};\nlet x = 1;`,
			want: "<!DOCTYPE html>\n<html><body><canvas id=\"c\"></canvas><script>const GAME_CONFIG = {speed: 3};\nlet x = 1;\n</script>\n</body>\n</html>",
		},
		{
			name: "cut inside an escape",
			raw:  `{"html": "<html><body><script>let s = \"a\`,
			want: "<!DOCTYPE html>\n<html><body><script>let s = \"a\n</script>\n</body>\n</html>",
		},
		{
			name: "cut inside a unicode escape",
			raw:  "```json\n" + `{"html": "<html><body><script>let s = 1;\u00`,
			want: "<!DOCTYPE html>\n<html><body><script>let s = 1;\n</script>\n</body>\n</html>",
		},
		{
			name: "cut after the html field",
			raw:  `{"html": "<html><body>\"hi\"</body></html>", "controls": [{"icon": "cli`,
			want: "<!DOCTYPE html>\n<html><body>\"hi\"</body></html>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if res.Document != tt.want {
				t.Errorf("Document = %q, want %q", res.Document, tt.want)
			}
		})
	}
}

func TestParseEnvelopeTruncationTolerance(t *testing.T) {
	html, err := json.Marshal(fullDoc)
	if err != nil {
		t.Fatal(err)
	}
	raw := `{"html": ` + string(html) + `, "controls": []}`
	startAt := strings.Index(raw, "<html>")
	for cut := startAt; cut < len(raw); cut++ {
		res, err := Parse(raw[:cut])
		if err != nil {
			t.Fatalf("Parse(cut=%d): %v", cut, err)
		}
		if strings.Contains(res.Document, `\"`) || strings.Contains(res.Document, `\n`) {
			t.Fatalf("Escaped text left in document at cut=%d: %q", cut, res.Document)
		}
		if !Complete(res.Document) {
			t.Fatalf("Incomplete document at cut=%d: %q", cut, res.Document)
		}
	}
}

func TestParseFencedControls(t *testing.T) {
	raw := "<html><body></body></html>\n```json\n[{\"icon\":\"mouse\",\"label\":\"Aim\"}]\n```"
	res, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Controls) != 1 || res.Controls[0].Label != "Aim" || res.Controls[0].Icon != models.IconPointerMove {
		t.Errorf("Controls = %+v", res.Controls)
	}
}

func TestParseControlsFallback(t *testing.T) {
	tests := []struct {
		name     string
		controls string
	}{
		{"malformed json", `[{"icon": "arrows", "label": "Mo`},
		{"empty list", `[]`},
		{"no labels", `[{"icon": "arrows"}]`},
		{"not an array", `{"icon": "arrows"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := HTMLStart + fullDoc + HTMLEnd + ControlsStart + tt.controls + ControlsEnd
			res, err := Parse(raw)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(res.Controls) != 1 || res.Controls[0] != models.DefaultControl {
				t.Errorf("Controls = %+v, want default", res.Controls)
			}
		})
	}
}

func TestParseInvalidFormat(t *testing.T) {
	for _, raw := range []string{
		"",
		"   \n ",
		"I'm sorry, but I can't create that game. Maybe try a puzzle about gardening instead?",
		"```python\nprint('hello')\n```",
		HTMLStart + "\n  \n",
	} {
		if _, err := Parse(raw); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidFormat", raw, err)
		}
	}
}

func TestRepairKeepsCompleteDocument(t *testing.T) {
	if got := Repair(fullDoc); got != fullDoc {
		t.Errorf("Repair changed a complete document: %q", got)
	}
}

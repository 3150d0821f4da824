package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"github.com/tatianab/game-forge/internal/config"
	"github.com/tatianab/game-forge/internal/engine"
	"github.com/tatianab/game-forge/internal/gameconfig"
	"github.com/tatianab/game-forge/internal/models"
	"github.com/tatianab/game-forge/internal/response"
	"github.com/tatianab/game-forge/internal/sandbox"
	"github.com/tatianab/game-forge/internal/session"
	"github.com/tatianab/game-forge/internal/store"
	"google.golang.org/api/option"
)

const editRounds = 10

// scriptedGenerator replays canned responses: a transport failure, then a
// response cut off before its end marker.
type scriptedGenerator struct {
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, instruction string) (models.RawModelOutput, error) {
	g.calls++
	if g.calls == 1 {
		return models.RawModelOutput{}, errors.New("simulated connection reset")
	}
	text := response.HTMLStart + `
<!DOCTYPE html>
<html><head><title>Orbit</title></head>
<body><canvas id="c" width="480" height="320"></canvas>
<script>
const GAME_CONFIG = {
  masterVolume: 0.6,
  shootSoundType: 'square',
  shipColor: '#33ccff',
  shipSpeed: 4,
  asteroids: { count: 6, maxSize: 40 },
  debug: false, // toggled from the editor
};
window.restartGame = function () { score = 0; };
let score = 0;
function loop() { requestAnimationFrame(loop); }
loop();`
	return models.RawModelOutput{Text: text, Termination: models.TerminationOther}, nil
}

// printFrame stands in for a browser tab.
type printFrame struct{}

func (printFrame) Navigate(handle, url string) error {
	fmt.Printf("  frame -> %s\n", url)
	return nil
}

func (printFrame) Restart(ctx context.Context) error {
	return sandbox.ErrNoRestartHook
}

func main() {
	live := flag.Bool("live", false, "use the configured Gemini model instead of scripted responses")
	flag.Parse()
	ctx := context.Background()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)

	var gen engine.Generator = &scriptedGenerator{}
	theme := "asteroid dodger in orbit"
	if *live {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		gemini, err := engine.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			log.Fatalf("Failed to create generator: %v", err)
		}
		defer gemini.Close()
		gen = gemini
		theme = askTheme(ctx, cfg)
	}

	// 1. Generate
	fmt.Printf("--- Step 1: Generating %q ---\n", theme)
	orch := engine.New(gen, engine.Options{
		RetryDelay: 10 * time.Millisecond,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			fmt.Printf("  attempt %d failed (%v), retrying in %v\n", attempt, err, wait)
		},
	}, logger)

	res := sandbox.NewResources()
	rt := sandbox.New(printFrame{}, res, sandbox.Options{
		OnState: func(s sandbox.State) { fmt.Printf("  sandbox: %s\n", s) },
	}, logger)
	sess, err := session.New(session.Deps{
		Generator: orch,
		Runtime:   rt,
		Repo:      store.NewRepository(store.NewMemory()),
		SaveDir:   os.TempDir(),
		Log:       logger,
	})
	if err != nil {
		log.Fatalf("Failed to create session: %v", err)
	}
	defer sess.Close()

	rec, err := sess.Generate(ctx, models.GenerationRequest{Description: theme, Genre: models.GenreArcade})
	if err != nil {
		log.Fatalf("Generation failed: %s (%v)", engine.UserMessage(err), err)
	}
	fmt.Printf("Title: %s\n", rec.Title())
	for _, c := range rec.Artifact.Controls {
		fmt.Printf("Control: %s %s %s\n", c.Icon, c.Label, c.Key)
	}
	cur, _ := sess.Current()
	fmt.Printf("Document complete: %v (%d bytes)\n\n", response.Complete(cur.Artifact.Document), len(cur.Artifact.Document))

	// 2. Inspect the configuration
	fmt.Println("--- Step 2: Config ---")
	entries := sess.Entries()
	if len(entries) == 0 {
		fmt.Println("No tunable values found.")
	}
	for _, e := range entries {
		fmt.Printf("%-16s %-9s %-8s %s\n", e.Key, e.Widget, e.Group, e.Display())
	}
	fmt.Println()

	// 3. Edit repeatedly
	fmt.Println("--- Step 3: Editing ---")
	for i := 1; i <= editRounds; i++ {
		e, ok := firstOf(entries, gameconfig.WidgetNumber, gameconfig.WidgetSlider)
		if !ok {
			break
		}
		input := fmt.Sprint(i)
		if e.Widget == gameconfig.WidgetSlider {
			input = fmt.Sprintf("%d%%", i*10)
		}
		if err := sess.SetValue(e.Key, input); err != nil {
			fmt.Printf("Edit %d rejected: %v\n", i, err)
		}
	}
	fmt.Printf("Live resources after %d edits: %d\n\n", editRounds, res.Live())

	// 4. Reset
	fmt.Println("--- Step 4: Reset ---")
	if err := sess.Reset(ctx); err != nil {
		fmt.Printf("Reset failed: %v\n", err)
	}
	time.Sleep(sandbox.DefaultLoadTimeout + 100*time.Millisecond)
	fmt.Printf("State: %s, live resources: %d\n", rt.State(), res.Live())
}

func firstOf(entries []gameconfig.Entry, widgets ...gameconfig.Widget) (gameconfig.Entry, bool) {
	for _, w := range widgets {
		for _, e := range entries {
			if e.Widget == w {
				return e, true
			}
		}
	}
	return gameconfig.Entry{}, false
}

// askTheme has a second model play the player and pick a game idea.
func askTheme(ctx context.Context, cfg *config.Config) string {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create player client: %v", err)
	}
	defer client.Close()
	playerModel := client.GenerativeModel(engine.DefaultGeminiModel)

	themePrompt := "You want to play a small browser game. Describe the game you want in one sentence (e.g. 'snake on a neon grid', 'breakout with lasers'). Return ONLY the description."
	resp, err := playerModel.GenerateContent(ctx, genai.Text(themePrompt))
	if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "asteroid dodger in orbit"
	}
	return strings.TrimSpace(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]))
}

package tui

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/tatianab/game-forge/internal/gameconfig"
	"github.com/tatianab/game-forge/internal/models"
	"github.com/tatianab/game-forge/internal/sandbox"
	"github.com/tatianab/game-forge/internal/session"
	"github.com/tatianab/game-forge/internal/store"
)

type stubGenerator struct{}

func (stubGenerator) Generate(ctx context.Context, req models.GenerationRequest) (*models.GameArtifact, error) {
	return &models.GameArtifact{
		Document: `<!DOCTYPE html><html><body><script>const GAME_CONFIG = { masterVolume: 0.4, speed: 2 };</script></body></html>`,
		Controls: []models.ControlDescriptor{{Icon: models.IconActionKey, Label: "Jump", Key: "Space"}},
	}, nil
}

func newTestModel(t *testing.T) model {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	rt := sandbox.New(nil, nil, sandbox.Options{LoadTimeout: time.Minute}, log)
	sess, err := session.New(session.Deps{
		Generator: stubGenerator{},
		Runtime:   rt,
		Repo:      store.NewRepository(store.NewMemory()),
		SaveDir:   t.TempDir(),
		Log:       log,
	})
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	t.Cleanup(sess.Close)

	m := NewModel(sess, "http://127.0.0.1:8765/")
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(model)
}

func TestPlayFlow(t *testing.T) {
	m := newTestModel(t)
	m.textInput.SetValue("a platformer with a frog")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	if m.state != stateLoading || cmd == nil {
		t.Fatalf("state = %v after submit", m.state)
	}

	rec, err := m.session.Generate(context.Background(), models.GenerationRequest{Description: "a platformer with a frog"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	next, _ = m.Update(gameGeneratedMsg{rec})
	m = next.(model)
	if m.state != statePlaying || len(m.entries) != 2 {
		t.Fatalf("state = %v entries = %+v", m.state, m.entries)
	}
	if m.session.PromptDraft() != "a platformer with a frog" {
		t.Error("prompt draft not saved on submit")
	}

	next, _ = m.runCommand("/set masterVolume 90%")
	m = next.(model)
	if v, _ := m.session.Config().Get("masterVolume"); v != 0.9 {
		t.Errorf("masterVolume = %v after /set", v)
	}
	if !strings.Contains(m.renderPanel(), "90%") {
		t.Error("panel does not show the new slider value")
	}

	next, _ = m.runCommand("/rate 3")
	m = next.(model)
	if m.current.Rating != 3 {
		t.Errorf("rating = %d", m.current.Rating)
	}

	next, _ = m.runCommand("/bogus")
	m = next.(model)
	if !strings.Contains(m.gameLog, "Unknown command /bogus") {
		t.Error("unknown command not reported")
	}
}

func TestGenreCycles(t *testing.T) {
	m := newTestModel(t)
	for range models.Genres {
		next, _ := m.Update(tea.KeyMsg{Type: tea.KeyTab})
		m = next.(model)
	}
	if m.genre != 0 {
		t.Errorf("genre index = %d after a full cycle", m.genre)
	}
}

func TestRenderEntry(t *testing.T) {
	tests := []struct {
		entry gameconfig.Entry
		want  string
	}{
		{gameconfig.Entry{Key: "masterVolume", Value: 0.73, Widget: gameconfig.WidgetSlider}, "masterVolume: ███████░░░ 73%"},
		{gameconfig.Entry{Key: "engineGain", Value: 2.0, Widget: gameconfig.WidgetSlider}, "engineGain: ██████████ 200%"},
		{gameconfig.Entry{Key: "musicVolume", Value: 100.0, Widget: gameconfig.WidgetSlider}, "musicVolume: ██████████ 10000%"},
		{gameconfig.Entry{Key: "sfxVolume", Value: -0.5, Widget: gameconfig.WidgetSlider}, "sfxVolume: ░░░░░░░░░░ -50%"},
		{gameconfig.Entry{Key: "muted", Value: false, Widget: gameconfig.WidgetToggle}, "muted: off"},
		{gameconfig.Entry{Key: "speed", Value: 3.5, Widget: gameconfig.WidgetNumber}, "speed: 3.5"},
	}
	for _, tt := range tests {
		if got := renderEntry(tt.entry); got != tt.want {
			t.Errorf("renderEntry(%s) = %q, want %q", tt.entry.Key, got, tt.want)
		}
	}
}

func TestStars(t *testing.T) {
	if got := stars(2); got != "★★☆☆☆" {
		t.Errorf("stars(2) = %q", got)
	}
	if got := stars(9); got != "★★★★★" {
		t.Errorf("stars(9) = %q", got)
	}
}

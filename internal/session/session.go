// Package session holds the state of one user session: the active game, its
// edits, and the persisted history. Components reach each other through a
// Session rather than shared globals.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tatianab/game-forge/internal/gameconfig"
	"github.com/tatianab/game-forge/internal/models"
	"github.com/tatianab/game-forge/internal/response"
	"github.com/tatianab/game-forge/internal/sandbox"
	"github.com/tatianab/game-forge/internal/store"
)

var (
	ErrNoGame        = errors.New("no game is loaded")
	ErrUnknownKey    = errors.New("unknown config key")
	ErrInvalidRating = fmt.Errorf("rating must be between 0 and %d", models.MaxRating)
	ErrNotInHistory  = errors.New("game not found in history")
)

// Generator produces artifacts; *engine.Orchestrator satisfies it.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GameArtifact, error)
}

type Deps struct {
	Generator Generator
	Editor    *gameconfig.Editor
	Runtime   *sandbox.Runtime
	Repo      *store.Repository
	SaveDir   string
	Log       logrus.FieldLogger
	Now       func() time.Time
}

type Session struct {
	gen     Generator
	editor  *gameconfig.Editor
	runtime *sandbox.Runtime
	repo    *store.Repository
	saveDir string
	log     logrus.FieldLogger
	now     func() time.Time

	mu      sync.Mutex
	current *models.HistoryRecord // Artifact.Document holds applied edits
	history []models.HistoryRecord
}

// New restores the persisted history and returns an idle session.
func New(d Deps) (*Session, error) {
	if d.Generator == nil || d.Runtime == nil || d.Repo == nil || d.Log == nil {
		return nil, errors.New("session: generator, runtime, repository and logger are required")
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.SaveDir == "" {
		d.SaveDir = models.DefaultSaveDir
	}
	if d.Editor == nil {
		d.Editor = gameconfig.NewEditor(d.Log)
	}

	history, err := d.Repo.History()
	if err != nil {
		// unreadable history starts empty
		d.Log.WithError(err).Warn("Discarding unreadable history")
		history = nil
	}

	return &Session{
		gen:     d.Generator,
		editor:  d.Editor,
		runtime: d.Runtime,
		repo:    d.Repo,
		saveDir: d.SaveDir,
		log:     d.Log,
		now:     d.Now,
		history: history,
	}, nil
}

// Generate runs a generation and makes the result the active game.
func (s *Session) Generate(ctx context.Context, req models.GenerationRequest) (models.HistoryRecord, error) {
	art, err := s.gen.Generate(ctx, req)
	if err != nil {
		return models.HistoryRecord{}, err
	}

	rec := models.HistoryRecord{
		ID:        uuid.NewString(),
		CreatedAt: s.now(),
		Request:   req.Normalized(),
		Artifact:  *art,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	history, err := s.repo.AddHistory(rec)
	if err != nil {
		s.log.WithError(err).Error("Failed to persist history")
		history = prepend(s.history, rec)
	}
	s.history = history
	s.activateLocked(rec)
	return rec, nil
}

func prepend(recs []models.HistoryRecord, rec models.HistoryRecord) []models.HistoryRecord {
	out := []models.HistoryRecord{rec}
	for _, r := range recs {
		if r.ID != rec.ID {
			out = append(out, r)
		}
	}
	if len(out) > store.MaxHistory {
		out = out[:store.MaxHistory]
	}
	return out
}

// activateLocked makes rec the active game and hands its document to the
// runtime. Documents that reach the runtime are always complete.
func (s *Session) activateLocked(rec models.HistoryRecord) {
	if !response.Complete(rec.Artifact.Document) {
		rec.Artifact.Document = response.Repair(rec.Artifact.Document)
	}
	rec.Artifact.Controls = slices.Clone(rec.Artifact.Controls)
	s.current = &rec
	s.runtime.Load(rec.Artifact.Document)
	s.log.WithField("id", rec.ID).Info("Activated game")
}

// Current returns a copy of the active record.
func (s *Session) Current() (models.HistoryRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return models.HistoryRecord{}, false
	}
	return *s.current, true
}

// Config extracts the configuration of the active document; nil when there
// is none.
func (s *Session) Config() *gameconfig.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.editor.Extract(s.current.Artifact.Document)
}

func (s *Session) Entries() []gameconfig.Entry {
	return gameconfig.Entries(s.Config())
}

// ApplyEdits merges edits into the active configuration and reloads the
// game. It reports whether the document changed; a failed substitution
// leaves the running game untouched.
func (s *Session) ApplyEdits(edits map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return false, ErrNoGame
	}
	doc := s.current.Artifact.Document
	edited := s.editor.ApplyEdits(doc, edits)
	if edited == doc {
		return false, nil
	}
	s.current.Artifact.Document = edited
	s.runtime.Load(edited)
	return true, nil
}

// SetValue parses text for the widget of key and applies it.
func (s *Session) SetValue(key, text string) error {
	var entry *gameconfig.Entry
	for _, e := range s.Entries() {
		if e.Key == key {
			entry = &e
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	v, err := gameconfig.ParseInput(*entry, text)
	if err != nil {
		return err
	}
	_, err = s.ApplyEdits(map[string]any{key: v})
	return err
}

// Reset restarts the active game.
func (s *Session) Reset(ctx context.Context) error {
	if _, ok := s.Current(); !ok {
		return ErrNoGame
	}
	s.runtime.Reset(ctx)
	return nil
}

// SaveState stores the edited document of the active game.
func (s *Session) SaveState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoGame
	}
	return s.repo.SaveState(s.current.ID, s.current.Artifact.Document)
}

// LoadState restores the saved document of the active game.
func (s *Session) LoadState() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoGame
	}
	doc, err := s.repo.LoadState(s.current.ID)
	if err != nil {
		return err
	}
	rec := *s.current
	rec.Artifact.Document = doc
	s.activateLocked(rec)
	return nil
}

// Rate sets the rating of the active game, 0 clearing it.
func (s *Session) Rate(rating int) error {
	if rating < 0 || rating > models.MaxRating {
		return ErrInvalidRating
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ErrNoGame
	}
	s.current.Rating = rating
	for i := range s.history {
		if s.history[i].ID == s.current.ID {
			s.history[i].Rating = rating
		}
	}
	return s.repo.SaveHistory(s.history)
}

// History returns the records, newest first.
func (s *Session) History() []models.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.history)
}

// Select makes the history record id the active game.
func (s *Session) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotInHistory
	}
	s.activateLocked(s.history[i])
	return nil
}

// Delete removes the record id and its saved state. Deleting the active
// game tears down the runtime.
func (s *Session) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return ErrNotInHistory
	}
	history := slices.Delete(slices.Clone(s.history), i, i+1)
	if err := s.repo.SaveHistory(history); err != nil {
		return err
	}
	if err := s.repo.DeleteState(id); err != nil {
		s.log.WithError(err).WithField("id", id).Warn("Failed to delete saved state")
	}
	s.history = history
	if s.current != nil && s.current.ID == id {
		s.current = nil
		s.runtime.Close()
	}
	return nil
}

func (s *Session) indexLocked(id string) int {
	return slices.IndexFunc(s.history, func(r models.HistoryRecord) bool { return r.ID == id })
}

// Download exports the active game, edits included, to the save directory
// and returns the bundle name.
func (s *Session) Download() (string, error) {
	rec, ok := s.Current()
	if !ok {
		return "", ErrNoGame
	}
	name, err := models.Export(s.saveDir, rec)
	if err != nil {
		return "", fmt.Errorf("export: %w", err)
	}
	s.log.WithField("name", name).Info("Exported game")
	return name, nil
}

// Open imports an exported bundle and makes it the active game.
func (s *Session) Open(name string) (models.HistoryRecord, error) {
	rec, err := models.Import(s.saveDir, name)
	if err != nil {
		return models.HistoryRecord{}, fmt.Errorf("import %s: %w", name, err)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	history, err := s.repo.AddHistory(*rec)
	if err != nil {
		return models.HistoryRecord{}, err
	}
	s.history = history
	s.activateLocked(*rec)
	return *rec, nil
}

// Exports lists bundles in the save directory.
func (s *Session) Exports() ([]string, error) {
	return models.ListExports(s.saveDir)
}

// Share returns a data URL carrying the active document.
func (s *Session) Share() (string, error) {
	rec, ok := s.Current()
	if !ok {
		return "", ErrNoGame
	}
	return models.ShareURL(rec.Artifact.Document), nil
}

func (s *Session) PromptDraft() string {
	draft, err := s.repo.PromptDraft()
	if err != nil {
		s.log.WithError(err).Warn("Failed to read prompt draft")
	}
	return draft
}

func (s *Session) SaveDraft(text string) {
	if err := s.repo.SavePromptDraft(text); err != nil {
		s.log.WithError(err).Warn("Failed to save prompt draft")
	}
}

// Close tears down the runtime.
func (s *Session) Close() {
	s.runtime.Close()
}

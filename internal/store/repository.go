package store

import (
	"fmt"

	"github.com/tatianab/game-forge/internal/models"
	"gopkg.in/yaml.v3"
)

const (
	promptKey      = "gameforge.prompt"
	historyKey     = "gameforge.history"
	savedKeyPrefix = "gameforge.saved."
)

// MaxHistory is how many records the history list keeps.
const MaxHistory = 50

// Repository reads and writes the three namespaces the app persists: the
// autosaved prompt draft, the history list and per-record saved documents.
type Repository struct {
	kv KV
}

func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// PromptDraft returns the autosaved prompt, or "" if none.
func (r *Repository) PromptDraft() (string, error) {
	v, _, err := r.kv.Get(promptKey)
	return v, err
}

func (r *Repository) SavePromptDraft(text string) error {
	return r.kv.Set(promptKey, text)
}

// History returns the stored records, newest first.
func (r *Repository) History() ([]models.HistoryRecord, error) {
	v, ok, err := r.kv.Get(historyKey)
	if err != nil || !ok {
		return nil, err
	}
	var recs []models.HistoryRecord
	if err := yaml.Unmarshal([]byte(v), &recs); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return recs, nil
}

// SaveHistory replaces the stored list, keeping the first MaxHistory
// records. Saved documents of dropped records are deleted.
func (r *Repository) SaveHistory(recs []models.HistoryRecord) error {
	if len(recs) > MaxHistory {
		for _, dropped := range recs[MaxHistory:] {
			if err := r.DeleteState(dropped.ID); err != nil {
				return err
			}
		}
		recs = recs[:MaxHistory]
	}
	data, err := yaml.Marshal(recs)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return r.kv.Set(historyKey, string(data))
}

// AddHistory puts rec at the front of the list, replacing any record with
// the same ID, and returns the stored list.
func (r *Repository) AddHistory(rec models.HistoryRecord) ([]models.HistoryRecord, error) {
	recs, err := r.History()
	if err != nil {
		return nil, err
	}
	out := []models.HistoryRecord{rec}
	for _, existing := range recs {
		if existing.ID != rec.ID {
			out = append(out, existing)
		}
	}
	if err := r.SaveHistory(out); err != nil {
		return nil, err
	}
	if len(out) > MaxHistory {
		out = out[:MaxHistory]
	}
	return out, nil
}

// SaveState stores the edited document of record id.
func (r *Repository) SaveState(id, doc string) error {
	return r.kv.Set(savedKeyPrefix+id, doc)
}

// LoadState returns the saved document of record id, or ErrNotFound.
func (r *Repository) LoadState(id string) (string, error) {
	v, ok, err := r.kv.Get(savedKeyPrefix + id)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (r *Repository) DeleteState(id string) error {
	return r.kv.Delete(savedKeyPrefix + id)
}

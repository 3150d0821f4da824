package models

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Genre is the category tag attached to a generation request.
type Genre string

const (
	GenreArcade     Genre = "arcade"
	GenrePlatformer Genre = "platformer"
	GenrePuzzle     Genre = "puzzle"
	GenreShooter    Genre = "shooter"
	GenreRacing     Genre = "racing"
	GenreSports     Genre = "sports"
	GenreStrategy   Genre = "strategy"
	GenreOther      Genre = "other"
)

// Genres lists the selectable genres in display order.
var Genres = []Genre{
	GenreArcade,
	GenrePlatformer,
	GenrePuzzle,
	GenreShooter,
	GenreRacing,
	GenreSports,
	GenreStrategy,
	GenreOther,
}

var titleCaser = cases.Title(language.English)

// Title returns the human readable genre name.
func (g Genre) Title() string {
	return titleCaser.String(string(g))
}

// Valid reports whether g is one of the known genres.
func (g Genre) Valid() bool {
	for _, known := range Genres {
		if g == known {
			return true
		}
	}
	return false
}

// GenerationRequest is what the user submits to generate a game.
type GenerationRequest struct {
	Description string `yaml:"description" json:"description"`
	Genre       Genre  `yaml:"genre" json:"genre"`
}

// Normalized trims the description and defaults an unknown genre.
func (r GenerationRequest) Normalized() GenerationRequest {
	r.Description = strings.TrimSpace(r.Description)
	if !r.Genre.Valid() {
		r.Genre = GenreOther
	}
	return r
}

// TerminationReason reports why the generator stopped producing text.
type TerminationReason string

const (
	TerminationCompleted     TerminationReason = "completed"
	TerminationSafetyBlocked TerminationReason = "safetyBlocked"
	TerminationOther         TerminationReason = "other"
)

// RawModelOutput is a single generator response before parsing.
type RawModelOutput struct {
	Text        string
	Termination TerminationReason
}

// IconClass identifies the glyph used to present a control.
type IconClass string

const (
	IconDirectionalPad  IconClass = "directional-pad"
	IconDirectionalKeys IconClass = "directional-keys"
	IconPointerMove     IconClass = "pointer-move"
	IconPointerClick    IconClass = "pointer-click"
	IconActionKey       IconClass = "action-key"
	IconOther           IconClass = "other"
)

// ControlDescriptor describes one input binding of a generated game.
type ControlDescriptor struct {
	Icon  IconClass `yaml:"icon" json:"icon"`
	Label string    `yaml:"label" json:"label"`
	Key   string    `yaml:"key,omitempty" json:"key,omitempty"` // set when Icon is IconOther
}

// DefaultControl is used whenever a game arrives without usable controls.
var DefaultControl = ControlDescriptor{
	Icon:  IconOther,
	Label: "Play with keyboard and mouse",
	Key:   "Any",
}

// GameArtifact is a playable document plus its controls. Document is the
// authoritative source; configuration is always re-derived from it.
type GameArtifact struct {
	Document string              `yaml:"document" json:"document"`
	Controls []ControlDescriptor `yaml:"controls" json:"controls"`
}

// HistoryRecord is one successful generation kept in the history list.
type HistoryRecord struct {
	ID        string            `yaml:"id"`
	CreatedAt time.Time         `yaml:"created_at"`
	Request   GenerationRequest `yaml:"request"`
	Artifact  GameArtifact      `yaml:"artifact"`
	Rating    int               `yaml:"rating"` // 0-5
}

// MaxRating is the highest rating a user can give.
const MaxRating = 5

// Title returns a short label for the record, derived from the prompt.
func (h HistoryRecord) Title() string {
	desc := []rune(strings.TrimSpace(h.Request.Description))
	if len(desc) > 48 {
		return strings.TrimSpace(string(desc[:48])) + "…"
	}
	return string(desc)
}

// ParseIconClass maps an icon name emitted by the generator onto a known
// IconClass. Unknown names map to IconOther.
func ParseIconClass(name string) IconClass {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "directional-pad", "dpad", "d-pad", "joystick", "gamepad":
		return IconDirectionalPad
	case "directional-keys", "arrows", "arrow-keys", "wasd", "keys":
		return IconDirectionalKeys
	case "pointer-move", "mouse", "mouse-move", "pointer":
		return IconPointerMove
	case "pointer-click", "click", "mouse-click", "tap", "touch":
		return IconPointerClick
	case "action-key", "space", "spacebar", "key", "action":
		return IconActionKey
	default:
		return IconOther
	}
}

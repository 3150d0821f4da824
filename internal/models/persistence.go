package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultSaveDir is where exported games are written when no directory is configured.
const DefaultSaveDir = ".saves"

const (
	exportMetaFile = "game.yaml"
	exportHTMLFile = "game.html"
)

// ErrInvalidExportName means an import name is not a single entry of the save dir.
var ErrInvalidExportName = errors.New("invalid export name")

// exportMeta is the on-disk metadata of an exported game. The document is
// stored next to it as plain HTML so it can be opened directly.
type exportMeta struct {
	ID       string              `yaml:"id"`
	Request  GenerationRequest   `yaml:"request"`
	Controls []ControlDescriptor `yaml:"controls"`
	Rating   int                 `yaml:"rating"`
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slug derives a file-system friendly name from a record.
func Slug(rec HistoryRecord) string {
	base := slugInvalid.ReplaceAllString(strings.ToLower(rec.Title()), "-")
	base = strings.Trim(base, "-")
	if len(base) > 40 {
		base = strings.Trim(base[:40], "-")
	}
	if base == "" {
		base = "game"
	}
	if len(rec.ID) >= 8 {
		base += "-" + rec.ID[:8]
	}
	return base
}

// Export writes the record into dir/<slug> and returns the bundle name.
func Export(dir string, rec HistoryRecord) (string, error) {
	name := Slug(rec)
	target := filepath.Join(dir, name)
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", err
	}

	metaData, err := yaml.Marshal(exportMeta{
		ID:       rec.ID,
		Request:  rec.Request,
		Controls: rec.Artifact.Controls,
		Rating:   rec.Rating,
	})
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(target, exportMetaFile), metaData, 0644); err != nil {
		return "", err
	}

	if err := os.WriteFile(filepath.Join(target, exportHTMLFile), []byte(rec.Artifact.Document), 0644); err != nil {
		return "", err
	}

	return name, nil
}

// Import reads an exported bundle back into a history record.
func Import(dir, name string) (*HistoryRecord, error) {
	if name == "" || name == "." || name != filepath.Base(name) || !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidExportName, name)
	}
	target := filepath.Join(dir, name)

	metaData, err := os.ReadFile(filepath.Join(target, exportMetaFile))
	if err != nil {
		return nil, err
	}
	var meta exportMeta
	if err := yaml.Unmarshal(metaData, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", exportMetaFile, err)
	}

	doc, err := os.ReadFile(filepath.Join(target, exportHTMLFile))
	if err != nil {
		return nil, err
	}

	controls := meta.Controls
	if len(controls) == 0 {
		controls = []ControlDescriptor{DefaultControl}
	}

	return &HistoryRecord{
		ID:      meta.ID,
		Request: meta.Request,
		Artifact: GameArtifact{
			Document: string(doc),
			Controls: controls,
		},
		Rating: meta.Rating,
	}, nil
}

// ListExports returns the names of all bundles under dir.
func ListExports(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []string{}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			// game.yaml marks a complete bundle
			metaPath := filepath.Join(dir, entry.Name(), exportMetaFile)
			if _, err := os.Stat(metaPath); err == nil {
				names = append(names, entry.Name())
			}
		}
	}
	return names, nil
}

// ShareURL packs a document into a self-contained data URL.
func ShareURL(doc string) string {
	return "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(doc))
}

package caseapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Artifact is one history output produced by a run phase. The suffix
// distinguishes which phase wrote it; the checksum supports bit-for-bit
// comparison and the parsed fields support tolerance comparison.
type Artifact struct {
	Name     string
	Suffix   string
	Path     string
	Checksum string
	Fields   map[string]float64
}

// HistoryFileName builds the canonical name of a history artifact.
func HistoryFileName(caseID ID, index int, suffix string) string {
	return fmt.Sprintf("%s.hist.%04d.%s", caseID, index, suffix)
}

// RestartFileName builds the canonical name of a restart artifact written at
// the named simulated date.
func RestartFileName(caseID ID, date string) string {
	return fmt.Sprintf("%s.restart.%s", caseID, date)
}

// WriteArtifact writes a history artifact into the case run directory. The
// stored form is a YAML field map so both checksum and per-field comparison
// work against the same bytes.
func (c *Case) WriteArtifact(index int, suffix string, fields map[string]float64) (Artifact, error) {
	name := HistoryFileName(c.ID, index, suffix)
	path := filepath.Join(c.RunDir(), name)
	data, err := yaml.Marshal(fields)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to marshal artifact %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return Artifact{}, fmt.Errorf("failed to write artifact %s: %w", name, err)
	}
	return loadArtifact(path, suffix)
}

// ListArtifacts returns the case's history artifacts carrying suffix, sorted
// by name. Each artifact comes back with its checksum and parsed fields.
func (c *Case) ListArtifacts(suffix string) ([]Artifact, error) {
	entries, err := os.ReadDir(c.RunDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read run directory for %s: %w", c.ID, err)
	}

	var artifacts []Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.Contains(name, ".hist.") || !strings.HasSuffix(name, "."+suffix) {
			continue
		}
		art, err := loadArtifact(filepath.Join(c.RunDir(), name), suffix)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, art)
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

func loadArtifact(path, suffix string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	sum := sha256.Sum256(data)

	fields := map[string]float64{}
	// Field parsing is best-effort: an opaque artifact still supports
	// checksum comparison.
	_ = yaml.Unmarshal(data, &fields)

	return Artifact{
		Name:     filepath.Base(path),
		Suffix:   suffix,
		Path:     path,
		Checksum: hex.EncodeToString(sum[:]),
		Fields:   fields,
	}, nil
}

// SortedFieldNames returns the artifact's field names in a stable order.
func (a Artifact) SortedFieldNames() []string {
	names := make([]string, 0, len(a.Fields))
	for name := range a.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

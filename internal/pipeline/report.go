package pipeline

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StageTransfer = "transfer"
	StageClassify = "classify"
	StagePlace    = "place"
	StagePatch    = "patch"
	StageDone     = "done"
)

// Outcome is one file's per-run record; Stage names the furthest stage
// reached, and Error is empty on full success.
type Outcome struct {
	Name        string `yaml:"name"`
	Stage       string `yaml:"stage"`
	Renamed     string `yaml:"renamed,omitempty"`
	Destination string `yaml:"destination,omitempty"`
	Error       string `yaml:"error,omitempty"`
}

// Report is the full run tally, optionally written out as YAML.
type Report struct {
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
	Succeeded  int       `yaml:"succeeded"`
	Failed     int       `yaml:"failed"`
	Files      []Outcome `yaml:"files"`
}

// Write serializes the report to path.
func (r *Report) Write(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("error serializing report: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// TallyRows renders the report as rows for the console table.
func (r *Report) TallyRows() [][]string {
	var rows [][]string
	for _, outcome := range r.Files {
		result := "ok"
		if outcome.Error != "" {
			result = outcome.Error
		} else if outcome.Renamed != "" && outcome.Renamed != outcome.Name {
			result = "→ " + outcome.Renamed
		}
		rows = append(rows, []string{outcome.Name, outcome.Stage, result})
	}
	return rows
}

package config

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// SeriesRule maps a file-name token to a library folder and season. Rules
// are checked in file order; the first containing match wins.
type SeriesRule struct {
	Match  string
	Folder string
	Season int
}

// LoadSeries reads serieslist.megumi from dir. Lines are
// match|folder|season; lines without a separator are skipped.
func LoadSeries(dir string) ([]SeriesRule, error) {
	path := filepath.Join(dir, SeriesFileName)
	content, err := DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading series list %s: %w", path, err)
	}
	var rules []SeriesRule
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "|") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 3 {
			return nil, fmt.Errorf("series list line %d: expected match|folder|season, got %q", i+1, line)
		}
		season, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil || season < 1 {
			return nil, fmt.Errorf("series list line %d: invalid season number %q", i+1, fields[2])
		}
		rules = append(rules, SeriesRule{
			Match:  strings.TrimSpace(fields[0]),
			Folder: strings.TrimSpace(fields[1]),
			Season: season,
		})
	}
	return rules, nil
}

// LoadGroups reads groups.megumi from dir, one tag token per line.
func LoadGroups(dir string) ([]string, error) {
	path := filepath.Join(dir, GroupsFileName)
	content, err := DecodeFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading groups file %s: %w", path, err)
	}
	var groups []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			groups = append(groups, line)
		}
	}
	return groups, nil
}

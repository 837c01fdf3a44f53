package subtitle

import (
	"fmt"
	"strings"

	"github.com/tanq16/megumi/internal/config"
)

// RulesetFileName is the per-destination-directory replacement list.
const RulesetFileName = "replace.txt"

// Rule is one ordered old|new replacement pair.
type Rule struct {
	Old string
	New string
}

// RulesetError reports the first malformed line of a replacement list.
type RulesetError struct {
	Line int
	Text string
}

func (e *RulesetError) Error() string {
	return fmt.Sprintf("invalid ruleset line %d: %q must be old|new with both fields non-empty", e.Line, e.Text)
}

// ParseRuleset validates and parses replacement rules. Every non-empty
// line must split into exactly two non-empty fields on a single separator;
// any violation rejects the whole ruleset.
func ParseRuleset(content string) ([]Rule, error) {
	var rules []Rule
	for i, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		fields := strings.Split(trimmed, "|")
		if len(fields) != 2 || fields[0] == "" || fields[1] == "" {
			return nil, &RulesetError{Line: i + 1, Text: trimmed}
		}
		rules = append(rules, Rule{Old: fields[0], New: fields[1]})
	}
	return rules, nil
}

// LoadRuleset reads and parses the ruleset file at path using the standard
// encoding fallback.
func LoadRuleset(path string) ([]Rule, error) {
	content, err := config.DecodeFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRuleset(content)
}

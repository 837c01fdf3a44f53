package subtitle

import (
	"regexp"
	"strings"
)

// stutterReplacements normalizes letter-doubling stutters so the repeated
// letter keeps its capitalization ("Wh-what" styles become "W-What"
// styles). Entries are exact-case pure substitutions applied in one pass;
// the final two keep ASS override tags spaced off the following word.
var stutterReplacements = [][2]string{
	{"Wh-wh", "W-Wh"}, {"Wh-Wh", "W-Wh"}, {"Th-th", "T-Th"}, {"Th-Th", "T-Th"},
	{"A-a", "A-A"}, {"B-b", "B-B"}, {"C-c", "C-C"}, {"D-d", "D-D"}, {"E-e", "E-E"},
	{"F-f", "F-F"}, {"G-g", "G-G"}, {"H-h", "H-H"}, {"I-i", "I-I"}, {"J-j", "J-J"},
	{"K-k", "K-K"}, {"L-l", "L-L"}, {"M-m", "M-M"}, {"N-n", "N-N"}, {"O-o", "O-O"},
	{"P-p", "P-P"}, {"Q-q", "Q-Q"}, {"R-r", "R-R"}, {"S-s", "S-S"}, {"T-t", "T-T"},
	{"U-u", "U-U"}, {"W-w", "W-W"}, {"Y-y", "Y-Y"}, {"Z-z", "Z-Z"},
	{`\N`, `\N `}, {`\h`, `\h `},
}

// ApplyStutterFixes runs the built-in normalization table over text.
func ApplyStutterFixes(text string) string {
	for _, pair := range stutterReplacements {
		text = strings.ReplaceAll(text, pair[0], pair[1])
	}
	return text
}

// ApplyRules applies the ruleset's ordered pairs with whole-token matching
// so partial words are never rewritten. A matched token immediately
// followed by a possessive marker keeps the marker: with rule Mike|Michael,
// "Mike's" becomes "Michael's" because the marker sits outside the token
// boundary.
func ApplyRules(text string, rules []Rule) string {
	for _, rule := range rules {
		pattern := regexp.MustCompile(`\b` + regexp.QuoteMeta(rule.Old) + `\b`)
		text = pattern.ReplaceAllLiteralString(text, rule.New)
	}
	return text
}

// Transform is the full subtitle text pass: built-in stutter fixes first,
// then the destination's custom rules in order.
func Transform(text string, rules []Rule) string {
	return ApplyRules(ApplyStutterFixes(text), rules)
}

package classify

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tanq16/megumi/internal/config"
)

var (
	ErrNoRuleMatch     = errors.New("no series rule matches file name")
	ErrNoEpisodeNumber = errors.New("no episode number found in file name")
)

// episodePattern recognizes a two-digit episode token preceded by
// whitespace and followed by a parenthesized or bracketed annotation and
// eventually an extension, or a two-digit token directly followed by the
// extension. Groups 1/5 carry the episode, 4/6 the extension.
var episodePattern = regexp.MustCompile(`\s(\d{2})(\s(\(.*?\)|\[.*?\])).*(\..*)|\s(\d{2})(\..*)`)

// Outcome is the result of classifying one staged file name.
type Outcome struct {
	Matched bool
	Rule    config.SeriesRule
	Episode string
	Ext     string
	NewName string
	Err     error
}

// Classify scans rules in table order; the first rule whose match token is
// contained in fileName wins. When rename is enabled the destination name
// becomes S<season>E<episode><ext>, otherwise the original name is kept.
func Classify(fileName string, rules []config.SeriesRule, rename bool) Outcome {
	for _, rule := range rules {
		if !containsToken(fileName, rule.Match) {
			continue
		}
		episode, ext, ok := extractEpisode(fileName)
		if !ok {
			return Outcome{Matched: true, Rule: rule, Err: ErrNoEpisodeNumber}
		}
		newName := fileName
		if rename {
			newName = fmt.Sprintf("S%02dE%s%s", rule.Season, episode, ext)
		}
		return Outcome{
			Matched: true,
			Rule:    rule,
			Episode: episode,
			Ext:     ext,
			NewName: newName,
		}
	}
	return Outcome{Err: ErrNoRuleMatch}
}

func extractEpisode(fileName string) (episode, ext string, ok bool) {
	groups := episodePattern.FindStringSubmatch(fileName)
	if groups == nil {
		return "", "", false
	}
	if groups[1] != "" {
		return groups[1], groups[4], true
	}
	return groups[5], groups[6], true
}

func containsToken(fileName, token string) bool {
	return token != "" && strings.Contains(fileName, token)
}

package subtitle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tanq16/megumi/internal/tools"
)

func TestParseRuleset(t *testing.T) {
	rules, err := ParseRuleset("Senpai|Senior\nonii-chan|big brother\n\nMike|Michael\n")
	if err != nil {
		t.Fatalf("ParseRuleset: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("got %d rules, want 3", len(rules))
	}
	if rules[0] != (Rule{Old: "Senpai", New: "Senior"}) {
		t.Errorf("rule 0 = %+v", rules[0])
	}
}

func TestParseRulesetRejectsMalformed(t *testing.T) {
	tests := []struct {
		content string
		line    int
	}{
		{"no separator here", 1},
		{"a|b\nold|", 2},
		{"|new", 1},
		{"a|b|c", 1},
		{"ok|fine\n\nbad||worse", 3},
	}
	for _, tt := range tests {
		_, err := ParseRuleset(tt.content)
		var rerr *RulesetError
		if !errors.As(err, &rerr) {
			t.Errorf("%q: error = %v, want *RulesetError", tt.content, err)
			continue
		}
		if rerr.Line != tt.line {
			t.Errorf("%q: reported line %d, want %d", tt.content, rerr.Line, tt.line)
		}
	}
}

func TestApplyStutterFixes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Wh-what are you doing", "W-What are you doing"},
		{"Th-That's mine", "T-That's mine"},
		{"B-but why", "B-But why"},
		{"wh-whats this", "wh-whats this"}, // lowercase first letter untouched
		{`line one\Nline two`, `line one\N line two`},
	}
	for _, tt := range tests {
		if got := ApplyStutterFixes(tt.in); got != tt.want {
			t.Errorf("ApplyStutterFixes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApplyRulesWholeToken(t *testing.T) {
	rules := []Rule{{Old: "Mike", New: "Michael"}}
	tests := []struct {
		in   string
		want string
	}{
		{"Mike went home", "Michael went home"},
		{"Mike's bag", "Michael's bag"}, // possessive marker preserved
		{"Mikes went home", "Mikes went home"},
		{"I saw Mike.", "I saw Michael."},
		{"Mikey and Mike", "Mikey and Michael"},
	}
	for _, tt := range tests {
		if got := ApplyRules(tt.in, rules); got != tt.want {
			t.Errorf("ApplyRules(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTransformBuiltinThenCustom(t *testing.T) {
	// Built-in table is exact-case, so lowercase "wh-whats" passes through
	// it, and the custom rule only replaces whole tokens.
	rules := []Rule{{Old: "Wh-wh", New: "W-Wh"}}
	got := Transform("wh-whats going on, Wh-wh", rules)
	if !strings.Contains(got, "wh-whats") {
		t.Errorf("non-token occurrence rewritten: %q", got)
	}
	if !strings.HasSuffix(got, "W-Wh") {
		t.Errorf("token occurrence not rewritten: %q", got)
	}
}

// fakeRunner scripts tool behavior per invocation.
type fakeRunner struct {
	calls [][]string
	onRun func(name string, args []string) (tools.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (tools.Result, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.onRun != nil {
		return f.onRun(name, args)
	}
	return tools.Result{}, nil
}

func writeContainer(t *testing.T, destDir, name string) string {
	t.Helper()
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, []byte("original container"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPatchNoRulesetIsNoop(t *testing.T) {
	destDir := t.TempDir()
	filePath := writeContainer(t, destDir, "S01E01.mkv")
	runner := &fakeRunner{}
	p := &Pipeline{Runner: runner, ExtractorPath: "mkvextract", RemuxerPath: "mkvmerge"}
	if err := p.Patch(context.Background(), destDir, filePath); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("tools invoked without a ruleset: %v", runner.calls)
	}
}

func TestPatchInvalidRuleset(t *testing.T) {
	destDir := t.TempDir()
	filePath := writeContainer(t, destDir, "S01E01.mkv")
	if err := os.WriteFile(filepath.Join(destDir, RulesetFileName), []byte("bad line\n"), 0644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{}
	p := &Pipeline{Runner: runner, ExtractorPath: "mkvextract", RemuxerPath: "mkvmerge"}
	err := p.Patch(context.Background(), destDir, filePath)
	var perr *PatchError
	if !errors.As(err, &perr) || perr.Kind != KindInvalidRuleset {
		t.Fatalf("Patch error = %v, want InvalidRuleset", err)
	}
	if len(runner.calls) != 0 {
		t.Error("tools invoked despite invalid ruleset")
	}
	if data, _ := os.ReadFile(filePath); string(data) != "original container" {
		t.Error("container modified despite invalid ruleset")
	}
}

func TestPatchExtractFailure(t *testing.T) {
	destDir := t.TempDir()
	filePath := writeContainer(t, destDir, "S01E01.mkv")
	if err := os.WriteFile(filepath.Join(destDir, RulesetFileName), []byte("a|b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	runner := &fakeRunner{onRun: func(name string, args []string) (tools.Result, error) {
		return tools.Result{ExitCode: 2, Stderr: "track 2 not found"}, nil
	}}
	p := &Pipeline{Runner: runner, ExtractorPath: "mkvextract", RemuxerPath: "mkvmerge"}
	err := p.Patch(context.Background(), destDir, filePath)
	var perr *PatchError
	if !errors.As(err, &perr) || perr.Kind != KindExtractFailed {
		t.Fatalf("Patch error = %v, want ExtractFailed", err)
	}
	if !strings.Contains(perr.Error(), "track 2 not found") {
		t.Errorf("stderr not surfaced: %v", perr)
	}
	if data, _ := os.ReadFile(filePath); string(data) != "original container" {
		t.Error("container modified despite extract failure")
	}
}

func TestPatchRemuxFailureKeepsOriginal(t *testing.T) {
	destDir := t.TempDir()
	filePath := writeContainer(t, destDir, "S01E01.mkv")
	if err := os.WriteFile(filepath.Join(destDir, RulesetFileName), []byte("a|b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sidecar := filepath.Join(destDir, "S01E01.ass")
	runner := &fakeRunner{onRun: func(name string, args []string) (tools.Result, error) {
		if name == "mkvextract" {
			return tools.Result{}, os.WriteFile(sidecar, []byte("Dialogue: a line"), 0644)
		}
		return tools.Result{ExitCode: 1, Stderr: "muxing failed"}, nil
	}}
	p := &Pipeline{Runner: runner, ExtractorPath: "mkvextract", RemuxerPath: "mkvmerge"}
	err := p.Patch(context.Background(), destDir, filePath)
	var perr *PatchError
	if !errors.As(err, &perr) || perr.Kind != KindRemuxFailed {
		t.Fatalf("Patch error = %v, want RemuxFailed", err)
	}
	// The destination must never end with zero playable containers.
	if data, readErr := os.ReadFile(filePath); readErr != nil || string(data) != "original container" {
		t.Error("original container missing or modified after remux failure")
	}
	if _, statErr := os.Stat(sidecar); statErr != nil {
		t.Error("sidecar removed after remux failure")
	}
}

func TestPatchSuccess(t *testing.T) {
	destDir := t.TempDir()
	filePath := writeContainer(t, destDir, "S01E01.mkv")
	if err := os.WriteFile(filepath.Join(destDir, RulesetFileName), []byte("Senpai|Senior\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sidecar := filepath.Join(destDir, "S01E01.ass")
	var transformed string
	runner := &fakeRunner{onRun: func(name string, args []string) (tools.Result, error) {
		switch name {
		case "mkvextract":
			return tools.Result{}, os.WriteFile(sidecar, []byte("Th-that Senpai's line"), 0644)
		case "mkvmerge":
			data, err := os.ReadFile(sidecar)
			if err != nil {
				return tools.Result{}, err
			}
			transformed = string(data)
			// args[1] is the -o output path.
			return tools.Result{}, os.WriteFile(args[1], []byte("remuxed container"), 0644)
		}
		return tools.Result{}, fmt.Errorf("unexpected tool %s", name)
	}}
	p := &Pipeline{Runner: runner, ExtractorPath: "mkvextract", RemuxerPath: "mkvmerge"}
	if err := p.Patch(context.Background(), destDir, filePath); err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if transformed != "T-That Senior's line" {
		t.Errorf("transformed sidecar = %q, want stutter fix and token replacement with possessive kept", transformed)
	}
	if data, _ := os.ReadFile(filePath); string(data) != "remuxed container" {
		t.Error("original not replaced by remuxed output")
	}
	if _, err := os.Stat(sidecar); !os.IsNotExist(err) {
		t.Error("sidecar not removed after commit")
	}
	if _, err := os.Stat(filepath.Join(destDir, "S01E01_remuxed.mkv")); !os.IsNotExist(err) {
		t.Error("side-by-side remux output left behind")
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 tool invocations, got %v", runner.calls)
	}
	extract := runner.calls[0]
	if extract[0] != "mkvextract" || extract[2] != "tracks" || !strings.HasPrefix(extract[3], "2:") {
		t.Errorf("unexpected extractor invocation: %v", extract)
	}
	remux := runner.calls[1]
	joined := strings.Join(remux, " ")
	if !strings.Contains(joined, "--no-subtitles") || !strings.Contains(joined, "--track-name 0:MegumiFixed") {
		t.Errorf("unexpected remuxer invocation: %v", remux)
	}
}

func TestPatchEmptyRemuxOutput(t *testing.T) {
	destDir := t.TempDir()
	filePath := writeContainer(t, destDir, "S01E01.mkv")
	if err := os.WriteFile(filepath.Join(destDir, RulesetFileName), []byte("a|b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	sidecar := filepath.Join(destDir, "S01E01.ass")
	runner := &fakeRunner{onRun: func(name string, args []string) (tools.Result, error) {
		if name == "mkvextract" {
			return tools.Result{}, os.WriteFile(sidecar, []byte("line"), 0644)
		}
		// Remuxer "succeeds" but writes nothing.
		return tools.Result{}, os.WriteFile(args[1], nil, 0644)
	}}
	p := &Pipeline{Runner: runner, ExtractorPath: "mkvextract", RemuxerPath: "mkvmerge"}
	err := p.Patch(context.Background(), destDir, filePath)
	var perr *PatchError
	if !errors.As(err, &perr) || perr.Kind != KindRemuxFailed {
		t.Fatalf("Patch error = %v, want RemuxFailed for empty output", err)
	}
	if data, _ := os.ReadFile(filePath); string(data) != "original container" {
		t.Error("original lost despite empty remux output")
	}
}

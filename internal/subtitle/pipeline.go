package subtitle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tanq16/megumi/internal/tools"
	"github.com/tanq16/megumi/utils"
)

// subtitleTrack is the container track the extractor pulls the text
// subtitle from.
const subtitleTrack = 2

const remuxedSuffix = "_remuxed"

type PatchKind int

const (
	KindInvalidRuleset PatchKind = iota
	KindExtractFailed
	KindRemuxFailed
	KindCommitFailed
)

func (k PatchKind) String() string {
	switch k {
	case KindInvalidRuleset:
		return "invalid-ruleset"
	case KindExtractFailed:
		return "extract-failed"
	case KindRemuxFailed:
		return "remux-failed"
	case KindCommitFailed:
		return "commit-failed"
	}
	return "unknown"
}

// PatchError carries the failing stage and, for tool failures, the tool's
// stderr output.
type PatchError struct {
	Kind   PatchKind
	File   string
	Stderr string
	Err    error
}

func (e *PatchError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("subtitle patch of %s failed (%s): %v: %s", e.File, e.Kind, e.Err, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("subtitle patch of %s failed (%s): %v", e.File, e.Kind, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}

// Pipeline extracts a subtitle track, rewrites its text, and remuxes the
// container, replacing the original only on full success. Without a
// ruleset in the destination directory it is a no-op.
type Pipeline struct {
	Runner        tools.Runner
	ExtractorPath string
	RemuxerPath   string
}

// NewPipeline resolves mkvextract and mkvmerge and returns a ready
// pipeline. Resolution failure is returned so the caller can decide
// whether patching is required for this run.
func NewPipeline(runner tools.Runner) (*Pipeline, error) {
	extractor, err := tools.FindTool("mkvextract")
	if err != nil {
		return nil, err
	}
	remuxer, err := tools.FindTool("mkvmerge")
	if err != nil {
		return nil, err
	}
	return &Pipeline{Runner: runner, ExtractorPath: extractor, RemuxerPath: remuxer}, nil
}

// Patch runs the extract/transform/remux state machine for filePath if
// destDir holds a ruleset. Any failure leaves the original container and
// sidecar untouched; only a complete remux replaces the original.
func (p *Pipeline) Patch(ctx context.Context, destDir, filePath string) error {
	logger := utils.GetLogger("subtitle")
	rulesetPath := filepath.Join(destDir, RulesetFileName)
	if _, err := os.Stat(rulesetPath); os.IsNotExist(err) {
		return nil
	}
	name := filepath.Base(filePath)

	rules, err := LoadRuleset(rulesetPath)
	if err != nil {
		return &PatchError{Kind: KindInvalidRuleset, File: name, Err: err}
	}

	ext := filepath.Ext(filePath)
	sidecarPath := strings.TrimSuffix(filePath, ext) + ".ass"
	result, err := p.Runner.Run(ctx, p.ExtractorPath, filePath, "tracks", fmt.Sprintf("%d:%s", subtitleTrack, sidecarPath))
	if err != nil {
		return &PatchError{Kind: KindExtractFailed, File: name, Err: err}
	}
	if result.ExitCode != 0 {
		return &PatchError{
			Kind:   KindExtractFailed,
			File:   name,
			Stderr: result.Stderr,
			Err:    fmt.Errorf("extractor exited with code %d", result.ExitCode),
		}
	}

	content, err := os.ReadFile(sidecarPath)
	if err != nil {
		return &PatchError{Kind: KindExtractFailed, File: name, Err: err}
	}
	transformed := Transform(string(content), rules)
	if err := os.WriteFile(sidecarPath, []byte(transformed), 0644); err != nil {
		return &PatchError{Kind: KindExtractFailed, File: name, Err: err}
	}

	// Remux to a side-by-side path; the input is never written in place.
	outputPath := strings.TrimSuffix(filePath, ext) + remuxedSuffix + ext
	result, err = p.Runner.Run(ctx, p.RemuxerPath,
		"-o", outputPath,
		"--no-subtitles", filePath,
		"--language", "0:eng",
		"--track-name", "0:MegumiFixed",
		sidecarPath)
	if err != nil {
		os.Remove(outputPath)
		return &PatchError{Kind: KindRemuxFailed, File: name, Err: err}
	}
	if result.ExitCode != 0 {
		os.Remove(outputPath)
		return &PatchError{
			Kind:   KindRemuxFailed,
			File:   name,
			Stderr: result.Stderr,
			Err:    fmt.Errorf("remuxer exited with code %d", result.ExitCode),
		}
	}

	// Commit: the original goes away only once the replacement is present
	// and non-empty, so the destination never ends with zero playable
	// containers.
	outInfo, err := os.Stat(outputPath)
	if err != nil || outInfo.Size() == 0 {
		os.Remove(outputPath)
		return &PatchError{Kind: KindRemuxFailed, File: name, Err: fmt.Errorf("remuxed output missing or empty")}
	}
	if err := os.Remove(filePath); err != nil {
		return &PatchError{Kind: KindCommitFailed, File: name, Err: err}
	}
	if err := os.Rename(outputPath, filePath); err != nil {
		return &PatchError{Kind: KindCommitFailed, File: name, Err: err}
	}
	if err := os.Remove(sidecarPath); err != nil {
		logger.Warn().Err(err).Msgf("Failed to remove sidecar for %s", name)
	}
	logger.Info().Msgf("Processed subtitles for %s", name)
	return nil
}

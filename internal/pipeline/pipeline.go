package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tanq16/megumi/internal/classify"
	"github.com/tanq16/megumi/internal/config"
	"github.com/tanq16/megumi/internal/library"
	"github.com/tanq16/megumi/internal/remote"
	"github.com/tanq16/megumi/internal/scheduler"
	"github.com/tanq16/megumi/utils"
)

// Patcher is the subtitle patch stage; nil disables patching.
type Patcher interface {
	Patch(ctx context.Context, destDir, filePath string) error
}

// Pipeline wires one full run: transfer, classify, place, patch.
type Pipeline struct {
	Config  *config.Config
	Groups  []string
	Series  []config.SeriesRule
	Store   remote.Store
	Patcher Patcher
	Workers int
}

// Run executes the pipeline. Per-file errors are collected into the
// report; only listing/staging-setup failures abort the run.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	logger := utils.GetLogger("pipeline")
	report := &Report{StartedAt: time.Now()}

	if p.Config.MoveLocal {
		if _, err := os.Stat(p.Config.StagingDir); err != nil {
			return nil, fmt.Errorf("staging directory not found: %s", p.Config.StagingDir)
		}
		logger.Info().Msgf("MOVELOCAL is on, processing %s in place", p.Config.StagingDir)
	} else {
		if err := p.transferPhase(ctx, report); err != nil {
			return nil, err
		}
	}

	if err := p.placementPhase(ctx, report); err != nil {
		return nil, err
	}
	report.FinishedAt = time.Now()
	for _, outcome := range report.Files {
		if outcome.Error == "" {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	logger.Info().Msgf("Run complete: %d succeeded, %d failed", report.Succeeded, report.Failed)
	return report, nil
}

func (p *Pipeline) transferPhase(ctx context.Context, report *Report) error {
	logger := utils.GetLogger("pipeline")
	names, err := p.Store.List(ctx, p.Config.RemotePath)
	if err != nil {
		return fmt.Errorf("error listing remote directory %s: %w", p.Config.RemotePath, err)
	}
	logger.Info().Msgf("Listed %d remote files in %s", len(names), p.Config.RemotePath)
	if err := os.MkdirAll(p.Config.StagingDir, 0755); err != nil {
		return fmt.Errorf("error creating staging directory: %w", err)
	}
	if err := scheduler.CleanStale(p.Config.StagingDir, names); err != nil {
		return fmt.Errorf("error cleaning stale staging files: %w", err)
	}
	selected := scheduler.FilterByGroups(names, p.Groups)
	logger.Info().Msgf("%d of %d remote files match configured groups", len(selected), len(names))
	summary := scheduler.Run(ctx, p.Store, selected, scheduler.Options{
		Workers:     p.Workers,
		Connections: p.Config.Chunks,
		UseChunks:   p.Config.UseChunks,
		StagingDir:  p.Config.StagingDir,
		RemoteDir:   p.Config.RemotePath,
	})
	for _, name := range summary.Failed {
		report.Files = append(report.Files, Outcome{Name: name, Stage: StageTransfer, Error: "transfer failed"})
	}
	return nil
}

func (p *Pipeline) placementPhase(ctx context.Context, report *Report) error {
	logger := utils.GetLogger("pipeline")
	entries, err := os.ReadDir(p.Config.StagingDir)
	if err != nil {
		return fmt.Errorf("error reading staging directory: %w", err)
	}
	placer := &library.Placer{LibraryRoot: p.Config.LibraryRoot, SaveInfo: p.Config.SaveInfo}
	seen := make(map[string]struct{})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		if entry.IsDir() || strings.HasSuffix(entry.Name(), ".assembling") {
			continue
		}
		name := entry.Name()
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() == 0 {
			logger.Warn().Msgf("Skipping empty file %s", name)
			continue
		}
		report.Files = append(report.Files, p.processFile(ctx, placer, name))
	}
	return nil
}

func (p *Pipeline) processFile(ctx context.Context, placer *library.Placer, name string) Outcome {
	logger := utils.GetLogger("pipeline")
	localPath := filepath.Join(p.Config.StagingDir, name)

	classified := classify.Classify(name, p.Series, p.Config.Rename)
	if classified.Err != nil {
		logger.Error().Err(classified.Err).Msgf("Classification failed for %s", name)
		return Outcome{Name: name, Stage: StageClassify, Error: classified.Err.Error()}
	}

	destPath, err := placer.Place(localPath, classified.Rule, classified.NewName)
	if err != nil {
		logger.Error().Err(err).Msgf("Placement failed for %s", name)
		return Outcome{Name: name, Stage: StagePlace, Renamed: classified.NewName, Error: err.Error()}
	}

	if p.Patcher != nil {
		if err := p.Patcher.Patch(ctx, filepath.Dir(destPath), destPath); err != nil {
			// Placement already succeeded; the container stays in its
			// pre-patch state.
			logger.Error().Err(err).Msgf("Subtitle patch failed for %s", name)
			return Outcome{
				Name:        name,
				Stage:       StagePatch,
				Renamed:     classified.NewName,
				Destination: destPath,
				Error:       err.Error(),
			}
		}
	}
	return Outcome{Name: name, Stage: StageDone, Renamed: classified.NewName, Destination: destPath}
}

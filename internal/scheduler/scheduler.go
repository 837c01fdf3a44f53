package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tanq16/megumi/internal/remote"
	"github.com/tanq16/megumi/internal/transfer"
	"github.com/tanq16/megumi/utils"
)

const DefaultWorkers = 5

// maxSessions caps file workers times per-file segment connections so
// nested fan-out cannot exhaust the remote protocol layer.
const maxSessions = 64

// Summary is the success/failure partition of one scheduler run.
type Summary struct {
	Succeeded []string
	Failed    []string
}

type Options struct {
	Workers     int
	Connections int
	UseChunks   bool
	StagingDir  string
	RemoteDir   string
}

type result struct {
	name string
	err  error
}

// FilterByGroups keeps names carrying at least one configured tag in
// either bracket style. Matching is case-sensitive substring containment.
func FilterByGroups(names, groups []string) []string {
	var selected []string
	for _, name := range names {
		for _, group := range groups {
			if containsTag(name, group) {
				selected = append(selected, name)
				break
			}
		}
	}
	return selected
}

func containsTag(name, group string) bool {
	return strings.Contains(name, "["+group+"]") || strings.Contains(name, "【"+group+"】")
}

// CleanStale removes staging files whose names still appear in the remote
// listing; they are leftovers from an aborted run and will be re-fetched.
func CleanStale(stagingDir string, listing []string) error {
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	remoteNames := make(map[string]struct{}, len(listing))
	for _, name := range listing {
		remoteNames[name] = struct{}{}
	}
	logger := utils.GetLogger("scheduler")
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, exists := remoteNames[entry.Name()]; exists {
			if err := os.Remove(filepath.Join(stagingDir, entry.Name())); err != nil {
				return err
			}
			logger.Info().Msgf("Removed stale staging file %s", entry.Name())
		}
	}
	return nil
}

// Run transfers the selected files through a bounded worker pool. Each
// job's outcome is independent; one failure never cancels the others.
func Run(ctx context.Context, store remote.Store, names []string, opts Options) Summary {
	logger := utils.GetLogger("scheduler")
	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	connections := opts.Connections
	if connections < 1 {
		connections = 1
	}
	if workers*connections > maxSessions {
		connections = max(maxSessions/workers, 1)
		logger.Debug().Msgf("Clamped segment connections to %d for %d workers", connections, workers)
	}

	progress := transfer.NewProgressManager()
	progress.StartDisplay()
	defer progress.StopDisplay()
	engine := transfer.NewEngine(store, connections, opts.UseChunks, progress)

	jobCh := make(chan string, len(names))
	for _, name := range names {
		jobCh <- name
	}
	close(jobCh)

	resultCh := make(chan result, len(names))
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobCh {
				_, err := engine.Transfer(ctx, opts.RemoteDir, name, opts.StagingDir)
				if err != nil {
					logger.Error().Err(err).Msgf("Transfer failed for %s", name)
				}
				resultCh <- result{name: name, err: err}
			}
		}()
	}
	wg.Wait()
	close(resultCh)

	var summary Summary
	for res := range resultCh {
		if res.err != nil {
			summary.Failed = append(summary.Failed, res.name)
		} else {
			summary.Succeeded = append(summary.Succeeded, res.name)
		}
	}
	sort.Strings(summary.Succeeded)
	sort.Strings(summary.Failed)
	logger.Info().Msgf("Transfers complete: %d succeeded, %d failed", len(summary.Succeeded), len(summary.Failed))
	return summary
}

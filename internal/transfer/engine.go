package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tanq16/megumi/internal/remote"
	"github.com/tanq16/megumi/utils"
)

// smallFileThreshold is the size below which a file is fetched in one
// sequential stream instead of parallel segments.
const smallFileThreshold = 1024 * 1024

const bufferSize = 1024 * 1024

type Chunk struct {
	ID         int
	StartByte  int64
	EndByte    int64 // exclusive
	Downloaded int64
	counted    int64
	Completed  bool
}

type Job struct {
	ID         string
	Name       string
	RemotePath string
	LocalPath  string
	Size       int64
	Chunks     []Chunk
	StartTime  time.Time
	TempFiles  []string
	tempMutex  sync.Mutex
}

// Engine downloads one remote file at a time, splitting it into byte-range
// segments when chunking applies, and commits by deleting the remote copy
// only after the reassembled local size matches the remote stat size.
type Engine struct {
	store       remote.Store
	connections int
	useChunks   bool
	progress    *ProgressManager
}

func NewEngine(store remote.Store, connections int, useChunks bool, progress *ProgressManager) *Engine {
	if connections < 1 {
		connections = 1
	}
	return &Engine{
		store:       store,
		connections: connections,
		useChunks:   useChunks,
		progress:    progress,
	}
}

// Transfer downloads remoteDir/name into stagingDir and returns the local
// path. The remote copy is removed only on verified success.
func (e *Engine) Transfer(ctx context.Context, remoteDir, name, stagingDir string) (string, error) {
	logger := utils.GetLogger("transfer")
	if err := os.MkdirAll(stagingDir, 0755); err != nil {
		return "", &Error{Kind: KindSegmentIO, File: name, Err: err}
	}
	remotePath := remote.Join(remoteDir, name)
	localPath := filepath.Join(stagingDir, name)

	// Size comes from a fresh stat, never from an earlier listing.
	size, err := e.store.Stat(ctx, remotePath)
	if err != nil {
		return "", &Error{Kind: KindStat, File: name, Err: err}
	}
	job := &Job{
		ID:         uuid.New().String(),
		Name:       name,
		RemotePath: remotePath,
		LocalPath:  localPath,
		Size:       size,
		StartTime:  time.Now(),
	}
	if e.progress != nil {
		e.progress.Register(name, size)
	}
	logger.Info().Str("job", job.ID).Msgf("Attempting to download %s (%s)", name, utils.FormatBytes(uint64(size)))

	progressCh := make(chan int64, 100)
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		for delta := range progressCh {
			if e.progress != nil {
				e.progress.Update(name, delta)
			}
		}
	}()

	if e.useChunks && size > smallFileThreshold {
		err = e.multiSegmentDownload(ctx, job, stagingDir, progressCh)
	} else {
		err = e.singleStreamDownload(ctx, job, progressCh)
	}
	close(progressCh)
	progressWg.Wait()
	if err != nil {
		cleanupSegments(stagingDir, name)
		os.Remove(localPath)
		return "", err
	}

	// Completion is decided by size verification alone, never by the file
	// merely existing.
	info, statErr := os.Stat(localPath)
	if statErr != nil || info.Size() == 0 || info.Size() != size {
		os.Remove(localPath)
		got := int64(0)
		if statErr == nil {
			got = info.Size()
		}
		return "", &Error{
			Kind: KindSizeMismatch,
			File: name,
			Err:  fmt.Errorf("expected %d bytes, got %d", size, got),
		}
	}
	logger.Info().Str("job", job.ID).Msgf("Successfully downloaded %s", name)

	if err := e.store.Remove(ctx, remotePath); err != nil {
		// Best effort: the local copy is verified, so a failed remote
		// delete does not fail the job.
		logger.Warn().Str("job", job.ID).Err(err).Msgf("Failed to remove remote copy of %s", name)
	} else {
		logger.Info().Str("job", job.ID).Msgf("Removed remote file %s", name)
	}
	if e.progress != nil {
		e.progress.Complete(name)
	}
	return localPath, nil
}

// PlanChunks partitions [0, size) into up to count contiguous segments
// using ceiling division; the plan never contains an empty segment.
func PlanChunks(size int64, count int) []Chunk {
	if count < 1 {
		count = 1
	}
	chunkSize := (size + int64(count) - 1) / int64(count)
	var chunks []Chunk
	for i := 0; int64(i)*chunkSize < size; i++ {
		start := int64(i) * chunkSize
		end := min(start+chunkSize, size)
		chunks = append(chunks, Chunk{ID: i, StartByte: start, EndByte: end})
	}
	return chunks
}

func (e *Engine) multiSegmentDownload(ctx context.Context, job *Job, stagingDir string, progressCh chan<- int64) error {
	tempDir := filepath.Join(stagingDir, utils.TempDirName)
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
	}
	job.Chunks = PlanChunks(job.Size, e.connections)

	var wg sync.WaitGroup
	for i := range job.Chunks {
		wg.Add(1)
		go func(chunk *Chunk) {
			defer wg.Done()
			e.downloadSegment(ctx, job, chunk, tempDir, progressCh)
		}(&job.Chunks[i])
	}
	wg.Wait()

	for i := range job.Chunks {
		if !job.Chunks[i].Completed {
			return &Error{
				Kind: KindSegmentIO,
				File: job.Name,
				Err:  fmt.Errorf("segment %d failed to complete", job.Chunks[i].ID),
			}
		}
	}
	return e.assemble(job, tempDir)
}

// assemble concatenates segment files in index order into a staging name,
// then renames into place so a consumer never sees a partial file.
func (e *Engine) assemble(job *Job, tempDir string) error {
	assembling := job.LocalPath + ".assembling"
	destFile, err := os.Create(assembling)
	if err != nil {
		return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
	}
	var totalWritten int64
	for i := range job.Chunks {
		partPath := segmentPath(tempDir, job.Name, job.Chunks[i].ID)
		partFile, err := os.Open(partPath)
		if err != nil {
			destFile.Close()
			os.Remove(assembling)
			return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
		}
		written, err := io.Copy(destFile, partFile)
		partFile.Close()
		if err != nil {
			destFile.Close()
			os.Remove(assembling)
			return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
		}
		totalWritten += written
	}
	if err := destFile.Close(); err != nil {
		os.Remove(assembling)
		return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
	}
	if totalWritten != job.Size {
		os.Remove(assembling)
		return &Error{
			Kind: KindSizeMismatch,
			File: job.Name,
			Err:  fmt.Errorf("assembled %d bytes, expected %d", totalWritten, job.Size),
		}
	}
	if err := os.Rename(assembling, job.LocalPath); err != nil {
		os.Remove(assembling)
		return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
	}
	cleanupSegments(filepath.Dir(tempDir), job.Name)
	return nil
}

func (e *Engine) singleStreamDownload(ctx context.Context, job *Job, progressCh chan<- int64) error {
	stream, err := e.store.OpenRange(ctx, job.RemotePath, 0)
	if err != nil {
		return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
	}
	defer stream.Close()

	assembling := job.LocalPath + ".assembling"
	destFile, err := os.Create(assembling)
	if err != nil {
		return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
	}
	buffer := make([]byte, bufferSize)
	var written int64
	for {
		if ctx.Err() != nil {
			destFile.Close()
			os.Remove(assembling)
			return &Error{Kind: KindSegmentIO, File: job.Name, Err: ctx.Err()}
		}
		n, readErr := stream.Read(buffer)
		if n > 0 {
			if _, writeErr := destFile.Write(buffer[:n]); writeErr != nil {
				destFile.Close()
				os.Remove(assembling)
				return &Error{Kind: KindSegmentIO, File: job.Name, Err: writeErr}
			}
			written += int64(n)
			progressCh <- int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			destFile.Close()
			os.Remove(assembling)
			return &Error{Kind: KindSegmentIO, File: job.Name, Err: readErr}
		}
	}
	if err := destFile.Close(); err != nil {
		os.Remove(assembling)
		return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
	}
	if err := os.Rename(assembling, job.LocalPath); err != nil {
		os.Remove(assembling)
		return &Error{Kind: KindSegmentIO, File: job.Name, Err: err}
	}
	return nil
}

func cleanupSegments(stagingDir, name string) {
	if err := utils.CleanFunction(stagingDir, name); err != nil {
		logger := utils.GetLogger("transfer")
		logger.Debug().Err(err).Msgf("Segment cleanup for %s", name)
	}
}

func segmentPath(tempDir, name string, id int) string {
	return filepath.Join(tempDir, fmt.Sprintf("%s.part%d", name, id))
}

package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tanq16/megumi/utils"
)

const maxSegmentRetries = 5

var segmentRetryDelay = 500 * time.Millisecond

// downloadSegment fetches one byte-range segment into its own part file,
// retrying with backoff. A part file left complete by an earlier run is
// accepted as-is; a partial one is resumed.
func (e *Engine) downloadSegment(ctx context.Context, job *Job, chunk *Chunk, tempDir string, progressCh chan<- int64) {
	logger := utils.GetLogger("transfer")
	partPath := segmentPath(tempDir, job.Name, chunk.ID)
	expectedSize := chunk.EndByte - chunk.StartByte
	resumeOffset := int64(0)
	if fileInfo, err := os.Stat(partPath); err == nil {
		switch {
		case fileInfo.Size() == expectedSize:
			chunk.Downloaded = expectedSize
			chunk.Completed = true
			e.countProgress(chunk, progressCh)
			job.appendTempFile(partPath)
			return
		case fileInfo.Size() > 0 && fileInfo.Size() < expectedSize:
			resumeOffset = fileInfo.Size()
		default:
			os.Remove(partPath)
		}
	}
	for retry := 0; retry < maxSegmentRetries; retry++ {
		if ctx.Err() != nil {
			return
		}
		if retry > 0 {
			time.Sleep(time.Duration(retry+1) * segmentRetryDelay)
			// A part file that no longer matches what we counted got
			// truncated or corrupted; start the segment over.
			if fileInfo, err := os.Stat(partPath); err == nil && fileInfo.Size() != chunk.Downloaded {
				os.Remove(partPath)
				chunk.Downloaded = 0
				resumeOffset = 0
			} else if err != nil {
				chunk.Downloaded = 0
				resumeOffset = 0
			}
		}
		if err := e.downloadSingleSegment(ctx, job, chunk, partPath, progressCh, resumeOffset); err != nil {
			logger.Debug().Str("job", job.ID).Err(err).Msgf("Segment %d attempt %d failed", chunk.ID, retry+1)
			resumeOffset = chunk.Downloaded
			continue
		}
		chunk.Completed = true
		job.appendTempFile(partPath)
		return
	}
}

func (e *Engine) downloadSingleSegment(ctx context.Context, job *Job, chunk *Chunk, partPath string, progressCh chan<- int64, resumeOffset int64) error {
	flag := os.O_WRONLY | os.O_CREATE
	if resumeOffset > 0 {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	partFile, err := os.OpenFile(partPath, flag, 0644)
	if err != nil {
		return fmt.Errorf("error opening segment file: %w", err)
	}
	defer partFile.Close()

	startByte := chunk.StartByte + resumeOffset
	stream, err := e.store.OpenRange(ctx, job.RemotePath, startByte)
	if err != nil {
		return fmt.Errorf("error opening remote range at %d: %w", startByte, err)
	}
	defer stream.Close()

	chunk.Downloaded = resumeOffset
	e.countProgress(chunk, progressCh)
	remaining := chunk.EndByte - startByte
	buffer := make([]byte, bufferSize)
	for remaining > 0 {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		readSize := min(int64(len(buffer)), remaining)
		n, readErr := stream.Read(buffer[:readSize])
		if n > 0 {
			if _, writeErr := partFile.Write(buffer[:n]); writeErr != nil {
				return writeErr
			}
			chunk.Downloaded += int64(n)
			remaining -= int64(n)
			e.countProgress(chunk, progressCh)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return readErr
		}
	}
	if chunk.Downloaded != chunk.EndByte-chunk.StartByte {
		return fmt.Errorf("segment size mismatch: expected %d bytes, got %d", chunk.EndByte-chunk.StartByte, chunk.Downloaded)
	}
	return nil
}

// countProgress reports only bytes never counted before, keeping the
// per-job counter monotonic across segment retries.
func (e *Engine) countProgress(chunk *Chunk, progressCh chan<- int64) {
	if chunk.Downloaded > chunk.counted {
		progressCh <- chunk.Downloaded - chunk.counted
		chunk.counted = chunk.Downloaded
	}
}

func (j *Job) appendTempFile(path string) {
	j.tempMutex.Lock()
	defer j.tempMutex.Unlock()
	j.TempFiles = append(j.TempFiles, path)
}

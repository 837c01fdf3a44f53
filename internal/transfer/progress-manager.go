package transfer

import (
	"fmt"
	"sync"
	"time"

	"github.com/tanq16/megumi/utils"
)

type ProgressInfo struct {
	Name       string
	TotalSize  int64
	Downloaded int64
	Completed  bool
	StartTime  time.Time
}

// ProgressManager aggregates per-file byte counters across concurrent
// transfers. Counters only ever increase and are clamped at the stat size.
type ProgressManager struct {
	progressMap map[string]*ProgressInfo
	mutex       sync.RWMutex
	doneCh      chan struct{}
	displayWg   sync.WaitGroup
}

func NewProgressManager() *ProgressManager {
	return &ProgressManager{
		progressMap: make(map[string]*ProgressInfo),
		doneCh:      make(chan struct{}),
	}
}

func (pm *ProgressManager) Register(name string, totalSize int64) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	pm.progressMap[name] = &ProgressInfo{
		Name:      name,
		TotalSize: totalSize,
		StartTime: time.Now(),
	}
}

// Update advances a file's counter. Negative deltas are ignored and the
// counter never exceeds the registered total.
func (pm *ProgressManager) Update(name string, delta int64) {
	if delta <= 0 {
		return
	}
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	info, exists := pm.progressMap[name]
	if !exists {
		return
	}
	info.Downloaded += delta
	if info.Downloaded > info.TotalSize {
		info.Downloaded = info.TotalSize
	}
}

func (pm *ProgressManager) Complete(name string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	if info, exists := pm.progressMap[name]; exists {
		info.Completed = true
	}
}

func (pm *ProgressManager) Downloaded(name string) int64 {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()
	if info, exists := pm.progressMap[name]; exists {
		return info.Downloaded
	}
	return 0
}

// StartDisplay prints a rotating one-line progress readout until
// StopDisplay is called.
func (pm *ProgressManager) StartDisplay() {
	pm.displayWg.Add(1)
	go func() {
		defer pm.displayWg.Done()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		currentIndex := 0
		for {
			select {
			case <-ticker.C:
				pm.mutex.RLock()
				var active []*ProgressInfo
				for _, info := range pm.progressMap {
					if !info.Completed {
						active = append(active, info)
					}
				}
				if len(active) > 0 {
					if currentIndex >= len(active) {
						currentIndex = 0
					}
					info := active[currentIndex]
					elapsed := time.Since(info.StartTime).Seconds()
					line := fmt.Sprintf("\r\033[K%s: %s / %s (%s)", info.Name,
						utils.FormatBytes(uint64(info.Downloaded)),
						utils.FormatBytes(uint64(info.TotalSize)),
						utils.FormatSpeed(info.Downloaded, elapsed))
					if width := utils.TerminalWidth(); len(line) > width {
						line = line[:width]
					}
					fmt.Print(line)
					currentIndex++
				}
				pm.mutex.RUnlock()
			case <-pm.doneCh:
				fmt.Print("\r\033[K")
				return
			}
		}
	}()
}

func (pm *ProgressManager) StopDisplay() {
	close(pm.doneCh)
	pm.displayWg.Wait()
}

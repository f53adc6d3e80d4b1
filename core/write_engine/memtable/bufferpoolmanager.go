// Package memtable holds the buffer pool: the fixed set of in-memory frames
// that cache disk pages, with LRU eviction of unpinned frames.
package memtable

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	flushmanager "github.com/docustore/docustore/core/write_engine/flush_manager"
	pagemanager "github.com/docustore/docustore/core/write_engine/page_manager"
	internaltelemetry "github.com/docustore/docustore/internal/telemetry"
)

// BufferPoolManager caches disk pages in a fixed number of frames and
// evicts the least recently used unpinned frame when it needs room. Dirty
// victims are flushed before their frame is reused.
type BufferPoolManager struct {
	diskManager *flushmanager.DiskManager
	poolSize    int
	frames      []*pagemanager.Frame
	pageTable   map[uint32]int        // page id -> frame index
	lruList     *list.List            // frame indices, most recent at front
	lruMap      map[int]*list.Element // frame index -> LRU element
	mu          sync.Mutex

	logger  *zap.Logger
	metrics *internaltelemetry.BufferPoolMetrics
}

// NewBufferPoolManager creates a pool of poolSize empty frames over the
// given disk manager. metrics may be nil when telemetry is disabled.
func NewBufferPoolManager(poolSize int, diskManager *flushmanager.DiskManager, logger *zap.Logger, metrics *internaltelemetry.BufferPoolMetrics) (*BufferPoolManager, error) {
	if diskManager == nil {
		return nil, fmt.Errorf("buffer pool requires a disk manager")
	}
	if poolSize <= 0 {
		return nil, fmt.Errorf("buffer pool size must be positive, got %d", poolSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	bpm := &BufferPoolManager{
		diskManager: diskManager,
		poolSize:    poolSize,
		frames:      make([]*pagemanager.Frame, poolSize),
		pageTable:   make(map[uint32]int),
		lruList:     list.New(),
		lruMap:      make(map[int]*list.Element),
		logger:      logger,
		metrics:     metrics,
	}
	for i := 0; i < poolSize; i++ {
		bpm.frames[i] = pagemanager.NewFrame()
	}
	logger.Info("buffer pool initialized", zap.Int("pool_size", poolSize))
	return bpm, nil
}

// FetchPage returns the frame holding the page, loading it from disk if
// needed. The frame comes back pinned; the caller must UnpinPage it.
func (bpm *BufferPoolManager) FetchPage(pageID uint32) (*pagemanager.Frame, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()
	if bpm.metrics != nil {
		bpm.metrics.Fetches.Add(context.Background(), 1)
	}

	if frameIdx, ok := bpm.pageTable[pageID]; ok {
		frame := bpm.frames[frameIdx]
		frame.Pin()
		if frame.LruElement() != nil {
			bpm.lruList.MoveToFront(frame.LruElement())
		}
		if bpm.metrics != nil {
			bpm.metrics.Hits.Add(context.Background(), 1)
		}
		return frame, nil
	}

	frameIdx, err := bpm.victimFrame()
	if err != nil {
		return nil, err
	}
	if err := bpm.evictFrame(frameIdx); err != nil {
		return nil, err
	}
	frame := bpm.frames[frameIdx]

	if err := bpm.diskManager.ReadPage(pageID, frame.Data()); err != nil {
		return nil, fmt.Errorf("loading page %d: %w", pageID, err)
	}

	frame.SetPageID(pageID)
	frame.SetPinCount(1)
	frame.SetDirty(false)
	bpm.track(pageID, frameIdx)
	bpm.logger.Debug("page loaded", zap.Uint32("page_id", pageID), zap.Int("frame", frameIdx))
	return frame, nil
}

// NewPage allocates a fresh page on disk and pins it in a frame, dirty.
func (bpm *BufferPoolManager) NewPage() (*pagemanager.Frame, uint32, error) {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	pageID, err := bpm.diskManager.AllocatePage()
	if err != nil {
		return nil, pagemanager.InvalidPageID, err
	}
	frameIdx, err := bpm.victimFrame()
	if err != nil {
		// The allocated disk page stays orphaned until the allocator links
		// it into a free list; nothing references it, so this is safe.
		return nil, pagemanager.InvalidPageID, fmt.Errorf("no frame for new page %d: %w", pageID, err)
	}
	if err := bpm.evictFrame(frameIdx); err != nil {
		return nil, pagemanager.InvalidPageID, err
	}
	frame := bpm.frames[frameIdx]
	frame.SetPageID(pageID)
	frame.SetPinCount(1)
	frame.SetDirty(true)
	bpm.track(pageID, frameIdx)
	bpm.logger.Debug("new page pinned", zap.Uint32("page_id", pageID), zap.Int("frame", frameIdx))
	return frame, pageID, nil
}

// UnpinPage releases one pin. isDirty records whether the caller modified
// the frame's bytes while it held the pin.
func (bpm *BufferPoolManager) UnpinPage(pageID uint32, isDirty bool) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: page %d not resident", flushmanager.ErrPageNotFound, pageID)
	}
	frame := bpm.frames[frameIdx]
	if frame.PinCount() == 0 {
		return fmt.Errorf("page %d already has pin count 0", pageID)
	}
	frame.Unpin()
	if isDirty {
		frame.SetDirty(true)
	}
	return nil
}

// FlushPage writes the page's frame to disk if it is dirty.
func (bpm *BufferPoolManager) FlushPage(pageID uint32) error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	frameIdx, ok := bpm.pageTable[pageID]
	if !ok {
		return fmt.Errorf("%w: page %d not resident", flushmanager.ErrPageNotFound, pageID)
	}
	return bpm.flushFrame(bpm.frames[frameIdx])
}

// FlushAll writes every dirty resident page and syncs the file. The first
// error is reported, but flushing continues past failures so one bad page
// does not keep the rest of the pool dirty.
func (bpm *BufferPoolManager) FlushAll() error {
	bpm.mu.Lock()
	defer bpm.mu.Unlock()

	var firstErr error
	for _, frame := range bpm.frames {
		if frame.PageID() == pagemanager.InvalidPageID || !frame.IsDirty() {
			continue
		}
		if err := bpm.flushFrame(frame); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := bpm.diskManager.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (bpm *BufferPoolManager) flushFrame(frame *pagemanager.Frame) error {
	if !frame.IsDirty() {
		return nil
	}
	if err := bpm.diskManager.WritePage(frame.PageID(), frame.Data()); err != nil {
		bpm.logger.Error("page flush failed", zap.Uint32("page_id", frame.PageID()), zap.Error(err))
		return err
	}
	frame.SetDirty(false)
	if bpm.metrics != nil {
		bpm.metrics.Flushes.Add(context.Background(), 1)
	}
	return nil
}

// victimFrame finds a frame to reuse: an empty one first, otherwise the
// least recently used unpinned one. Caller holds the pool lock.
func (bpm *BufferPoolManager) victimFrame() (int, error) {
	for i := 0; i < bpm.poolSize; i++ {
		if bpm.frames[i].PageID() == pagemanager.InvalidPageID {
			return i, nil
		}
	}
	for e := bpm.lruList.Back(); e != nil; e = e.Prev() {
		frameIdx := e.Value.(int)
		if bpm.frames[frameIdx].PinCount() == 0 {
			return frameIdx, nil
		}
	}
	return -1, flushmanager.ErrBufferPoolFull
}

// evictFrame flushes and clears whatever page currently occupies the frame.
// Caller holds the pool lock.
func (bpm *BufferPoolManager) evictFrame(frameIdx int) error {
	frame := bpm.frames[frameIdx]
	if frame.PageID() == pagemanager.InvalidPageID {
		return nil
	}
	if err := bpm.flushFrame(frame); err != nil {
		return fmt.Errorf("evicting page %d: %w", frame.PageID(), err)
	}
	delete(bpm.pageTable, frame.PageID())
	if frame.LruElement() != nil {
		bpm.lruList.Remove(frame.LruElement())
		delete(bpm.lruMap, frameIdx)
	}
	frame.Reset()
	if bpm.metrics != nil {
		bpm.metrics.Evictions.Add(context.Background(), 1)
	}
	return nil
}

func (bpm *BufferPoolManager) track(pageID uint32, frameIdx int) {
	bpm.pageTable[pageID] = frameIdx
	frame := bpm.frames[frameIdx]
	frame.SetLruElement(bpm.lruList.PushFront(frameIdx))
	bpm.lruMap[frameIdx] = frame.LruElement()
}

// PoolSize is the number of frames in the pool.
func (bpm *BufferPoolManager) PoolSize() int {
	return bpm.poolSize
}

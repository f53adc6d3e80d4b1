// Package flushmanager owns the single database file: page-granular reads
// and writes, page allocation, and the file header that identifies the file
// and pins its format parameters.
package flushmanager

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docustore/docustore/core/storage_engine/page"
)

const (
	// DBMagic identifies a docustore database file.
	DBMagic uint32 = 0xD0C5DB01

	// FileFormatVersion is bumped on any incompatible layout change.
	FileFormatVersion uint32 = 1
)

// FileHeader is the metadata persisted in the payload of page 0 (the one
// Header-type page of the file).
type FileHeader struct {
	Magic        uint32
	Version      uint32
	PageSize     uint32
	PageCount    uint32
	DatabaseID   uuid.UUID
	CreationTime time.Time
}

// DiskManager performs page-granular I/O against the database file. Page N
// lives at byte offset N*PageSize; page 0 is the file header page.
type DiskManager struct {
	filePath string
	file     *os.File
	header   FileHeader
	mu       sync.Mutex
	logger   *zap.Logger
}

// Open opens an existing database file, or creates a fresh one when create
// is set and the file does not exist yet.
func Open(filePath string, create bool, logger *zap.Logger) (*DiskManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dm := &DiskManager{filePath: filePath, logger: logger}

	_, statErr := os.Stat(filePath)
	switch {
	case os.IsNotExist(statErr):
		if !create {
			return nil, fmt.Errorf("%w: %s", ErrDBFileNotFound, filePath)
		}
		file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0666)
		if err != nil {
			return nil, fmt.Errorf("%w: creating %s: %v", ErrIO, filePath, err)
		}
		dm.file = file
		dm.header = FileHeader{
			Magic:        DBMagic,
			Version:      FileFormatVersion,
			PageSize:     page.PageSize,
			PageCount:    1,
			DatabaseID:   uuid.New(),
			CreationTime: time.Now().UTC(),
		}
		if err := dm.writeFileHeader(); err != nil {
			_ = file.Close()
			_ = os.Remove(filePath)
			return nil, err
		}
		logger.Info("created database file",
			zap.String("path", filePath),
			zap.String("database_id", dm.header.DatabaseID.String()))
		return dm, nil

	case statErr != nil:
		return nil, fmt.Errorf("%w: stat %s: %v", ErrIO, filePath, statErr)
	}

	file, err := os.OpenFile(filePath, os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, filePath, err)
	}
	dm.file = file
	if err := dm.readFileHeader(); err != nil {
		_ = file.Close()
		return nil, err
	}
	logger.Info("opened database file",
		zap.String("path", filePath),
		zap.String("database_id", dm.header.DatabaseID.String()),
		zap.Uint32("page_count", dm.header.PageCount))
	return dm, nil
}

// Header returns a copy of the file header.
func (dm *DiskManager) Header() FileHeader {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.header
}

// PageCount is the number of pages in the file, header page included.
func (dm *DiskManager) PageCount() uint32 {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return dm.header.PageCount
}

// AllocatePage extends the file by one page, written as an Empty page with a
// valid checksum, and returns its id.
func (dm *DiskManager) AllocatePage() (uint32, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return page.EmptyPageID, ErrManagerClosed
	}
	pageID := dm.header.PageCount

	buf := page.NewPageBuffer()
	base := page.NewBasePage(pageID, page.PageTypeEmpty)
	if err := base.WriteHeader(buf); err != nil {
		return page.EmptyPageID, err
	}
	page.StampChecksum(buf)
	if err := dm.writeAt(pageID, buf.Bytes()); err != nil {
		return page.EmptyPageID, err
	}

	dm.header.PageCount++
	if err := dm.writeFileHeader(); err != nil {
		return page.EmptyPageID, err
	}
	dm.logger.Debug("allocated page", zap.Uint32("page_id", pageID))
	return pageID, nil
}

// ReadPage fills buf with the page's bytes and verifies its checksum.
func (dm *DiskManager) ReadPage(pageID uint32, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrManagerClosed
	}
	if len(buf) != page.PageSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidPageBuffer, len(buf))
	}
	if pageID >= dm.header.PageCount {
		return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, pageID, dm.header.PageCount)
	}
	if _, err := dm.file.ReadAt(buf, int64(pageID)*page.PageSize); err != nil {
		return fmt.Errorf("%w: reading page %d: %v", ErrIO, pageID, err)
	}
	if got, want := buf[page.ChecksumOffset], page.Checksum(buf); got != want {
		return fmt.Errorf("%w: page %d stored %#x, computed %#x", ErrChecksumMismatch, pageID, got, want)
	}
	return nil
}

// WritePage stamps the trailing checksum byte and writes the page in place.
func (dm *DiskManager) WritePage(pageID uint32, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrManagerClosed
	}
	if len(buf) != page.PageSize {
		return fmt.Errorf("%w: %d bytes", ErrInvalidPageBuffer, len(buf))
	}
	if pageID >= dm.header.PageCount {
		return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, pageID, dm.header.PageCount)
	}
	buf[page.ChecksumOffset] = page.Checksum(buf)
	return dm.writeAt(pageID, buf)
}

func (dm *DiskManager) writeAt(pageID uint32, buf []byte) error {
	if _, err := dm.file.WriteAt(buf, int64(pageID)*page.PageSize); err != nil {
		return fmt.Errorf("%w: writing page %d: %v", ErrIO, pageID, err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrManagerClosed
	}
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrIO, err)
	}
	return nil
}

// Close syncs and releases the file handle.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	if err := dm.file.Sync(); err != nil {
		dm.logger.Warn("sync on close failed", zap.Error(err))
	}
	err := dm.file.Close()
	dm.file = nil
	return err
}

// --- File header page ---

func (dm *DiskManager) writeFileHeader() error {
	buf := page.NewPageBuffer()
	base := page.NewBasePage(0, page.PageTypeHeader)
	if err := base.WriteHeader(buf); err != nil {
		return err
	}
	buf.WriteUint32(dm.header.Magic)
	buf.WriteUint32(dm.header.Version)
	buf.WriteUint32(dm.header.PageSize)
	buf.WriteUint32(dm.header.PageCount)
	id, err := dm.header.DatabaseID.MarshalBinary()
	if err != nil {
		return fmt.Errorf("%w: marshaling database id: %v", ErrIO, err)
	}
	for _, b := range id {
		buf.WriteUint8(b)
	}
	buf.WriteTime(dm.header.CreationTime)
	if err := buf.Err(); err != nil {
		return err
	}
	page.StampChecksum(buf)
	return dm.writeAt(0, buf.Bytes())
}

func (dm *DiskManager) readFileHeader() error {
	raw := make([]byte, page.PageSize)
	if _, err := dm.file.ReadAt(raw, 0); err != nil {
		return fmt.Errorf("%w: reading file header: %v", ErrIO, err)
	}
	buf, err := page.WrapBuffer(raw)
	if err != nil {
		return err
	}
	if err := page.VerifyChecksum(buf); err != nil {
		return err
	}
	var base page.BasePage
	if err := base.ReadHeader(buf, page.PageTypeHeader); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDBFile, err)
	}

	dm.header.Magic = buf.ReadUint32()
	dm.header.Version = buf.ReadUint32()
	dm.header.PageSize = buf.ReadUint32()
	dm.header.PageCount = buf.ReadUint32()
	id := make([]byte, 16)
	for i := range id {
		id[i] = buf.ReadUint8()
	}
	dm.header.CreationTime = buf.ReadTime()
	if err := buf.Err(); err != nil {
		return err
	}
	if err := dm.header.DatabaseID.UnmarshalBinary(id); err != nil {
		return fmt.Errorf("%w: database id: %v", ErrInvalidDBFile, err)
	}

	if dm.header.Magic != DBMagic {
		return fmt.Errorf("%w: magic %#x", ErrInvalidDBFile, dm.header.Magic)
	}
	if dm.header.Version != FileFormatVersion {
		return fmt.Errorf("%w: version %d, supported %d", ErrVersionMismatch, dm.header.Version, FileFormatVersion)
	}
	if dm.header.PageSize != page.PageSize {
		return fmt.Errorf("%w: file %d, build %d", ErrPageSizeMismatch, dm.header.PageSize, page.PageSize)
	}
	return nil
}

package flushmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/docustore/docustore/core/storage_engine/page"
)

func setupDiskManager(t *testing.T) (*DiskManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	dm, err := Open(path, true, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = dm.Close() })
	return dm, path
}

func TestDiskManager_CreateAndReopen(t *testing.T) {
	dm, path := setupDiskManager(t)
	created := dm.Header()
	require.Equal(t, DBMagic, created.Magic)
	require.Equal(t, uint32(page.PageSize), created.PageSize)
	require.Equal(t, uint32(1), created.PageCount, "a fresh file holds only the header page")

	pageID, err := dm.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, uint32(1), pageID)
	require.NoError(t, dm.Close())

	reopened, err := Open(path, false, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	header := reopened.Header()
	require.Equal(t, created.DatabaseID, header.DatabaseID)
	require.True(t, header.CreationTime.Equal(created.CreationTime))
	require.Equal(t, uint32(2), header.PageCount)
}

func TestDiskManager_OpenMissingFileFails(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.db"), false, zaptest.NewLogger(t))
	require.ErrorIs(t, err, ErrDBFileNotFound)
}

func TestDiskManager_CreateOnExistingFileOpens(t *testing.T) {
	dm, path := setupDiskManager(t)
	require.NoError(t, dm.Close())

	// Opening with create on an existing file must open, not truncate.
	reopened, err := Open(path, true, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.Equal(t, dm.Header().DatabaseID, reopened.Header().DatabaseID)
	require.NoError(t, reopened.Close())
}

func TestDiskManager_PageRoundTrip(t *testing.T) {
	dm, _ := setupDiskManager(t)
	pageID, err := dm.AllocatePage()
	require.NoError(t, err)

	buf := page.NewPageBuffer()
	base := page.NewBasePage(pageID, page.PageTypeData)
	require.NoError(t, base.WriteHeader(buf))
	copy(buf.Bytes()[page.PageHeaderSize:], "hello docustore")
	require.NoError(t, dm.WritePage(pageID, buf.Bytes()))

	got := make([]byte, page.PageSize)
	require.NoError(t, dm.ReadPage(pageID, got))
	require.Equal(t, buf.Bytes(), got)
}

func TestDiskManager_ReadDetectsCorruption(t *testing.T) {
	dm, path := setupDiskManager(t)
	pageID, err := dm.AllocatePage()
	require.NoError(t, err)

	buf := page.NewPageBuffer()
	base := page.NewBasePage(pageID, page.PageTypeData)
	require.NoError(t, base.WriteHeader(buf))
	require.NoError(t, dm.WritePage(pageID, buf.Bytes()))
	require.NoError(t, dm.Sync())

	// Flip one byte in the page body behind the manager's back.
	file, err := os.OpenFile(path, os.O_RDWR, 0666)
	require.NoError(t, err)
	offset := int64(pageID)*page.PageSize + 100
	_, err = file.WriteAt([]byte{0xFF}, offset)
	require.NoError(t, err)
	require.NoError(t, file.Close())

	got := make([]byte, page.PageSize)
	require.ErrorIs(t, dm.ReadPage(pageID, got), ErrChecksumMismatch)
}

func TestDiskManager_BoundsAndSizeChecks(t *testing.T) {
	dm, _ := setupDiskManager(t)

	got := make([]byte, page.PageSize)
	require.ErrorIs(t, dm.ReadPage(99, got), ErrPageOutOfRange)
	require.ErrorIs(t, dm.WritePage(99, got), ErrPageOutOfRange)
	require.ErrorIs(t, dm.ReadPage(0, make([]byte, 100)), ErrInvalidPageBuffer)

	require.NoError(t, dm.Close())
	_, err := dm.AllocatePage()
	require.ErrorIs(t, err, ErrManagerClosed)
}

// docustore_inspect is a maintenance tool for docustore database files:
// dump the file header, list the index catalog of a collection page,
// sweep every page checksum, or take a throttled backup copy.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/docustore/docustore/core/storage_engine/catalog"
	"github.com/docustore/docustore/core/storage_engine/common"
	"github.com/docustore/docustore/core/storage_engine/page"
	flushmanager "github.com/docustore/docustore/core/write_engine/flush_manager"
	"github.com/docustore/docustore/pkg/logger"
)

var CLI struct {
	LogLevel string `name:"log-level" default:"warn" help:"Minimum log level."`

	Info    InfoCmd    `cmd:"" help:"Print the database file header."`
	Indexes IndexesCmd `cmd:"" help:"List the index catalog of a collection page."`
	Verify  VerifyCmd  `cmd:"" help:"Verify every page checksum and print a file digest."`
	Backup  BackupCmd  `cmd:"" help:"Copy the database file, optionally throttled."`
}

// InfoCmd prints the file header of a database file.
type InfoCmd struct {
	File string `arg:"" help:"Database file."`
}

func (c *InfoCmd) Run(log *zap.Logger) error {
	dm, err := flushmanager.Open(c.File, false, log)
	if err != nil {
		return err
	}
	defer dm.Close()

	h := dm.Header()
	fmt.Printf("database id:   %s\n", h.DatabaseID)
	fmt.Printf("format:        v%d, %d-byte pages\n", h.Version, h.PageSize)
	fmt.Printf("pages:         %d\n", h.PageCount)
	fmt.Printf("created:       %s\n", h.CreationTime)
	return nil
}

// IndexesCmd decodes one collection page and lists its catalog.
type IndexesCmd struct {
	File   string `arg:"" help:"Database file."`
	PageID uint32 `arg:"" help:"Page id of the collection page."`
}

func (c *IndexesCmd) Run(log *zap.Logger) error {
	dm, err := flushmanager.Open(c.File, false, log)
	if err != nil {
		return err
	}
	defer dm.Close()

	raw := make([]byte, page.PageSize)
	if err := dm.ReadPage(c.PageID, raw); err != nil {
		return err
	}
	buf, err := page.WrapBuffer(raw)
	if err != nil {
		return err
	}
	col, err := catalog.DecodeCollectionPage(buf)
	if err != nil {
		return err
	}

	fmt.Printf("collection page %d, created %s\n", col.PageID, col.CreationTime)
	if col.LastAnalyzed.IsZero() {
		fmt.Println("last analyzed: never")
	} else {
		fmt.Printf("last analyzed: %s\n", col.LastAnalyzed)
	}
	for bucket := 0; bucket < page.PageFreeListSlots; bucket++ {
		data, _ := col.FreeDataPageHead(bucket)
		index, _ := col.FreeIndexPageHead(bucket)
		fmt.Printf("bucket %d: data head %s, index head %s\n", bucket, pageIDString(data), pageIDString(index))
	}
	for _, ix := range col.Indexes() {
		fmt.Printf("index %-32q expr=%q unique=%t head=%s tail=%s level=%d keys=%d unique_keys=%d\n",
			ix.Name, ix.Expression, ix.Unique, ix.Head, ix.Tail, ix.MaxLevel, ix.KeyCount, ix.UniqueKeyCount)
	}
	return nil
}

func pageIDString(id uint32) string {
	if id == page.EmptyPageID {
		return "(empty)"
	}
	return fmt.Sprintf("%d", id)
}

// VerifyCmd re-checks the trailing checksum of every page and prints a
// BLAKE3 digest of the whole file, useful for comparing backups.
type VerifyCmd struct {
	File string `arg:"" help:"Database file."`
}

func (c *VerifyCmd) Run(log *zap.Logger) error {
	dm, err := flushmanager.Open(c.File, false, log)
	if err != nil {
		return err
	}
	defer dm.Close()

	bad := 0
	raw := make([]byte, page.PageSize)
	for pageID := uint32(0); pageID < dm.PageCount(); pageID++ {
		if err := dm.ReadPage(pageID, raw); err != nil {
			fmt.Printf("page %d: %v\n", pageID, err)
			bad++
		}
	}

	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()
	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return err
	}
	fmt.Printf("pages:  %d checked, %d bad\n", dm.PageCount(), bad)
	fmt.Printf("blake3: %x\n", hasher.Sum(nil))
	if bad > 0 {
		return fmt.Errorf("%d corrupted pages", bad)
	}
	return nil
}

// BackupCmd copies the database file chunk by chunk. The copy runs at
// lowered process priority and can be rate limited so it coexists with a
// live database.
type BackupCmd struct {
	File string `arg:"" help:"Database file."`
	Dest string `arg:"" help:"Destination path for the copy."`
	Rate int64  `name:"rate" default:"0" help:"Throughput cap in bytes per second, 0 for unlimited."`
}

func (c *BackupCmd) Run(log *zap.Logger) error {
	digest, err := common.BackupFile(context.Background(), c.File, c.Dest, c.Rate, log)
	if err != nil {
		return err
	}
	fmt.Printf("blake3: %x\n", digest)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("docustore_inspect"),
		kong.Description("Inspect and back up docustore database files"),
		kong.UsageOnError(),
	)

	log, err := logger.New(logger.Config{Level: CLI.LogLevel, Format: "console"})
	ctx.FatalIfErrorf(err)
	defer log.Sync()

	ctx.Bind(log)
	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}

package common

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// chunkSize: size of each read/write chunk
const chunkSize = 4 * 1024 * 1024 // 4 MiB

var bufPool = sync.Pool{
	New: func() interface{} { return make([]byte, chunkSize) },
}

func lowerPriority() error {
	// Increase niceness to 19 (lowest priority) so a running backup does
	// not starve foreground page I/O.
	const niceness = 19
	if err := syscall.Setpriority(syscall.PRIO_PROCESS, 0, niceness); err != nil {
		return fmt.Errorf("setpriority failed: %w", err)
	}
	return nil
}

// BackupFile copies the database file at srcPath to dstPath in chunks,
// throttled to rateBytesPerSec when positive. It returns the BLAKE3 digest
// of the bytes written so the copy can be checked against the source.
func BackupFile(ctx context.Context, srcPath, dstPath string, rateBytesPerSec int64, log *zap.Logger) ([]byte, error) {
	if err := lowerPriority(); err != nil {
		log.Debug("could not lower backup priority", zap.Error(err))
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open destination: %w", err)
	}
	defer dst.Close()

	var limiter *rate.Limiter
	if rateBytesPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(rateBytesPerSec), chunkSize)
	}

	hasher := blake3.New()
	var readOff int64

	for {
		buf := bufPool.Get().([]byte)
		n, rerr := src.ReadAt(buf[:chunkSize], readOff)
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(ctx, n); err != nil {
					bufPool.Put(buf)
					return nil, fmt.Errorf("rate limiter: %w", err)
				}
			}

			w := 0
			for w < n {
				m, werr := dst.Write(buf[w:n])
				if werr != nil {
					bufPool.Put(buf)
					return nil, fmt.Errorf("write chunk: %w", werr)
				}
				w += m
			}

			hasher.Write(buf[:n])
			readOff += int64(n)
		}
		bufPool.Put(buf)

		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return nil, fmt.Errorf("read chunk: %w", rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		return nil, fmt.Errorf("sync destination: %w", err)
	}

	digest := hasher.Sum(nil)
	log.Info("backup complete",
		zap.String("source", srcPath),
		zap.String("destination", dstPath),
		zap.Int64("bytes", readOff),
		zap.String("blake3", fmt.Sprintf("%x", digest)),
	)
	return digest, nil
}

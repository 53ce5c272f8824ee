// Copyright (C) 2025-2026 Cliprally, Inc.
// This file is part of cliprally
//
// cliprally is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// cliprally is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with cliprally.  If not, see <https://www.gnu.org/licenses/>.

package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/algorand/go-deadlock"
)

// ArchiveTimeToken is replaced in the archive pattern with the rotation
// time (UTC, 20060102T150405Z), so successive rotations keep distinct
// archive files instead of clobbering the previous one.
const ArchiveTimeToken = "{timestamp}"

// CyclicFileWriter is an io.Writer over a live log file. Once the file
// would grow past the size limit it is rotated to an archive path and a
// fresh live log is started.
type CyclicFileWriter struct {
	mu         deadlock.Mutex
	writer     *os.File
	liveLog    string
	archivePat string
	written    uint64
	limit      uint64
}

// MakeCyclicFileWriter opens (or continues) the live log file.
// archivePattern names the rotated file and may contain ArchiveTimeToken.
func MakeCyclicFileWriter(liveLogFilePath string, archivePattern string, sizeLimitBytes uint64) *CyclicFileWriter {
	cyclic := &CyclicFileWriter{
		liveLog:    liveLogFilePath,
		archivePat: archivePattern,
		limit:      sizeLimitBytes,
	}

	if fs, err := os.Stat(liveLogFilePath); err == nil {
		cyclic.written = uint64(fs.Size())
	}

	writer, err := os.OpenFile(liveLogFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		panic(fmt.Sprintf("logging: cannot open log file %s: %v", liveLogFilePath, err))
	}
	cyclic.writer = writer
	return cyclic
}

// Write appends p to the live log, rotating first when the write would
// push the file over the limit. Entries larger than the whole limit are
// rejected outright.
func (cyclic *CyclicFileWriter) Write(p []byte) (int, error) {
	cyclic.mu.Lock()
	defer cyclic.mu.Unlock()

	if uint64(len(p)) > cyclic.limit {
		return 0, fmt.Errorf("logging: entry of %d bytes exceeds the %d byte log size limit", len(p), cyclic.limit)
	}

	if cyclic.written+uint64(len(p)) > cyclic.limit {
		if err := cyclic.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := cyclic.writer.Write(p)
	cyclic.written += uint64(n)
	return n, err
}

func (cyclic *CyclicFileWriter) archivePath(now time.Time) string {
	return strings.ReplaceAll(cyclic.archivePat, ArchiveTimeToken, now.UTC().Format("20060102T150405Z"))
}

// rotate moves the full live log to its archive path and starts a fresh
// one. A failed rename is reported and the live log truncated in place:
// dropping old lines beats taking the daemon down over its own log file.
func (cyclic *CyclicFileWriter) rotate() error {
	cyclic.writer.Close()
	if err := os.Rename(cyclic.liveLog, cyclic.archivePath(time.Now())); err != nil {
		fmt.Fprintf(os.Stderr, "logging: cannot archive full log: %v\n", err)
	}

	writer, err := os.OpenFile(cyclic.liveLog, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("logging: cannot reopen log file %s: %w", cyclic.liveLog, err)
	}
	cyclic.writer = writer
	cyclic.written = 0
	return nil
}

// Copyright The Pyrite Authors
// SPDX-License-Identifier: Apache-2.0

package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"

	"github.com/pyrite-profiler/pyrite/profile"
)

// FileExporter writes each profile artifact as a gzip compressed JSON
// document into a directory, named after the profile id.
type FileExporter struct {
	dir string
}

var _ Exporter = (*FileExporter)(nil)

// NewFileExporter creates the output directory if needed and returns an
// exporter writing into it.
func NewFileExporter(dir string) (*FileExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &FileExporter{dir: dir}, nil
}

func (e *FileExporter) Export(_ context.Context, item *profile.WireItem) error {
	path := filepath.Join(e.dir, item.ProfileID+".json.gz")

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	zw := gzip.NewWriter(file)
	if err = json.NewEncoder(zw).Encode(item); err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode profile %s: %w", item.ProfileID, err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}

	log.Debugf("Wrote profile %s (%d samples) to %s",
		item.ProfileID, len(item.Samples), path)
	return nil
}

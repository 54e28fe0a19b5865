/*
Package export writes report text to files on disk.

PURPOSE:
  Callers build the CSV themselves and hand over the text. This package
  only decides where it lands and makes sure it is named *.csv. It sits
  outside the ledger: nothing here reads or changes ledger state, and
  its failures are plain I/O errors.

USAGE:
  exp := export.New("/home/me/Desktop", log)
  path, err := exp.SaveCSV("sales-march", content)
  // path == "/home/me/Desktop/sales-march.csv"
*/
package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidFilename is returned for names that are empty or would
// escape the export directory.
var ErrInvalidFilename = errors.New("invalid export filename")

// Exporter saves files into one directory.
type Exporter struct {
	dir string
	log zerolog.Logger
}

// New creates an Exporter rooted at dir.
func New(dir string, log zerolog.Logger) *Exporter {
	return &Exporter{dir: dir, log: log}
}

// Dir returns the directory files are written to.
func (e *Exporter) Dir() string {
	return e.dir
}

// SaveCSV writes content to filename inside the export directory,
// appending ".csv" when the name does not already end with it (any
// case). An existing file is overwritten. Returns the written path.
func (e *Exporter) SaveCSV(filename, content string) (string, error) {
	name, err := csvName(filename)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}

	target := filepath.Join(e.dir, name)
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}

	e.log.Info().Str("path", target).Int("bytes", len(content)).Msg("csv exported")
	return target, nil
}

func csvName(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return name, nil
}

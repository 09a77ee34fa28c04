package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"TrafficFeeds/internal/domain"
	"TrafficFeeds/internal/ports"
)

// DefaultPath is where FileExporter writes when no path is configured.
const DefaultPath = "data_out.txt"

const (
	blockFooter    = "~------------------------------~"
	exportFileMode = 0o644
)

// WriteText renders one block per non-empty bucket in canonical type order:
//
//	~----CC OBJECTS-----~
//	[CC Object at index 12]
//	~------------------------------~
//
// Blocks are separated by a blank line; there is no trailing newline.
func WriteText(w io.Writer, result domain.AggregateResult) error {
	blocks := make([]string, 0, len(domain.DataTypes()))
	for _, t := range domain.DataTypes() {
		records := result.Bucket(t)
		if len(records) == 0 {
			continue
		}

		var b strings.Builder
		fmt.Fprintf(&b, "~----%s OBJECTS-----~\n", t.Label())
		for _, record := range records {
			fmt.Fprintf(&b, "[%s Object at index %s]\n", t.Label(), recordIndex(record))
		}
		b.WriteString(blockFooter)
		blocks = append(blocks, b.String())
	}

	_, err := io.WriteString(w, strings.Join(blocks, "\n\n"))
	return err
}

func recordIndex(record domain.TaggedRecord) string {
	if record.Payload == nil {
		return "N/A"
	}
	if index := record.Payload.RecordIndex(); index != "" {
		return index.String()
	}
	return "N/A"
}

// FileExporter writes the text rendering of each snapshot to a file, replacing it.
type FileExporter struct {
	path   string
	logger *slog.Logger
}

var _ ports.Exporter = (*FileExporter)(nil)

// NewFileExporter targets path, or DefaultPath when empty.
func NewFileExporter(path string, logger *slog.Logger) *FileExporter {
	if strings.TrimSpace(path) == "" {
		path = DefaultPath
	}
	return &FileExporter{path: path, logger: logger}
}

// Path returns the output file location.
func (e *FileExporter) Path() string {
	return e.path
}

// Export renders snap and writes it atomically via a temp file in the same directory.
func (e *FileExporter) Export(ctx context.Context, snap domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := WriteText(&buf, snap.Result); err != nil {
		return fmt.Errorf("render export: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(e.path), ".trafficfeeds-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Chmod(exportFileMode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), e.path); err != nil {
		return fmt.Errorf("replace %s: %w", e.path, err)
	}

	if e.logger != nil {
		e.logger.Info("data written", "path", e.path, "generation", snap.Generation, "records", snap.Result.Len())
	}
	return nil
}

package tagfile

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/linkedin/goavro/v2"

	"github.com/photontag/tagstreamd/pkg/tagio"
)

// fsBackend writes one recording as a single Avro object-container file
// under a root directory, grounded on pkg/archive/fsBackend.go's path
// layout and pkg/metricstore avroCheckpoint.go's OCF writer usage, adapted
// from "reopen and rewrite a checkpoint" to "keep one writer open and
// append every batch to it for the recording's lifetime".
type fsBackend struct {
	dir    string
	file   *os.File
	writer *goavro.OCFWriter
}

func newFsBackend(dir string) *fsBackend {
	return &fsBackend{dir: dir}
}

// defaultRecordingName auto-generates a UTC-timestamped recording path
// when the caller supplies none (spec: "auto-generating a UTC-timestamped
// path if none supplied").
func defaultRecordingName(t time.Time) string {
	return fmt.Sprintf("tags_%s.avro", t.UTC().Format("20060102T150405Z"))
}

func (b *fsBackend) Open(path string) error {
	if b.file != nil {
		return fmt.Errorf("tagfile: fs backend already has an open recording")
	}
	if path == "" {
		path = defaultRecordingName(time.Now())
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(b.dir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("tagfile: create recording directory: %w", err)
	}

	// O_EXCL: refuses to overwrite an existing file (spec: "refuses to
	// overwrite").
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("tagfile: open %s: %w", path, err)
	}

	codec, err := newTagCodec()
	if err != nil {
		f.Close()
		return fmt.Errorf("tagfile: build tag codec: %w", err)
	}
	w, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               f,
		Codec:           codec,
		CompressionName: goavro.CompressionDeflateLabel,
	})
	if err != nil {
		f.Close()
		return fmt.Errorf("tagfile: create avro writer for %s: %w", path, err)
	}

	b.file = f
	b.writer = w
	return nil
}

func (b *fsBackend) Append(tags []tagio.Tag) error {
	if b.writer == nil {
		return fmt.Errorf("tagfile: append with no open recording")
	}
	records := make([]map[string]any, len(tags))
	for i, t := range tags {
		records[i] = tagRecord(t.Time, t.Channel)
	}
	if err := b.writer.Append(records); err != nil {
		return fmt.Errorf("tagfile: append %d tags: %w", len(tags), err)
	}
	return nil
}

func (b *fsBackend) Close() error {
	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	b.writer = nil
	return err
}

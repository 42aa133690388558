package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// record is the on-disk JSON shape
type record struct {
	Count *int64 `json:"count"`
}

// FileBackend keeps the count as a JSON record that is the entire content of one file
type FileBackend struct {
	path string
	log  logrus.FieldLogger
}

// NewFileBackend returns a backend for the JSON record at path.
// The file is not touched until the first Load or Save.
func NewFileBackend(path string, log logrus.FieldLogger) *FileBackend {
	return &FileBackend{
		path: path,
		log:  log.WithField("backend", "json"),
	}
}

// Path returns the record location
func (b *FileBackend) Path() string {
	return b.path
}

func (b *FileBackend) Load(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, persistErr("load", err)
	}

	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Snapshot{Source: SourceMissing}, nil
		}
		b.log.Warnf("[STORE]: cannot read %s, using 0: %v", b.path, err)
		return Snapshot{Source: SourceUnreadable}, nil
	}

	count, ok := decodeRecord(data)
	if !ok {
		b.log.Warnf("[STORE]: malformed record in %s, using 0", b.path)
		return Snapshot{Source: SourceCorrupt}, nil
	}
	return Snapshot{Count: count, Source: SourcePersisted}, nil
}

// decodeRecord accepts only a JSON object with a non-negative integer count
func decodeRecord(data []byte) (int64, bool) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false
	}
	if rec.Count == nil || *rec.Count < 0 {
		return 0, false
	}
	return *rec.Count, true
}

// Save replaces the record via a temp file and rename in the same directory
func (b *FileBackend) Save(ctx context.Context, count int64) error {
	if err := ctx.Err(); err != nil {
		return persistErr("save", err)
	}

	data, err := json.Marshal(record{Count: &count})
	if err != nil {
		return persistErr("encode", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return persistErr("mkdir", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return persistErr("create temp", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return persistErr("write", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return persistErr("sync", err)
	}
	if err := tmp.Close(); err != nil {
		return persistErr("close", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return persistErr("chmod", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return persistErr("rename", err)
	}
	b.log.Debugf("[STORE]: saved count=%d to %s", count, b.path)
	return nil
}

func (b *FileBackend) Close() error {
	return nil
}

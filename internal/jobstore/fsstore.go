package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"

	"posterforge/internal/pkg/errors"
)

// terminalMemoSize bounds the in-memory memo of finished records.
const terminalMemoSize = 1024

// FSStore keeps one JSON document per job under a directory. Writes go to a
// temp file in the same directory followed by a rename, so a concurrent
// reader sees either the old record or the new one, never a torn write.
//
// Terminal (DONE/ERROR) records are immutable, so reads memoize them in a
// bounded LRU and hot polling stays off the disk.
type FSStore struct {
	dir  string
	memo *lru.Cache[string, Record]
}

func NewFSStore(dir string) (*FSStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create jobs dir: %w", err)
	}
	memo, err := lru.New[string, Record](terminalMemoSize)
	if err != nil {
		return nil, err
	}
	return &FSStore{dir: dir, memo: memo}, nil
}

func (s *FSStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FSStore) Create(ctx context.Context, id string, rec Record) error {
	if _, err := os.Stat(s.path(id)); err == nil {
		return errors.AlreadyExists("job", id)
	}
	return s.write(id, rec)
}

func (s *FSStore) Overwrite(ctx context.Context, id string, rec Record) error {
	return s.write(id, rec)
}

func (s *FSStore) Read(ctx context.Context, id string) (Record, error) {
	if rec, ok := s.memo.Get(id); ok {
		return rec, nil
	}

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, errors.NotFound("job", id)
		}
		return Record{}, errors.Wrap(err, "jobstore.read", "read job record")
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(err, "jobstore.read", "decode job record")
	}

	if rec.Status.Terminal() {
		s.memo.Add(id, rec)
	}
	return rec, nil
}

func (s *FSStore) write(id string, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "jobstore.write", "encode job record")
	}

	// Temp file in the same directory keeps the rename on one volume.
	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "jobstore.write", "create temp record")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "jobstore.write", "write temp record")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "jobstore.write", "close temp record")
	}
	if err := os.Rename(tmpName, s.path(id)); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "jobstore.write", "commit job record")
	}

	if rec.Status.Terminal() {
		s.memo.Add(id, rec)
	}
	return nil
}

package ackstore

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "calalert/pkg/logx"
)

// fileStore is the dependency-light backend.
//
// Files:
//   - <prefix>.acks.snapshot.json (periodic snapshot)
//   - <prefix>.acks.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journalFile  *os.File
	acks         map[string]int64 // key -> fire unix milli

	writes int
}

type ackRecord struct {
	Key  string `json:"key"`
	Fire int64  `json:"fire"`
}

const compactEvery = 1000

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("ackstore path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".acks.snapshot.json"
	journalPath := prefix + ".acks.journal.jsonl"

	acks := map[string]int64{}
	_ = loadSnapshot(snapPath, acks)
	_ = replayJournal(journalPath, acks)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journalFile:  jf,
		acks:         acks,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

func (s *fileStore) Has(ctx context.Context, key string) (bool, error) {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.acks[key]
	return ok, nil
}

func (s *fileStore) Record(ctx context.Context, key string, fire time.Time) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return errors.New("ack journal closed")
	}
	if _, ok := s.acks[key]; ok {
		// Append-only: the first record wins.
		return nil
	}
	s.acks[key] = fire.UnixMilli()

	enc := json.NewEncoder(s.journalFile)
	if err := enc.Encode(ackRecord{Key: key, Fire: fire.UnixMilli()}); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Debug("ack compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) PruneOlderThan(ctx context.Context, cutoff time.Time) error {
	_ = ctx
	cut := cutoff.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, fire := range s.acks {
		if fire < cut {
			delete(s.acks, k)
			removed++
		}
	}
	if removed == 0 {
		return nil
	}
	s.log.Debug("pruned acknowledgments", logx.Int("removed", removed))
	return s.compactLocked()
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.acks); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if s.journalFile == nil {
		return nil
	}
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r ackRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Key == "" {
			continue
		}
		if _, ok := out[r.Key]; ok {
			continue
		}
		out[r.Key] = r.Fire
	}
	return sc.Err()
}

package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.users.json       (atomic snapshot of the user set)
//   - <prefix>.deliveries.jsonl (append-only JSON Lines audit trail)
//
// Pruning rewrites the deliveries file in place (tmp + rename).
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	usersPath      string
	deliveriesPath string

	deliveriesFile *os.File
	userSet        map[int64]users.User
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	usersPath := prefix + ".users.json"
	deliveriesPath := prefix + ".deliveries.jsonl"

	userSet := map[int64]users.User{}
	if err := loadUserSnapshot(usersPath, userSet); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("user snapshot load failed", logx.String("path", usersPath), logx.Err(err))
	}

	df, err := os.OpenFile(deliveriesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:            log,
		usersPath:      usersPath,
		deliveriesPath: deliveriesPath,
		deliveriesFile: df,
		userSet:        userSet,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveriesFile != nil {
		err := s.deliveriesFile.Close()
		s.deliveriesFile = nil
		return err
	}
	return nil
}

func (s *fileStore) All(ctx context.Context) ([]users.User, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]users.User, 0, len(s.userSet))
	for _, u := range s.userSet {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fileStore) PutUser(ctx context.Context, u users.User) error {
	_ = ctx
	if u.ID == 0 {
		return errors.New("user id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userSet == nil {
		s.userSet = map[int64]users.User{}
	}
	s.userSet[u.ID] = u
	return s.writeUserSnapshotLocked()
}

func (s *fileStore) AppendDelivery(ctx context.Context, rec DeliveryRecord) error {
	_ = ctx
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveriesFile == nil {
		return errors.New("deliveries file closed")
	}
	return json.NewEncoder(s.deliveriesFile).Encode(rec)
}

func (s *fileStore) PruneDeliveries(ctx context.Context, olderThan time.Time) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveriesFile == nil {
		return 0, errors.New("deliveries file closed")
	}

	in, err := os.Open(s.deliveriesPath)
	if err != nil {
		return 0, err
	}

	tmp := s.deliveriesPath + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		_ = in.Close()
		return 0, err
	}

	var removed int64
	enc := json.NewEncoder(out)
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		var rec DeliveryRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			removed++
			continue
		}
		if rec.At.Before(olderThan) {
			removed++
			continue
		}
		if err := enc.Encode(rec); err != nil {
			_ = in.Close()
			_ = out.Close()
			return 0, err
		}
	}
	scanErr := sc.Err()
	_ = in.Close()
	if err := out.Close(); err != nil {
		return 0, err
	}
	if scanErr != nil {
		return 0, scanErr
	}

	// Swap the files, then reopen the append handle.
	_ = s.deliveriesFile.Close()
	s.deliveriesFile = nil
	if err := os.Rename(tmp, s.deliveriesPath); err != nil {
		return 0, err
	}
	df, err := os.OpenFile(s.deliveriesPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return removed, err
	}
	s.deliveriesFile = df
	return removed, nil
}

func (s *fileStore) writeUserSnapshotLocked() error {
	tmp := s.usersPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.userSet); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, s.usersPath)
}

func loadUserSnapshot(path string, out map[int64]users.User) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[int64]users.User
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for id, u := range m {
		out[id] = u
	}
	return nil
}

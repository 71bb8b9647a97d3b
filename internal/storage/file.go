package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "roomcast/pkg/logx"
)

// ringSize bounds the in-memory tail served by RecentOutcomes.
const ringSize = 500

// fileStore appends outcomes to <prefix>.outcomes.jsonl and keeps the most
// recent ones in memory. The tail is rebuilt from the file on open.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	f      *os.File
	recent []OutcomeRecord // oldest first
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	outPath := filepath.Join(dir, base) + ".outcomes.jsonl"

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	recent, skipped, err := loadTail(outPath, ringSize)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("skipped malformed outcome lines", logx.Int("count", skipped), logx.String("path", outPath))
	}

	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, f: f, recent: recent}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) AppendOutcome(ctx context.Context, r OutcomeRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.f).Encode(r); err != nil {
		return err
	}
	s.recent = append(s.recent, r)
	if over := len(s.recent) - ringSize; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
	return nil
}

func (s *fileStore) RecentOutcomes(ctx context.Context, limit int) ([]OutcomeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil, ErrClosed
	}
	n := min(limit, len(s.recent))
	out := make([]OutcomeRecord, 0, n)
	for i := len(s.recent) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recent[i])
	}
	return out, nil
}

// loadTail reads the last max records of a JSONL file. Malformed lines are
// counted and skipped.
func loadTail(path string, max int) ([]OutcomeRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var (
		out     []OutcomeRecord
		skipped int
	)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var r OutcomeRecord
		if err := json.Unmarshal(line, &r); err != nil {
			skipped++
			continue
		}
		out = append(out, r)
		if len(out) > max {
			out = out[1:]
		}
	}
	return out, skipped, sc.Err()
}

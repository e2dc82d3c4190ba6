package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/ggonzalez94/swap-cli/internal/model"
)

// Store persists confirmed swap records for the history command and
// success-state rendering.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS swaps (
			tx_hash TEXT PRIMARY KEY,
			chain_id INTEGER NOT NULL,
			from_symbol TEXT NOT NULL,
			to_symbol TEXT NOT NULL,
			submitted_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_swaps_submitted ON swaps(submitted_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init history schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveSwap(info model.SwapTxInfo) error {
	if strings.TrimSpace(info.TxHash) == "" {
		return fmt.Errorf("save swap: missing tx hash")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock history store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock history store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal swap record: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO swaps (tx_hash, chain_id, from_symbol, to_symbol, submitted_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tx_hash) DO UPDATE SET payload=excluded.payload
	`, info.TxHash, info.ChainID, info.FromSymbol, info.ToSymbol, info.SubmittedAt.Unix(), payload)
	if err != nil {
		return fmt.Errorf("write swap record: %w", err)
	}
	return nil
}

// Recent returns the most recently submitted swaps, newest first.
func (s *Store) Recent(limit int) ([]model.SwapTxInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query("SELECT payload FROM swaps ORDER BY submitted_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("read swap history: %w", err)
	}
	defer rows.Close()

	var out []model.SwapTxInfo
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan swap record: %w", err)
		}
		var info model.SwapTxInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			return nil, fmt.Errorf("decode swap record: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

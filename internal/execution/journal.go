package execution

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Journal persists every submitted transaction so the agent can answer
// "what did you do" across restarts. Entries are keyed by a generated id;
// the tx hash is indexed once known.
type Journal struct {
	db   *sql.DB
	lock *flock.Flock
}

type JournalEntry struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	ChainID   int64  `json:"chain_id"`
	TxHash    string `json:"tx_hash,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"`
	Data      string `json:"data,omitempty"`
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
}

func OpenJournal(path, lockPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create journal lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS tx_journal (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			chain_id INTEGER NOT NULL,
			tx_hash TEXT,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_tx_journal_hash ON tx_journal(tx_hash);",
		"CREATE INDEX IF NOT EXISTS idx_tx_journal_created ON tx_journal(created_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init journal schema: %w", err)
		}
	}
	return &Journal{db: db, lock: flock.New(lockPath)}, nil
}

func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record writes one entry for the current state of a submission. Each call
// inserts a new row; the journal is append-only.
func (j *Journal) Record(rec TxRecord, req TxRequest, cause error) error {
	if j == nil || j.db == nil {
		return nil
	}
	locked, err := j.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock journal: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock journal: timeout acquiring lock")
	}
	defer func() { _ = j.lock.Unlock() }()

	entry := JournalEntry{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		ChainID:   rec.ChainID,
		From:      rec.From.Hex(),
		To:        rec.To.Hex(),
		Value:     valueOrZero(rec.Value).String(),
		Status:    string(rec.Status),
		Note:      req.Description,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if rec.Hash != (common.Hash{}) {
		entry.TxHash = rec.Hash.Hex()
	}
	if len(rec.Data) > 0 {
		entry.Data = "0x" + hex.EncodeToString(rec.Data)
	}
	if cause != nil {
		entry.Error = cause.Error()
	}

	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	createdUnix := time.Now().UTC().Unix()
	_, err = j.db.Exec(`
		INSERT INTO tx_journal (id, kind, chain_id, tx_hash, status, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Kind, entry.ChainID, entry.TxHash, entry.Status, createdUnix, payload)
	if err != nil {
		return fmt.Errorf("record journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, optionally filtered by kind.
func (j *Journal) Recent(kind string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(kind) == "" {
		rows, err = j.db.Query("SELECT payload FROM tx_journal ORDER BY created_at DESC, id LIMIT ?", limit)
	} else {
		rows, err = j.db.Query("SELECT payload FROM tx_journal WHERE kind = ? ORDER BY created_at DESC, id LIMIT ?", kind, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list journal entries: %w", err)
	}
	defer rows.Close()

	entries := make([]JournalEntry, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		var entry JournalEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode journal row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}
	return entries, nil
}

// ByHash returns the newest entry for a transaction hash.
func (j *Journal) ByHash(txHash string) (JournalEntry, error) {
	var payload []byte
	err := j.db.QueryRow(
		"SELECT payload FROM tx_journal WHERE tx_hash = ? ORDER BY created_at DESC LIMIT 1",
		txHash,
	).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return JournalEntry{}, fmt.Errorf("journal entry not found for %s", txHash)
		}
		return JournalEntry{}, fmt.Errorf("read journal entry: %w", err)
	}
	var entry JournalEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return JournalEntry{}, fmt.Errorf("decode journal entry: %w", err)
	}
	return entry, nil
}

package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// metaIndex is a SQLite-backed index of checkpoint runs: when each one was
// taken, which tables it covers, and the JSON-serialized item snapshots
// (compressed payload bytes live in the bolt blob store instead, since
// item metadata is small and text-like but chunk payloads are not).
type metaIndex struct {
	db *sql.DB
	mu sync.Mutex
}

type checkpointRow struct {
	ID        int64
	Path      string
	CreatedAt time.Time
	Tables    []TableSnapshot
}

func openMetaIndex(dbPath string) (*metaIndex, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open index: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			tables_json TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_created_at ON checkpoints(created_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: init schema: %w", err)
	}
	return &metaIndex{db: db}, nil
}

func (m *metaIndex) Close() error { return m.db.Close() }

// Record inserts a new checkpoint row and returns its id.
func (m *metaIndex) Record(path string, createdAt time.Time, tables []TableSnapshot) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tablesJSON, err := json.Marshal(tables)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: marshal tables: %w", err)
	}
	res, err := m.db.Exec(
		"INSERT INTO checkpoints (path, created_at, tables_json) VALUES (?, ?, ?)",
		path, createdAt, string(tablesJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("checkpoint: insert row: %w", err)
	}
	return res.LastInsertId()
}

// Latest returns the most recently recorded checkpoint, or ErrNotFound.
func (m *metaIndex) Latest() (checkpointRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryOneLocked("SELECT id, path, created_at, tables_json FROM checkpoints ORDER BY created_at DESC LIMIT 1")
}

// Oldest returns the earliest recorded checkpoint, or ErrNotFound; it backs
// LoadFallbackCheckpoint, which §4.9 step 1 tries when LoadLatest reports
// ErrNotFound.
func (m *metaIndex) Oldest() (checkpointRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryOneLocked("SELECT id, path, created_at, tables_json FROM checkpoints ORDER BY created_at ASC LIMIT 1")
}

func (m *metaIndex) queryOneLocked(query string) (checkpointRow, error) {
	var row checkpointRow
	var tablesJSON string
	err := m.db.QueryRow(query).Scan(&row.ID, &row.Path, &row.CreatedAt, &tablesJSON)
	if err == sql.ErrNoRows {
		return checkpointRow{}, ErrNotFound
	}
	if err != nil {
		return checkpointRow{}, fmt.Errorf("checkpoint: query: %w", err)
	}
	if err := json.Unmarshal([]byte(tablesJSON), &row.Tables); err != nil {
		return checkpointRow{}, fmt.Errorf("checkpoint: unmarshal tables: %w", err)
	}
	return row, nil
}

// PruneExcept keeps only the `keep` most recent rows and returns the
// retained rows' referenced chunk keys, for the blob store GC pass.
func (m *metaIndex) PruneExcept(keep int) (map[uint64]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, err := m.db.Query("SELECT id, tables_json FROM checkpoints ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: list rows: %w", err)
	}
	defer rows.Close()

	type entry struct {
		id     int64
		tables []TableSnapshot
	}
	var all []entry
	for rows.Next() {
		var e entry
		var tablesJSON string
		if err := rows.Scan(&e.id, &tablesJSON); err != nil {
			return nil, fmt.Errorf("checkpoint: scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(tablesJSON), &e.tables); err != nil {
			return nil, fmt.Errorf("checkpoint: unmarshal tables: %w", err)
		}
		all = append(all, e)
	}

	keptKeys := make(map[uint64]struct{})
	if keep < 0 {
		keep = 0
	}
	for i, e := range all {
		if i < keep {
			for _, t := range e.tables {
				for _, it := range t.Items {
					for _, c := range it.Chunks {
						keptKeys[c.ChunkKey] = struct{}{}
					}
				}
			}
			continue
		}
		if _, err := m.db.Exec("DELETE FROM checkpoints WHERE id = ?", e.id); err != nil {
			return nil, fmt.Errorf("checkpoint: prune row %d: %w", e.id, err)
		}
	}
	return keptKeys, nil
}

// Count returns the number of recorded checkpoints, for DebugString.
func (m *metaIndex) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	_ = m.db.QueryRow("SELECT COUNT(*) FROM checkpoints").Scan(&n)
	return n
}

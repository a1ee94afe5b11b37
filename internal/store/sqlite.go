package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// SQLite is the persistent Store implementation. Entities live in a
// single table keyed by opaque id; relation membership is a separate
// position-ordered table so incoming-edge traversal is one indexed
// query.
type SQLite struct {
	mu   sync.RWMutex
	db   *sql.DB
	log  *zap.Logger
	path string
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entities (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL CHECK (kind IN ('node', 'relation')),
	type       TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	strength   REAL NOT NULL DEFAULT 0,
	confidence REAL NOT NULL DEFAULT 0,
	seq        INTEGER
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_entities_node_key
	ON entities(type, label) WHERE kind = 'node';
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(type);

CREATE TABLE IF NOT EXISTS relation_members (
	relation_id TEXT NOT NULL,
	position    INTEGER NOT NULL,
	member_id   TEXT NOT NULL,
	PRIMARY KEY (relation_id, position)
);
CREATE INDEX IF NOT EXISTS idx_members_member ON relation_members(member_id);
`

// NewSQLite opens (creating if needed) the store database at path.
func NewSQLite(path string, log *zap.Logger) (*SQLite, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		log.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		log.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		log.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}

	log.Info("sqlite store opened", zap.String("path", path))
	return &SQLite{db: db, log: log, path: path}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// nextSeq returns the next insertion sequence number. Caller holds s.mu.
func (s *SQLite) nextSeq() (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(seq) FROM entities").Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64 + 1, nil
}

// CreateNode finds or creates the node with the given type and label.
func (s *SQLite) CreateNode(nodeType, label string) (Ref, error) {
	if nodeType == "" {
		return NilRef, fmt.Errorf("node type must be non-empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id string
	err := s.db.QueryRow(
		"SELECT id FROM entities WHERE kind = 'node' AND type = ? AND label = ?",
		nodeType, label,
	).Scan(&id)
	if err == nil {
		return Ref(id), nil
	}
	if err != sql.ErrNoRows {
		s.log.Error("node lookup failed", zap.Error(err))
		return NilRef, fmt.Errorf("node lookup failed: %w", err)
	}

	seq, err := s.nextSeq()
	if err != nil {
		return NilRef, fmt.Errorf("sequence lookup failed: %w", err)
	}
	id = uuid.NewString()
	_, err = s.db.Exec(
		"INSERT INTO entities (id, kind, type, label, seq) VALUES (?, 'node', ?, ?, ?)",
		id, nodeType, label, seq,
	)
	if err != nil {
		s.log.Error("node insert failed", zap.Error(err))
		return NilRef, fmt.Errorf("node insert failed: %w", err)
	}
	return Ref(id), nil
}

// CreateRelation finds or creates a relation over the given members.
func (s *SQLite) CreateRelation(relType string, members []Ref) (Ref, error) {
	if relType == "" {
		return NilRef, fmt.Errorf("relation type must be non-empty")
	}
	if len(members) == 0 {
		return NilRef, fmt.Errorf("relation requires at least one member")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range members {
		var n int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM entities WHERE id = ?", string(m)).Scan(&n); err != nil {
			return NilRef, fmt.Errorf("member lookup failed: %w", err)
		}
		if n == 0 {
			return NilRef, fmt.Errorf("unknown member ref %q", m)
		}
	}

	if id, ok := s.findRelation(relType, members); ok {
		return id, nil
	}

	seq, err := s.nextSeq()
	if err != nil {
		return NilRef, fmt.Errorf("sequence lookup failed: %w", err)
	}
	id := uuid.NewString()
	tx, err := s.db.Begin()
	if err != nil {
		return NilRef, fmt.Errorf("relation insert failed: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO entities (id, kind, type, seq) VALUES (?, 'relation', ?, ?)",
		id, relType, seq,
	); err != nil {
		tx.Rollback()
		return NilRef, fmt.Errorf("relation insert failed: %w", err)
	}
	for i, m := range members {
		if _, err := tx.Exec(
			"INSERT INTO relation_members (relation_id, position, member_id) VALUES (?, ?, ?)",
			id, i, string(m),
		); err != nil {
			tx.Rollback()
			return NilRef, fmt.Errorf("relation member insert failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return NilRef, fmt.Errorf("relation insert failed: %w", err)
	}
	return Ref(id), nil
}

// findRelation looks for an existing relation with the exact member
// list. Caller holds s.mu.
func (s *SQLite) findRelation(relType string, members []Ref) (Ref, bool) {
	rows, err := s.db.Query(
		`SELECT e.id FROM entities e
		 JOIN relation_members m ON m.relation_id = e.id AND m.position = 0
		 WHERE e.kind = 'relation' AND e.type = ? AND m.member_id = ?`,
		relType, string(members[0]),
	)
	if err != nil {
		s.log.Warn("relation lookup failed", zap.Error(err))
		return NilRef, false
	}
	defer rows.Close()

	var candidates []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		candidates = append(candidates, id)
	}

	for _, id := range candidates {
		got, err := s.membersLocked(Ref(id))
		if err != nil || len(got) != len(members) {
			continue
		}
		match := true
		for i := range members {
			if got[i] != members[i] {
				match = false
				break
			}
		}
		if match {
			return Ref(id), true
		}
	}
	return NilRef, false
}

// SetTruthValue attaches a clamped truth value to the entity.
func (s *SQLite) SetTruthValue(ref Ref, tv TruthValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tv = tv.Clamp()
	res, err := s.db.Exec(
		"UPDATE entities SET strength = ?, confidence = ? WHERE id = ?",
		tv.Strength, tv.Confidence, string(ref),
	)
	if err != nil {
		return fmt.Errorf("truth value update failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("unknown ref %q", ref)
	}
	return nil
}

// GetTruthValue returns the entity's truth value.
func (s *SQLite) GetTruthValue(ref Ref) (TruthValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tv TruthValue
	err := s.db.QueryRow(
		"SELECT strength, confidence FROM entities WHERE id = ?", string(ref),
	).Scan(&tv.Strength, &tv.Confidence)
	if err == sql.ErrNoRows {
		return TruthValue{}, fmt.Errorf("unknown ref %q", ref)
	}
	if err != nil {
		return TruthValue{}, fmt.Errorf("truth value lookup failed: %w", err)
	}
	return tv, nil
}

// Incoming returns every relation referencing ref, in creation order.
func (s *SQLite) Incoming(ref Ref) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT DISTINCT m.relation_id FROM relation_members m
		 JOIN entities e ON e.id = m.relation_id
		 WHERE m.member_id = ? ORDER BY e.seq`,
		string(ref),
	)
	if err != nil {
		return nil, fmt.Errorf("incoming query failed: %w", err)
	}
	defer rows.Close()

	var out []Ref
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			s.log.Warn("incoming row scan failed", zap.Error(err))
			continue
		}
		out = append(out, Ref(id))
	}
	return out, nil
}

// Members returns the ordered member set of a relation.
func (s *SQLite) Members(ref Ref) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.membersLocked(ref)
}

func (s *SQLite) membersLocked(ref Ref) ([]Ref, error) {
	rows, err := s.db.Query(
		"SELECT member_id FROM relation_members WHERE relation_id = ? ORDER BY position",
		string(ref),
	)
	if err != nil {
		return nil, fmt.Errorf("member query failed: %w", err)
	}
	defer rows.Close()

	var out []Ref
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		out = append(out, Ref(id))
	}
	return out, nil
}

// Label returns the node's name. Relations yield an empty string.
func (s *SQLite) Label(ref Ref) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var label string
	err := s.db.QueryRow("SELECT label FROM entities WHERE id = ?", string(ref)).Scan(&label)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("unknown ref %q", ref)
	}
	if err != nil {
		return "", fmt.Errorf("label lookup failed: %w", err)
	}
	return label, nil
}

// TypeOf returns the node or relation type.
func (s *SQLite) TypeOf(ref Ref) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t string
	err := s.db.QueryRow("SELECT type FROM entities WHERE id = ?", string(ref)).Scan(&t)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("unknown ref %q", ref)
	}
	if err != nil {
		return "", fmt.Errorf("type lookup failed: %w", err)
	}
	return t, nil
}

// QueryByType returns all entities of the given type in creation order.
// An empty type matches every entity.
func (s *SQLite) QueryByType(t string) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rows *sql.Rows
		err  error
	)
	if t == "" {
		rows, err = s.db.Query("SELECT id FROM entities ORDER BY seq")
	} else {
		rows, err = s.db.Query("SELECT id FROM entities WHERE type = ? ORDER BY seq", t)
	}
	if err != nil {
		return nil, fmt.Errorf("type query failed: %w", err)
	}
	defer rows.Close()

	var out []Ref
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		out = append(out, Ref(id))
	}
	return out, nil
}

// QueryByName returns the nodes of type t whose label matches exactly.
func (s *SQLite) QueryByName(t, label string) ([]Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id FROM entities WHERE kind = 'node' AND type = ? AND label = ? ORDER BY seq",
		t, label,
	)
	if err != nil {
		return nil, fmt.Errorf("name query failed: %w", err)
	}
	defer rows.Close()

	var out []Ref
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		out = append(out, Ref(id))
	}
	return out, nil
}

// Size returns the number of stored entities. Query failures degrade
// to zero rather than erroring, matching the contract's read-side
// failure policy.
func (s *SQLite) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM entities").Scan(&n); err != nil {
		s.log.Error("size query failed", zap.Error(err))
		return 0
	}
	return n
}

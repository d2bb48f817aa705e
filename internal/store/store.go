// Package store provides the on-device SQLite store for karuta's two study
// collections. It is the system of record whenever no account session exists.
//
// The database runs in embedded mode using ncruces/go-sqlite3 with WAL for
// concurrent reads:
//   - Database file: ~/.karuta/karuta.db (configurable)
//   - Schema: vocab_entries, grammar_entries, sync_meta tables
//   - Ordering: all listing queries return newest entries first
//
// Store reads never fail on an empty database; an uninitialized collection is
// an empty slice, not an error.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/karuta-app/karuta/internal/deck"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the embedded SQLite connection.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads. If it
// doesn't exist it is created; call InitSchema before first use.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return s, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// InitSchema creates the tables and indexes if they don't exist.
// Idempotent - safe to call multiple times.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS vocab_entries (
		id TEXT PRIMARY KEY,
		kanji TEXT NOT NULL,
		reading TEXT NOT NULL DEFAULT '',
		meaning TEXT NOT NULL,
		part_of_speech TEXT NOT NULL DEFAULT 'other',
		example_sentence TEXT NOT NULL DEFAULT '',
		example_reading TEXT NOT NULL DEFAULT '',
		example_translation TEXT NOT NULL DEFAULT '',
		conjugations TEXT,  -- JSON object, NULL for non-verbs
		saved INTEGER NOT NULL DEFAULT 0,
		mastery INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL  -- epoch milliseconds
	);

	CREATE TABLE IF NOT EXISTS grammar_entries (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		explanation TEXT NOT NULL,
		example TEXT NOT NULL DEFAULT '',
		rating INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	-- Sync bookkeeping (last_synced_at and friends)
	CREATE TABLE IF NOT EXISTS sync_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_vocab_created ON vocab_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_vocab_pos ON vocab_entries(part_of_speech);
	CREATE INDEX IF NOT EXISTS idx_vocab_mastery ON vocab_entries(mastery);
	CREATE INDEX IF NOT EXISTS idx_grammar_created ON grammar_entries(created_at);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// VocabFilter configures ListVocab. The zero value matches everything.
type VocabFilter struct {
	// PartOfSpeech filters by tag (empty = all)
	PartOfSpeech deck.PartOfSpeech
	// Mastery filters by exact level (-1 = all levels)
	Mastery int
	// SavedOnly restricts to bookmarked entries
	SavedOnly bool
	// CreatedSince restricts to entries created at or after this time
	// (epoch milliseconds, 0 = no restriction)
	CreatedSince int64
}

// AllVocab returns every vocabulary entry, newest first.
// An uninitialized store yields an empty slice.
func (s *Store) AllVocab(ctx context.Context) ([]*deck.VocabularyEntry, error) {
	return s.ListVocab(ctx, VocabFilter{Mastery: -1})
}

// ListVocab returns vocabulary entries matching the filter, newest first.
func (s *Store) ListVocab(ctx context.Context, filter VocabFilter) ([]*deck.VocabularyEntry, error) {
	var conditions []string
	var args []interface{}

	if filter.PartOfSpeech != "" {
		conditions = append(conditions, "part_of_speech = ?")
		args = append(args, string(filter.PartOfSpeech))
	}
	if filter.Mastery >= 0 {
		conditions = append(conditions, "mastery = ?")
		args = append(args, filter.Mastery)
	}
	if filter.SavedOnly {
		conditions = append(conditions, "saved = 1")
	}
	if filter.CreatedSince > 0 {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.CreatedSince)
	}

	query := `
	SELECT id, kanji, reading, meaning, part_of_speech,
	       example_sentence, example_reading, example_translation,
	       conjugations, saved, mastery, created_at
	FROM vocab_entries
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list vocabulary: %w", err)
	}
	defer rows.Close()

	return scanVocab(rows)
}

// GetVocab retrieves a single vocabulary entry by ID.
// Returns sql.ErrNoRows if the entry is not found.
func (s *Store) GetVocab(ctx context.Context, id string) (*deck.VocabularyEntry, error) {
	query := `
	SELECT id, kanji, reading, meaning, part_of_speech,
	       example_sentence, example_reading, example_translation,
	       conjugations, saved, mastery, created_at
	FROM vocab_entries
	WHERE id = ?
	`
	rows, err := s.conn.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query vocabulary entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanVocab(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, sql.ErrNoRows
	}
	return entries[0], nil
}

// UpsertVocab inserts or fully overwrites vocabulary entries by ID.
// Idempotent - upserting the same batch twice leaves identical state.
func (s *Store) UpsertVocab(ctx context.Context, entries []*deck.VocabularyEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO vocab_entries (
		id, kanji, reading, meaning, part_of_speech,
		example_sentence, example_reading, example_translation,
		conjugations, saved, mastery, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		kanji = excluded.kanji,
		reading = excluded.reading,
		meaning = excluded.meaning,
		part_of_speech = excluded.part_of_speech,
		example_sentence = excluded.example_sentence,
		example_reading = excluded.example_reading,
		example_translation = excluded.example_translation,
		conjugations = excluded.conjugations,
		saved = excluded.saved,
		mastery = excluded.mastery,
		created_at = excluded.created_at
	`

	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("invalid vocabulary entry: %w", err)
		}
		conj, err := deck.MarshalConjugations(e.Conjugations)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query,
			e.ID, e.Kanji, e.Reading, e.Meaning, string(e.PartOfSpeech),
			e.Example.Sentence, e.Example.Reading, e.Example.Translation,
			nullString(conj), boolToInt(e.Saved), int(e.Mastery), e.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert vocabulary entry %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// VocabPatch describes a partial update. Nil fields are left untouched.
type VocabPatch struct {
	Saved   *bool
	Mastery *deck.Mastery
}

// UpdateVocab merges the supplied fields into an existing entry.
// An unknown ID is a silent no-op, not an error; callers only update entries
// they have already read.
func (s *Store) UpdateVocab(ctx context.Context, id string, patch VocabPatch) error {
	var sets []string
	var args []interface{}

	if patch.Saved != nil {
		sets = append(sets, "saved = ?")
		args = append(args, boolToInt(*patch.Saved))
	}
	if patch.Mastery != nil {
		if !patch.Mastery.Valid() {
			return fmt.Errorf("mastery level out of range: %d", *patch.Mastery)
		}
		sets = append(sets, "mastery = ?")
		args = append(args, int(*patch.Mastery))
	}
	if len(sets) == 0 {
		return nil
	}

	query := "UPDATE vocab_entries SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)

	if _, err := s.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update vocabulary entry %s: %w", id, err)
	}
	return nil
}

// DeleteVocab removes a vocabulary entry. No-op if absent (idempotent).
func (s *Store) DeleteVocab(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM vocab_entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete vocabulary entry %s: %w", id, err)
	}
	return nil
}

// AllGrammar returns every grammar entry, newest first.
func (s *Store) AllGrammar(ctx context.Context) ([]*deck.GrammarEntry, error) {
	return s.ListGrammar(ctx, GrammarFilter{})
}

// GrammarFilter configures ListGrammar. The zero value matches everything.
type GrammarFilter struct {
	// BookmarkedOnly restricts to entries with a nonzero rating
	BookmarkedOnly bool
	// CreatedSince restricts to entries created at or after this time
	// (epoch milliseconds, 0 = no restriction)
	CreatedSince int64
}

// ListGrammar returns grammar entries matching the filter, newest first.
func (s *Store) ListGrammar(ctx context.Context, filter GrammarFilter) ([]*deck.GrammarEntry, error) {
	var conditions []string
	var args []interface{}

	if filter.BookmarkedOnly {
		conditions = append(conditions, "rating > 0")
	}
	if filter.CreatedSince > 0 {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.CreatedSince)
	}

	query := `
	SELECT id, label, explanation, example, rating, created_at
	FROM grammar_entries
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list grammar: %w", err)
	}
	defer rows.Close()

	return scanGrammar(rows)
}

// GetGrammar retrieves a single grammar entry by ID.
// Returns sql.ErrNoRows if the entry is not found.
func (s *Store) GetGrammar(ctx context.Context, id string) (*deck.GrammarEntry, error) {
	var g deck.GrammarEntry
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, label, explanation, example, rating, created_at FROM grammar_entries WHERE id = ?", id,
	).Scan(&g.ID, &g.Label, &g.Explanation, &g.Example, &g.Rating, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query grammar entry: %w", err)
	}
	return &g, nil
}

// UpsertGrammar inserts or fully overwrites grammar entries by ID.
func (s *Store) UpsertGrammar(ctx context.Context, entries []*deck.GrammarEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO grammar_entries (id, label, explanation, example, rating, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		label = excluded.label,
		explanation = excluded.explanation,
		example = excluded.example,
		rating = excluded.rating,
		created_at = excluded.created_at
	`

	for _, g := range entries {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("invalid grammar entry: %w", err)
		}
		_, err = tx.ExecContext(ctx, query,
			g.ID, g.Label, g.Explanation, g.Example, g.Rating, g.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert grammar entry %s: %w", g.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RateGrammar sets the star rating on an existing entry.
// An unknown ID is a silent no-op.
func (s *Store) RateGrammar(ctx context.Context, id string, rating int) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("rating out of range: %d", rating)
	}
	if _, err := s.conn.ExecContext(ctx, "UPDATE grammar_entries SET rating = ? WHERE id = ?", rating, id); err != nil {
		return fmt.Errorf("failed to rate grammar entry %s: %w", id, err)
	}
	return nil
}

// DeleteGrammar removes a grammar entry. No-op if absent (idempotent).
func (s *Store) DeleteGrammar(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM grammar_entries WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete grammar entry %s: %w", id, err)
	}
	return nil
}

// GetMeta reads a sync bookkeeping value. Returns "" when the key is absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM sync_meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta writes a sync bookkeeping value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	query := `
	INSERT INTO sync_meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.conn.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write sync meta %s: %w", key, err)
	}
	return nil
}

// VocabCount returns the number of vocabulary entries.
func (s *Store) VocabCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM vocab_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count vocabulary: %w", err)
	}
	return count, nil
}

// GrammarCount returns the number of grammar entries.
func (s *Store) GrammarCount(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM grammar_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count grammar: %w", err)
	}
	return count, nil
}

// scanVocab scans vocabulary rows in the column order used by every
// vocab SELECT in this package.
func scanVocab(rows *sql.Rows) ([]*deck.VocabularyEntry, error) {
	entries := []*deck.VocabularyEntry{}
	for rows.Next() {
		var e deck.VocabularyEntry
		var pos string
		var conj sql.NullString
		var saved int

		err := rows.Scan(
			&e.ID, &e.Kanji, &e.Reading, &e.Meaning, &pos,
			&e.Example.Sentence, &e.Example.Reading, &e.Example.Translation,
			&conj, &saved, &e.Mastery, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary entry: %w", err)
		}

		e.PartOfSpeech = deck.PartOfSpeech(pos)
		e.Saved = saved != 0
		if conj.Valid {
			c, err := deck.UnmarshalConjugations(conj.String)
			if err != nil {
				return nil, err
			}
			e.Conjugations = c
		}

		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vocabulary: %w", err)
	}
	return entries, nil
}

func scanGrammar(rows *sql.Rows) ([]*deck.GrammarEntry, error) {
	entries := []*deck.GrammarEntry{}
	for rows.Next() {
		var g deck.GrammarEntry
		if err := rows.Scan(&g.ID, &g.Label, &g.Explanation, &g.Example, &g.Rating, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan grammar entry: %w", err)
		}
		entries = append(entries, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grammar: %w", err)
	}
	return entries, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

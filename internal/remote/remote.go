// Package remote is the thin client for the hosted libSQL backend that mirrors
// both study collections per account.
//
// Every row is additionally scoped by an account_id column that never appears
// in the local entity shape. Column names follow the backend's snake_case
// convention; translation to the Go entity shape happens here and nowhere else.
//
// The client is deliberately forgiving about missing sessions: writes without
// an active session are silent no-ops, reads fail with ErrNoSession. Backend
// and network failures surface as *RemoteError.
package remote

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/karuta-app/karuta/internal/deck"
	_ "github.com/tursodatabase/go-libsql"
)

// DefaultTimeout bounds every remote call. The hosted backend has no
// server-side deadline, so an unbounded call could hang a sync run forever.
const DefaultTimeout = 30 * time.Second

// Config holds the connection credentials for the hosted backend.
type Config struct {
	// URL is the libsql database endpoint, e.g. libsql://karuta-org.turso.io
	URL string
	// Key is the database auth token
	Key string
	// Timeout bounds each remote call (DefaultTimeout when zero)
	Timeout time.Duration
}

// IsConfigured reports whether connection credentials are present. This is a
// static configuration check, not a liveness check - it says nothing about
// reachability.
func (c Config) IsConfigured() bool {
	return c.URL != "" && c.Key != ""
}

// Client mirrors both collections in the hosted backend.
type Client struct {
	conn    *sql.DB
	cfg     Config
	session *Session
	logger  *log.Logger
}

// Connect opens a connection to the hosted backend.
//
// The caller MUST call Close() when done. No session is attached yet; use
// SetSession once the user is logged in.
func Connect(cfg Config, logger *log.Logger) (*Client, error) {
	if !cfg.IsConfigured() {
		return nil, fmt.Errorf("remote backend is not configured")
	}

	dsn := cfg.URL + "?authToken=" + url.QueryEscape(cfg.Key)
	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetConnMaxIdleTime(time.Minute)

	return NewWithConn(conn, cfg, logger), nil
}

// NewWithConn wraps an existing connection. Used by Connect and by tests,
// which substitute an embedded SQLite database for the hosted one.
func NewWithConn(conn *sql.DB, cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{conn: conn, cfg: cfg, logger: logger}
}

// Close closes the backend connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// SetSession attaches (or, with nil, detaches) the active account session.
func (c *Client) SetSession(s *Session) {
	c.session = s
}

// CurrentUser returns the active account identifier, or false when no
// session is attached.
func (c *Client) CurrentUser() (string, bool) {
	if c.session == nil || c.session.AccountID == "" {
		return "", false
	}
	return c.session.AccountID, true
}

// opCtx bounds a remote call with the configured timeout.
func (c *Client) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.cfg.Timeout)
}

// FetchAllVocab returns every vocabulary row for the current account,
// newest first. Fails with ErrNoSession when no account is active.
func (c *Client) FetchAllVocab(ctx context.Context) ([]*deck.VocabularyEntry, error) {
	account, ok := c.CurrentUser()
	if !ok {
		return nil, ErrNoSession
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	query := `
	SELECT id, kanji, reading, meaning, part_of_speech,
	       example_sentence, example_reading, example_translation,
	       conjugations, saved, mastery, created_at
	FROM vocab_entries
	WHERE account_id = ?
	ORDER BY created_at DESC, id ASC
	`

	rows, err := c.conn.QueryContext(ctx, query, account)
	if err != nil {
		return nil, remoteErr("fetch vocab", err)
	}
	defer rows.Close()

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
			return nil, remoteErr("scan vocab", err)
		}

		e.PartOfSpeech = deck.PartOfSpeech(pos)
		e.Saved = saved != 0
		if conj.Valid {
			set, err := deck.UnmarshalConjugations(conj.String)
			if err != nil {
				return nil, remoteErr("scan vocab", err)
			}
			e.Conjugations = set
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, remoteErr("fetch vocab", err)
	}
	return entries, nil
}

// UpsertVocab writes the full record scoped to the current account.
// No-op when no account is active.
func (c *Client) UpsertVocab(ctx context.Context, e *deck.VocabularyEntry) error {
	account, ok := c.CurrentUser()
	if !ok {
		return nil
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	conj, err := deck.MarshalConjugations(e.Conjugations)
	if err != nil {
		return remoteErr("upsert vocab", err)
	}

	query := `
	INSERT INTO vocab_entries (
		id, account_id, kanji, reading, meaning, part_of_speech,
		example_sentence, example_reading, example_translation,
		conjugations, saved, mastery, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		account_id = excluded.account_id,
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

	var conjVal sql.NullString
	if conj != "" {
		conjVal = sql.NullString{String: conj, Valid: true}
	}
	var saved int
	if e.Saved {
		saved = 1
	}

	_, err = c.conn.ExecContext(ctx, query,
		e.ID, account, e.Kanji, e.Reading, e.Meaning, string(e.PartOfSpeech),
		e.Example.Sentence, e.Example.Reading, e.Example.Translation,
		conjVal, saved, int(e.Mastery), e.CreatedAt,
	)
	if err != nil {
		return remoteErr("upsert vocab", err)
	}
	return nil
}

// DeleteVocab removes the row scoped to (id, current account).
// No-op when no account is active.
func (c *Client) DeleteVocab(ctx context.Context, id string) error {
	account, ok := c.CurrentUser()
	if !ok {
		return nil
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	_, err := c.conn.ExecContext(ctx,
		"DELETE FROM vocab_entries WHERE id = ? AND account_id = ?", id, account)
	if err != nil {
		return remoteErr("delete vocab", err)
	}
	return nil
}

// FetchAllGrammar returns every grammar row for the current account,
// newest first. Fails with ErrNoSession when no account is active.
func (c *Client) FetchAllGrammar(ctx context.Context) ([]*deck.GrammarEntry, error) {
	account, ok := c.CurrentUser()
	if !ok {
		return nil, ErrNoSession
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	query := `
	SELECT id, label, explanation, example, rating, created_at
	FROM grammar_entries
	WHERE account_id = ?
	ORDER BY created_at DESC, id ASC
	`

	rows, err := c.conn.QueryContext(ctx, query, account)
	if err != nil {
		return nil, remoteErr("fetch grammar", err)
	}
	defer rows.Close()

	entries := []*deck.GrammarEntry{}
	for rows.Next() {
		var g deck.GrammarEntry
		if err := rows.Scan(&g.ID, &g.Label, &g.Explanation, &g.Example, &g.Rating, &g.CreatedAt); err != nil {
			return nil, remoteErr("scan grammar", err)
		}
		entries = append(entries, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, remoteErr("fetch grammar", err)
	}
	return entries, nil
}

// UpsertGrammar writes the full record scoped to the current account.
// No-op when no account is active.
func (c *Client) UpsertGrammar(ctx context.Context, g *deck.GrammarEntry) error {
	account, ok := c.CurrentUser()
	if !ok {
		return nil
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	query := `
	INSERT INTO grammar_entries (id, account_id, label, explanation, example, rating, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		account_id = excluded.account_id,
		label = excluded.label,
		explanation = excluded.explanation,
		example = excluded.example,
		rating = excluded.rating,
		created_at = excluded.created_at
	`

	_, err := c.conn.ExecContext(ctx, query,
		g.ID, account, g.Label, g.Explanation, g.Example, g.Rating, g.CreatedAt)
	if err != nil {
		return remoteErr("upsert grammar", err)
	}
	return nil
}

// DeleteGrammar removes the row scoped to (id, current account).
// No-op when no account is active.
func (c *Client) DeleteGrammar(ctx context.Context, id string) error {
	account, ok := c.CurrentUser()
	if !ok {
		return nil
	}
	ctx, cancel := c.opCtx(ctx)
	defer cancel()

	_, err := c.conn.ExecContext(ctx,
		"DELETE FROM grammar_entries WHERE id = ? AND account_id = ?", id, account)
	if err != nil {
		return remoteErr("delete grammar", err)
	}
	return nil
}

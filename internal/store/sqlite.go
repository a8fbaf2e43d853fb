// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Persists conversations and the lead ledger with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// legacyLastMenuKey is where older deployments kept the menu debounce
// timestamp, inside the data map.
const legacyLastMenuKey = "last_menu_at"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One connection: SQLite has a single writer anyway, and ":memory:"
	// databases are per-connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	if err := s.createIndexes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
// The base layout matches databases written by earlier deployments.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			user_id INTEGER PRIMARY KEY,
			state TEXT NOT NULL,
			topic TEXT,
			data TEXT,
			phone TEXT,
			time_pref TEXT,
			updated_at INTEGER
		);

		CREATE TABLE IF NOT EXISTS leads (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			topic TEXT,
			data TEXT,
			phone TEXT,
			time_pref TEXT,
			created_at INTEGER
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations adds columns introduced after the base layout.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "conversations",
			column: "branch",
			apply:  `ALTER TABLE conversations ADD COLUMN branch TEXT`,
		},
		{
			table:  "conversations",
			column: "last_menu_at",
			apply:  `ALTER TABLE conversations ADD COLUMN last_menu_at INTEGER`,
		},
		{
			table:  "leads",
			column: "lead_uid",
			apply:  `ALTER TABLE leads ADD COLUMN lead_uid TEXT`,
		},
		{
			table:  "leads",
			column: "branch",
			apply:  `ALTER TABLE leads ADD COLUMN branch TEXT`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&exists)
		if err == nil {
			continue
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking %s.%s: %w", m.table, m.column, err)
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

func (s *SQLiteStore) createIndexes() error {
	_, err := s.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_leads_user_created ON leads(user_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at);
		CREATE INDEX IF NOT EXISTS idx_leads_uid ON leads(lead_uid);
	`)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// GetConversation loads the conversation for userID.
// A missing row is created on first read and returned in the initial state.
func (s *SQLiteStore) GetConversation(ctx context.Context, userID int64) (*Conversation, error) {
	query := `
		SELECT state, topic, branch, data, phone, time_pref, last_menu_at, updated_at
		FROM conversations
		WHERE user_id = ?
	`

	var state, topic, branch, data, phone, timePref sql.NullString
	var lastMenuAt, updatedAt sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&state, &topic, &branch, &data, &phone, &timePref, &lastMenuAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		conv := NewConversation(userID)
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO conversations (user_id, state, topic, data, phone, time_pref) VALUES (?, ?, '', '{}', '', '')`,
			userID, conv.State,
		); err != nil {
			return nil, wrapErr(OpGetConversation, fmt.Errorf("inserting conversation: %w", err))
		}
		s.logger.Debug("created conversation", "user_id", userID)
		return conv, nil
	}
	if err != nil {
		return nil, wrapErr(OpGetConversation, fmt.Errorf("querying conversation: %w", err))
	}

	conv := &Conversation{
		UserID:     userID,
		State:      state.String,
		Topic:      topic.String,
		Branch:     branch.String,
		Data:       decodeData(data.String),
		Phone:      phone.String,
		TimePref:   timePref.String,
		LastMenuAt: fromMillis(lastMenuAt),
		UpdatedAt:  fromMillis(updatedAt),
	}
	if conv.State == "" {
		conv.State = InitialState
	}

	if legacy, ok := conv.Data[legacyLastMenuKey]; ok {
		delete(conv.Data, legacyLastMenuKey)
		if conv.LastMenuAt.IsZero() {
			if ms, err := strconv.ParseInt(strings.TrimSpace(legacy), 10, 64); err == nil {
				conv.LastMenuAt = time.UnixMilli(ms).UTC()
			}
		}
	}

	return conv, nil
}

// SaveConversation upserts the conversation, replacing every column.
// Nothing is stamped here, so identical input always yields an identical row.
func (s *SQLiteStore) SaveConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (user_id, state, topic, branch, data, phone, time_pref, last_menu_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			state = excluded.state,
			topic = excluded.topic,
			branch = excluded.branch,
			data = excluded.data,
			phone = excluded.phone,
			time_pref = excluded.time_pref,
			last_menu_at = excluded.last_menu_at,
			updated_at = excluded.updated_at
	`

	data, err := encodeData(conv.Data)
	if err != nil {
		return wrapErr(OpSaveConversation, err)
	}

	state := conv.State
	if state == "" {
		state = InitialState
	}

	_, err = s.db.ExecContext(ctx, query,
		conv.UserID,
		state,
		conv.Topic,
		conv.Branch,
		data,
		conv.Phone,
		conv.TimePref,
		toMillis(conv.LastMenuAt),
		toMillis(conv.UpdatedAt),
	)
	if err != nil {
		return wrapErr(OpSaveConversation, fmt.Errorf("upserting conversation: %w", err))
	}

	s.logger.Debug("saved conversation", "user_id", conv.UserID, "state", state)
	return nil
}

// ResetConversation replaces the record with a fresh one sharing only the user id.
func (s *SQLiteStore) ResetConversation(ctx context.Context, userID int64) error {
	if err := s.SaveConversation(ctx, NewConversation(userID)); err != nil {
		var se *StorageError
		if errors.As(err, &se) {
			return &StorageError{Op: OpResetConversation, Err: se.Err}
		}
		return err
	}
	s.logger.Info("conversation reset", "user_id", userID)
	return nil
}

// AppendLead inserts a lead into the ledger.
// An empty ID is filled with a new UUID and a zero CreatedAt with the current time.
func (s *SQLiteStore) AppendLead(ctx context.Context, lead *Lead) error {
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = time.Now().UTC()
	}

	data, err := encodeData(lead.Data)
	if err != nil {
		return wrapErr(OpAppendLead, err)
	}

	query := `
		INSERT INTO leads (lead_uid, user_id, topic, branch, data, phone, time_pref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		lead.ID,
		lead.UserID,
		lead.Topic,
		lead.Branch,
		data,
		lead.Phone,
		lead.TimePref,
		lead.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return wrapErr(OpAppendLead, fmt.Errorf("inserting lead: %w", err))
	}

	s.logger.Info("lead recorded", "lead_id", lead.ID, "user_id", lead.UserID, "topic", lead.Topic)
	return nil
}

// ListLeads retrieves leads ordered newest first.
// If limit is 0 or negative, a default limit of 50 is used.
func (s *SQLiteStore) ListLeads(ctx context.Context, filter LeadFilter) ([]*Lead, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 1000 {
		limit = 1000
	}

	var where []string
	var args []any
	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, filter.Since.UnixMilli())
	}

	query := `SELECT id, lead_uid, user_id, topic, branch, data, phone, time_pref, created_at FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(OpListLeads, fmt.Errorf("querying leads: %w", err))
	}
	defer rows.Close()

	var leads []*Lead
	for rows.Next() {
		var rowID int64
		var uid, topic, branch, data, phone, timePref sql.NullString
		var createdAt sql.NullInt64
		var lead Lead

		if err := rows.Scan(&rowID, &uid, &lead.UserID, &topic, &branch, &data, &phone, &timePref, &createdAt); err != nil {
			return nil, wrapErr(OpListLeads, fmt.Errorf("scanning lead row: %w", err))
		}

		lead.ID = uid.String
		if lead.ID == "" {
			lead.ID = strconv.FormatInt(rowID, 10)
		}
		lead.Topic = topic.String
		lead.Branch = branch.String
		lead.Data = decodeData(data.String)
		lead.Phone = phone.String
		lead.TimePref = timePref.String
		lead.CreatedAt = fromMillis(createdAt)

		leads = append(leads, &lead)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapErr(OpListLeads, fmt.Errorf("iterating lead rows: %w", err))
	}

	return leads, nil
}

// encodeData serializes the data map. json.Marshal sorts map keys,
// which keeps the stored text stable for identical maps.
func encodeData(data map[string]string) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding data: %w", err)
	}
	return string(raw), nil
}

// decodeData parses stored data, treating corrupt or empty text as an empty map.
func decodeData(raw string) map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(raw) == "" {
		return out
	}
	var generic map[string]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return out
	}
	for k, v := range generic {
		switch val := v.(type) {
		case string:
			out[k] = val
		case nil:
		default:
			out[k] = fmt.Sprint(val)
		}
	}
	return out
}

// toMillis returns nil for the zero time so the column stays NULL.
func toMillis(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid || v.Int64 == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a row does not exist or is not visible to the
// requesting user.
var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer, and an in-memory database exists per
	// connection; one pooled connection keeps both correct.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err = db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        is_admin BOOLEAN DEFAULT FALSE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS profiles (
        user_id INTEGER PRIMARY KEY,
        display_name TEXT NOT NULL DEFAULT '',
        timezone TEXT NOT NULL DEFAULT 'UTC',
        interpretation_style TEXT NOT NULL CHECK (interpretation_style IN ('balanced', 'psych', 'spiritual')),
        privacy_default TEXT NOT NULL CHECK (privacy_default IN ('private', 'unlisted', 'public')),
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE TABLE IF NOT EXISTS tags (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT UNIQUE NOT NULL
    );

    CREATE TABLE IF NOT EXISTS symbols (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT UNIQUE NOT NULL,
        category TEXT NOT NULL CHECK (category IN ('animal', 'object', 'place', 'person', 'event', 'abstract')),
        description TEXT NOT NULL DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS dreams (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        title TEXT NOT NULL,
        narrative TEXT NOT NULL,
        date_dreamed TEXT NOT NULL,
        mood_rating INTEGER,
        emotions_json TEXT NOT NULL DEFAULT '[]',
        people_json TEXT NOT NULL DEFAULT '[]',
        settings_json TEXT NOT NULL DEFAULT '[]',
        privacy TEXT NOT NULL CHECK (privacy IN ('private', 'unlisted', 'public')),
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );

    CREATE INDEX IF NOT EXISTS idx_dreams_user_date ON dreams (user_id, date_dreamed);

    CREATE TABLE IF NOT EXISTS dream_tags (
        dream_id TEXT NOT NULL,
        tag_id INTEGER NOT NULL,
        UNIQUE (dream_id, tag_id),
        FOREIGN KEY (dream_id) REFERENCES dreams (id),
        FOREIGN KEY (tag_id) REFERENCES tags (id)
    );

    CREATE TABLE IF NOT EXISTS dream_symbols (
        dream_id TEXT NOT NULL,
        symbol_id INTEGER NOT NULL,
        confidence REAL NOT NULL DEFAULT 0.0,
        note TEXT NOT NULL DEFAULT '',
        UNIQUE (dream_id, symbol_id),
        FOREIGN KEY (dream_id) REFERENCES dreams (id),
        FOREIGN KEY (symbol_id) REFERENCES symbols (id)
    );

    CREATE TABLE IF NOT EXISTS interpretations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        dream_id TEXT NOT NULL,
        angle TEXT NOT NULL CHECK (angle IN ('psych', 'spiritual', 'combined')),
        summary TEXT NOT NULL,
        reflection_questions_json TEXT NOT NULL DEFAULT '[]',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        model TEXT NOT NULL DEFAULT '',
        prompt_version TEXT NOT NULL DEFAULT '',
        FOREIGN KEY (dream_id) REFERENCES dreams (id)
    );

    CREATE TABLE IF NOT EXISTS clarifying_questions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        dream_id TEXT NOT NULL,
        question TEXT NOT NULL,
        answer TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (dream_id) REFERENCES dreams (id)
    );

    CREATE TABLE IF NOT EXISTS dream_messages (
        id TEXT PRIMARY KEY, -- UUID
        dream_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (dream_id) REFERENCES dreams (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// marshalList stores ordered string lists as JSON text columns.
func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}

func unmarshalList(raw string) []string {
	items := []string{}
	if raw == "" {
		return items
	}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		// A corrupt column degrades to an empty list rather than failing the read.
		return []string{}
	}
	if items == nil {
		items = []string{}
	}
	return items
}

// User methods
func (s *SQLiteStore) CreateUser(username, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, is_admin, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, is_admin, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// SetUserAdmin flips the admin flag. There is no API route for this; it is
// driven by operator tooling.
func (s *SQLiteStore) SetUserAdmin(userID int64, isAdmin bool) error {
	res, err := s.db.Exec("UPDATE users SET is_admin = ? WHERE id = ?", isAdmin, userID)
	if err != nil {
		return fmt.Errorf("failed to update admin flag: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Profile methods
func (s *SQLiteStore) CreateProfile(profile *Profile) error {
	if profile.Timezone == "" {
		profile.Timezone = "UTC"
	}
	if profile.Style == "" {
		profile.Style = StyleBalanced
	}
	if profile.PrivacyDefault == "" {
		profile.PrivacyDefault = PrivacyPrivate
	}
	_, err := s.db.Exec(
		"INSERT INTO profiles (user_id, display_name, timezone, interpretation_style, privacy_default) VALUES (?, ?, ?, ?, ?)",
		profile.UserID, profile.DisplayName, profile.Timezone, profile.Style, profile.PrivacyDefault,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(userID int64) (*Profile, error) {
	var p Profile
	err := s.db.QueryRow(
		"SELECT user_id, display_name, timezone, interpretation_style, privacy_default FROM profiles WHERE user_id = ?",
		userID,
	).Scan(&p.UserID, &p.DisplayName, &p.Timezone, &p.Style, &p.PrivacyDefault)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) UpdateProfile(profile *Profile) error {
	res, err := s.db.Exec(
		"UPDATE profiles SET display_name = ?, timezone = ?, interpretation_style = ?, privacy_default = ? WHERE user_id = ?",
		profile.DisplayName, profile.Timezone, profile.Style, profile.PrivacyDefault, profile.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Tag methods

// GetOrCreateTag is idempotent by unique name: two callers referencing the
// same name end up with a single row.
func (s *SQLiteStore) GetOrCreateTag(name string) (*Tag, error) {
	if _, err := s.db.Exec("INSERT OR IGNORE INTO tags (name) VALUES (?)", name); err != nil {
		return nil, fmt.Errorf("failed to insert tag: %w", err)
	}
	var tag Tag
	err := s.db.QueryRow("SELECT id, name FROM tags WHERE name = ?", name).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag: %w", err)
	}
	return &tag, nil
}

func (s *SQLiteStore) ListTags() ([]Tag, error) {
	rows, err := s.db.Query("SELECT id, name FROM tags ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("failed to scan tag row: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Symbol methods

// GetOrCreateSymbol creates the symbol with the given category only when it
// does not exist yet; an existing symbol keeps its original category.
func (s *SQLiteStore) GetOrCreateSymbol(name string, category SymbolCategory) (*Symbol, error) {
	if category == "" {
		category = CategoryAbstract
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO symbols (name, category) VALUES (?, ?)", name, category); err != nil {
		return nil, fmt.Errorf("failed to insert symbol: %w", err)
	}
	var sym Symbol
	err := s.db.QueryRow("SELECT id, name, category, description FROM symbols WHERE name = ?", name).
		Scan(&sym.ID, &sym.Name, &sym.Category, &sym.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to query symbol: %w", err)
	}
	return &sym, nil
}

func (s *SQLiteStore) ListSymbols() ([]Symbol, error) {
	rows, err := s.db.Query("SELECT id, name, category, description FROM symbols ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []Symbol
	for rows.Next() {
		var sym Symbol
		if err := rows.Scan(&sym.ID, &sym.Name, &sym.Category, &sym.Description); err != nil {
			return nil, fmt.Errorf("failed to scan symbol row: %w", err)
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// SQLiteDB is a single file SQL storage that implements the store.Interface.
// The schema is managed by goose migrations embedded into the binary.
type SQLiteDB struct {
	db *sqlx.DB
}

// Fail if the struct does not match the Interface.
var _ = Interface(&SQLiteDB{})

// sqlitePaste is the row representation of a Paste. Timestamps are kept as
// unix nanoseconds so that they survive the round trip unchanged.
type sqlitePaste struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	Title       string `db:"title"`
	Content     string `db:"content"`
	Tag         string `db:"tag"`
	ContentType string `db:"content_type"`
	Language    string `db:"language"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

func toSQLite(p Paste) sqlitePaste {
	return sqlitePaste{
		ID:          p.ID,
		UserID:      p.UserID,
		Title:       p.Title,
		Content:     p.Content,
		Tag:         p.Tag,
		ContentType: p.ContentType,
		Language:    p.Language,
		CreatedAt:   p.CreatedAt.UnixNano(),
		UpdatedAt:   p.UpdatedAt.UnixNano(),
	}
}

func (r sqlitePaste) paste() Paste {
	return Paste{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Content:     r.Content,
		Tag:         r.Tag,
		ContentType: r.ContentType,
		Language:    r.Language,
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, r.UpdatedAt).UTC(),
	}
}

// NewSQLiteDB opens (or creates) the database file at path and applies all
// pending migrations. Use ":memory:" for a throwaway database.
func NewSQLiteDB(ctx context.Context, path string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteDB: connecting to db: %w", err)
	}
	// sqlite allows a single writer, a single connection also keeps
	// ":memory:" databases alive between calls.
	db.SetMaxOpenConns(1)

	migrations, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteDB: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db.DB, migrations)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteDB: creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("NewSQLiteDB: applying migrations: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Totals returns total count of pastes and users.
func (s *SQLiteDB) Totals(ctx context.Context) (pastes, users int64, err error) {
	if err = s.db.GetContext(ctx, &pastes, "SELECT COUNT(*) FROM pastes"); err != nil {
		return 0, 0, fmt.Errorf("SQLiteDB.Totals: %w", err)
	}
	if err = s.db.GetContext(ctx, &users, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, 0, fmt.Errorf("SQLiteDB.Totals: %w", err)
	}
	return pastes, users, nil
}

// Create stores a new paste.
func (s *SQLiteDB) Create(ctx context.Context, p Paste) (Paste, error) {
	if p.ID == "" || p.UserID == "" {
		return Paste{}, fmt.Errorf("SQLiteDB.Create: %w", ErrNoID)
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO pastes (id, user_id, title, content, tag, content_type, language, created_at, updated_at)
		VALUES (:id, :user_id, :title, :content, :tag, :content_type, :language, :created_at, :updated_at)`,
		toSQLite(p))
	if err != nil {
		return Paste{}, fmt.Errorf("SQLiteDB.Create: %w", err)
	}
	return p, nil
}

// Get returns a paste by ID if it belongs to the owner.
func (s *SQLiteDB) Get(ctx context.Context, id, owner string) (Paste, error) {
	var row sqlitePaste
	err := s.db.GetContext(ctx, &row, "SELECT * FROM pastes WHERE id = ? AND user_id = ?", id, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return Paste{}, fmt.Errorf("SQLiteDB.Get: %w", ErrNotFound)
	}
	if err != nil {
		return Paste{}, fmt.Errorf("SQLiteDB.Get: %w", err)
	}
	return row.paste(), nil
}

// Update replaces the mutable columns of a paste matched by ID and UserID.
func (s *SQLiteDB) Update(ctx context.Context, p Paste) (Paste, error) {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE pastes
		SET title = :title, content = :content, tag = :tag, content_type = :content_type,
			language = :language, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id`,
		toSQLite(p))
	if err != nil {
		return Paste{}, fmt.Errorf("SQLiteDB.Update: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return Paste{}, fmt.Errorf("SQLiteDB.Update: %w", ErrNotFound)
	}
	return s.Get(ctx, p.ID, p.UserID)
}

// Delete deletes a paste by ID if it belongs to the owner.
func (s *SQLiteDB) Delete(ctx context.Context, id, owner string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pastes WHERE id = ? AND user_id = ?", id, owner)
	if err != nil {
		return fmt.Errorf("SQLiteDB.Delete: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return fmt.Errorf("SQLiteDB.Delete: %w", ErrNotFound)
	}
	return nil
}

// Find return a sorted list of pastes for a given request.
func (s *SQLiteDB) Find(ctx context.Context, req FindRequest) ([]Paste, error) {
	column, desc := orderBy(req.Sort)
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	limit := req.Limit
	if limit <= 0 {
		limit = -1
	}
	skip := req.Skip
	if skip < 0 {
		skip = 0
	}

	// column is one of a fixed set returned by orderBy.
	query := fmt.Sprintf("SELECT * FROM pastes WHERE user_id = ? ORDER BY %s %s, id ASC LIMIT ? OFFSET ?", column, dir)

	var rows []sqlitePaste
	if err := s.db.SelectContext(ctx, &rows, query, req.UserID, limit, skip); err != nil {
		return nil, fmt.Errorf("SQLiteDB.Find: %w", err)
	}
	pastes := make([]Paste, 0, len(rows))
	for _, r := range rows {
		pastes = append(pastes, r.paste())
	}
	return pastes, nil
}

// Count returns the number of pastes that belong to req.UserID.
func (s *SQLiteDB) Count(ctx context.Context, req FindRequest) (int64, error) {
	var cnt int64
	if err := s.db.GetContext(ctx, &cnt, "SELECT COUNT(*) FROM pastes WHERE user_id = ?", req.UserID); err != nil {
		return 0, fmt.Errorf("SQLiteDB.Count: %w", err)
	}
	return cnt, nil
}

// SaveUser creates a new or updates an existing user.
func (s *SQLiteDB) SaveUser(ctx context.Context, usr User) (string, error) {
	if usr.ID == "" {
		return "", fmt.Errorf("SQLiteDB.SaveUser: %w", ErrNoUserID)
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, email, picture, ip, admin, password_hash)
		VALUES (:id, :name, :email, :picture, :ip, :admin, :password_hash)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, email = excluded.email, picture = excluded.picture,
			ip = excluded.ip, admin = excluded.admin, password_hash = excluded.password_hash`,
		usr)
	if err != nil {
		return "", fmt.Errorf("SQLiteDB.SaveUser: %w", err)
	}
	return usr.ID, nil
}

// CreateUser inserts a new user, it fails with ErrUserExists if the ID is
// already taken.
func (s *SQLiteDB) CreateUser(ctx context.Context, usr User) error {
	if usr.ID == "" {
		return fmt.Errorf("SQLiteDB.CreateUser: %w", ErrNoUserID)
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (id, name, email, picture, ip, admin, password_hash)
		VALUES (:id, :name, :email, :picture, :ip, :admin, :password_hash)
		ON CONFLICT (id) DO NOTHING`,
		usr)
	if err != nil {
		return fmt.Errorf("SQLiteDB.CreateUser: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("SQLiteDB.CreateUser: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SQLiteDB.CreateUser: %w", ErrUserExists)
	}
	return nil
}

// User returns a user by ID.
func (s *SQLiteDB) User(ctx context.Context, id string) (User, error) {
	var usr User
	err := s.db.GetContext(ctx, &usr, "SELECT * FROM users WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("SQLiteDB.User: %w", ErrUserNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("SQLiteDB.User: %w", err)
	}
	return usr, nil
}

// Close terminates the database connection.
func (s *SQLiteDB) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("SQLiteDB.Close: %w", err)
	}
	return nil
}

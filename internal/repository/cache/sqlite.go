package cache

import (
	"context"
	"database/sql"
	"embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/geoclash/maptiles/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore is the durable tile archive backing offline area downloads.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewSQLiteStore(path string, l logger.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	err = db.Ping()
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		logger: l,
	}

	err = s.runMigrations()
	if err != nil {
		return nil, err
	}

	l.Info("sqlite tile store initialized", "path", path)

	return s, nil
}

func (s *SQLiteStore) runMigrations() error {
	goose.SetBaseFS(migrations)

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	err = goose.Up(s.db, "migrations")
	if err != nil {
		return err
	}

	return nil
}

var _ Store = (*SQLiteStore)(nil)

func (s *SQLiteStore) Get(ctx context.Context, k Key) ([]byte, bool, error) {
	s.logger.Debug("sqlite store get", "provider", k.Provider.String(), "z", k.Z, "x", k.X, "y", k.Y)

	query := `SELECT tile_data
	FROM tile_store
	WHERE provider = ? AND style = ? AND z = ? AND x = ? AND y = ?`

	var tileData []byte
	err := s.db.QueryRowContext(ctx, query, int(k.Provider), int(k.Style), k.Z, k.X, k.Y).Scan(&tileData)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		s.logger.Error("sqlite store get failed", "z", k.Z, "x", k.X, "y", k.Y, "error", err)
		return nil, false, err
	}

	return tileData, true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, k Key, data []byte) error {
	s.logger.Debug("sqlite store set", "provider", k.Provider.String(), "z", k.Z, "x", k.X, "y", k.Y, "size", len(data))

	query := `INSERT INTO tile_store (provider, style, z, x, y, tile_data)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(provider, style, z, x, y) DO UPDATE SET tile_data = excluded.tile_data`

	_, err := s.db.ExecContext(ctx, query, int(k.Provider), int(k.Style), k.Z, k.X, k.Y, data)
	if err != nil {
		s.logger.Error("sqlite store set failed", "z", k.Z, "x", k.X, "y", k.Y, "error", err)
		return err
	}

	return nil
}

// Count returns the number of archived tiles.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tile_store`).Scan(&n)
	return n, err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

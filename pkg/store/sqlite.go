package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vertoapp/verto/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// collectionKey is the single logical key the client collection lives under.
// Kept stable so existing databases keep loading across releases.
const collectionKey = "verto_clientes_v1"

// SQLiteStore persists the collection as one JSON payload in a key-value
// table, replaced wholesale on every save.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database and initializes the schema.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the key-value table if it doesn't already exist. The
// payload is TEXT holding the full JSON array of clients.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS colecoes (
		chave TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		atualizado_em DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads the stored collection. A missing row is an empty collection,
// not an error.
func (s *SQLiteStore) Load(ctx context.Context) ([]*models.Cliente, error) {
	var payload string
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM colecoes WHERE chave = ?`, collectionKey)
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return []*models.Cliente{}, nil
		}
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	var clientes []*models.Cliente
	if err := json.Unmarshal([]byte(payload), &clientes); err != nil {
		return nil, fmt.Errorf("failed to decode stored collection: %w", err)
	}
	if clientes == nil {
		clientes = []*models.Cliente{}
	}
	return clientes, nil
}

// Save replaces the stored collection with the one given.
func (s *SQLiteStore) Save(ctx context.Context, clientes []*models.Cliente) error {
	payload, err := json.Marshal(clientes)
	if err != nil {
		return fmt.Errorf("failed to encode collection: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO colecoes (chave, payload, atualizado_em) VALUES (?, ?, ?)
		ON CONFLICT(chave) DO UPDATE SET payload = excluded.payload, atualizado_em = excluded.atualizado_em`,
		collectionKey, string(payload), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save collection: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

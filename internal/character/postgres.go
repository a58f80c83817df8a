package character

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the characters table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS characters (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    player     TEXT NOT NULL DEFAULT '',
    detail     JSONB,
    version    BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_characters_player ON characters(player);
`

// maxUpdateAttempts bounds the optimistic retries of [PostgresStore.Update].
const maxUpdateAttempts = 5

// ErrConflict is returned by [PostgresStore.Update] when concurrent writers
// kept changing the character.
var ErrConflict = errors.New("character: concurrent update conflict")

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. The detail tree is stored
// as JSONB. Resource changes survive restarts, so character files imported
// at startup only seed characters that do not exist yet.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a [PostgresStore] on db. The caller is
// responsible for calling [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the characters table and indexes if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("character: migrate: %w", err)
	}
	return nil
}

// Add implements [Store.Add].
func (s *PostgresStore) Add(ctx context.Context, c Character) (Character, error) {
	if c.ID == "" {
		id, err := generateID()
		if err != nil {
			return Character{}, fmt.Errorf("character: generate id: %w", err)
		}
		c.ID = id
	}
	detail, err := json.Marshal(c.Detail)
	if err != nil {
		return Character{}, fmt.Errorf("character: marshal detail: %w", err)
	}

	const query = `
		INSERT INTO characters (id, name, player, detail)
		VALUES ($1, $2, $3, $4)`
	if _, err := s.db.Exec(ctx, query, c.ID, c.Name, c.Player, detail); err != nil {
		if isDuplicateKeyError(err) {
			return Character{}, ErrDuplicateID
		}
		return Character{}, fmt.Errorf("character: add %q: %w", c.ID, err)
	}
	return c, nil
}

// Get implements [Store.Get].
func (s *PostgresStore) Get(ctx context.Context, id string) (Character, error) {
	c, _, err := s.get(ctx, id)
	return c, err
}

func (s *PostgresStore) get(ctx context.Context, id string) (Character, int64, error) {
	const query = `
		SELECT id, name, player, detail, version
		FROM characters
		WHERE id = $1`

	var (
		c       Character
		detail  []byte
		version int64
	)
	err := s.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.Name, &c.Player, &detail, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Character{}, 0, ErrNotFound
		}
		return Character{}, 0, fmt.Errorf("character: get %q: %w", id, err)
	}
	if err := unmarshalDetail(&c, detail); err != nil {
		return Character{}, 0, err
	}
	return c, version, nil
}

// FindByPlayer implements [Store.FindByPlayer].
func (s *PostgresStore) FindByPlayer(ctx context.Context, player string) (Character, error) {
	if player == "" {
		return Character{}, ErrNotFound
	}
	const query = `
		SELECT id, name, player, detail
		FROM characters
		WHERE player = $1
		ORDER BY id
		LIMIT 1`

	var (
		c      Character
		detail []byte
	)
	err := s.db.QueryRow(ctx, query, player).Scan(&c.ID, &c.Name, &c.Player, &detail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Character{}, ErrNotFound
		}
		return Character{}, fmt.Errorf("character: find by player %q: %w", player, err)
	}
	if err := unmarshalDetail(&c, detail); err != nil {
		return Character{}, err
	}
	return c, nil
}

// List implements [Store.List].
func (s *PostgresStore) List(ctx context.Context) ([]Character, error) {
	const query = `
		SELECT id, name, player, detail
		FROM characters
		ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("character: list: %w", err)
	}
	defer rows.Close()

	out := []Character{}
	for rows.Next() {
		var (
			c      Character
			detail []byte
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Player, &detail); err != nil {
			return nil, fmt.Errorf("character: list scan: %w", err)
		}
		if err := unmarshalDetail(&c, detail); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("character: list: %w", err)
	}
	return out, nil
}

// Update implements [Store.Update] with optimistic locking on the row
// version. When another writer wins the race, fn runs again on the fresh
// row; after repeated conflicts [ErrConflict] is returned.
func (s *PostgresStore) Update(ctx context.Context, id string, fn func(*Character) error) error {
	const query = `
		UPDATE characters SET
			name = $2, player = $3, detail = $4,
			version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $5`

	for range maxUpdateAttempts {
		c, version, err := s.get(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(&c); err != nil {
			return err
		}
		detail, err := json.Marshal(c.Detail)
		if err != nil {
			return fmt.Errorf("character: marshal detail: %w", err)
		}

		tag, err := s.db.Exec(ctx, query, id, c.Name, c.Player, detail, version)
		if err != nil {
			return fmt.Errorf("character: update %q: %w", id, err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}
	}
	return fmt.Errorf("character: update %q: %w", id, ErrConflict)
}

// Remove implements [Store.Remove].
func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM characters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("character: remove %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkImport implements [Store.BulkImport]. Characters whose ID is already
// stored keep their stored values and are not counted.
func (s *PostgresStore) BulkImport(ctx context.Context, cs []Character) (int, error) {
	const query = `
		INSERT INTO characters (id, name, player, detail)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	count := 0
	for i, c := range cs {
		if c.ID == "" {
			id, err := generateID()
			if err != nil {
				return count, fmt.Errorf("character: generate id: %w", err)
			}
			c.ID = id
		}
		detail, err := json.Marshal(c.Detail)
		if err != nil {
			return count, fmt.Errorf("character: marshal detail: %w", err)
		}
		tag, err := s.db.Exec(ctx, query, c.ID, c.Name, c.Player, detail)
		if err != nil {
			return count, fmt.Errorf("character: bulk import at index %d (name %q): %w", i, c.Name, err)
		}
		count += int(tag.RowsAffected())
	}
	return count, nil
}

func unmarshalDetail(c *Character, detail []byte) error {
	if len(detail) == 0 {
		return nil
	}
	if err := json.Unmarshal(detail, &c.Detail); err != nil {
		return fmt.Errorf("character: unmarshal detail of %q: %w", c.ID, err)
	}
	return nil
}

// isDuplicateKeyError reports a unique violation (SQLSTATE 23505).
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

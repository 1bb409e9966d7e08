package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/aretw0/tsw/internal/logging"
	"github.com/aretw0/tsw/pkg/domain"
)

//go:embed schema.sql
var schema string

// Store implements ports.InstanceStore and ports.WorldStore on SQLite.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger configures the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open connects to the database at path and creates the schema if needed.
// path may be ":memory:" for a private in-memory database.
//
// Transactions begin IMMEDIATE, so a writer holds the database write lock from
// its first read. Several processes may open the same file.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	dsn := path + "?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if path != ":memory:" {
		dsn += "&_journal_mode=WAL"
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// A single connection serializes writers and keeps :memory: databases alive.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.logger.Debug("Database ready", "path", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const upsertInstance = `
INSERT INTO instances (
    id, host_id, name, version, directory, state, pending_action, current_action,
    action_start_time, error, loaded_mods, mods_to_enable, pending_options, options,
    next_output_byte_position, max_players, port, automatically_forward_port,
    password, world_id, created_at, updated_at
) VALUES (
    :id, :host_id, :name, :version, :directory, :state, :pending_action, :current_action,
    :action_start_time, :error, :loaded_mods, :mods_to_enable, :pending_options, :options,
    :next_output_byte_position, :max_players, :port, :automatically_forward_port,
    :password, :world_id, :created_at, :updated_at
)
ON CONFLICT (id) DO UPDATE SET
    host_id = excluded.host_id,
    name = excluded.name,
    version = excluded.version,
    directory = excluded.directory,
    state = excluded.state,
    pending_action = excluded.pending_action,
    current_action = excluded.current_action,
    action_start_time = excluded.action_start_time,
    error = excluded.error,
    loaded_mods = excluded.loaded_mods,
    mods_to_enable = excluded.mods_to_enable,
    pending_options = excluded.pending_options,
    options = excluded.options,
    next_output_byte_position = excluded.next_output_byte_position,
    max_players = excluded.max_players,
    port = excluded.port,
    automatically_forward_port = excluded.automatically_forward_port,
    password = excluded.password,
    world_id = excluded.world_id,
    updated_at = excluded.updated_at`

// Save persists the instance.
func (s *Store) Save(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) (*domain.Instance, error) {
		return saveInstance(ctx, tx, inst)
	})
}

// SaveEventAndInstance writes the instance and appends the event in one transaction.
func (s *Store) SaveEventAndInstance(ctx context.Context, ev *domain.Event, inst *domain.Instance) (*domain.Instance, error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) (*domain.Instance, error) {
		saved, err := saveInstance(ctx, tx, inst)
		if err != nil {
			return nil, err
		}
		if err := appendEvent(ctx, tx, ev); err != nil {
			return nil, err
		}
		return saved, nil
	})
}

// Update reads, mutates and writes the instance inside one write transaction.
func (s *Store) Update(ctx context.Context, id string, fn func(*domain.Instance) (*domain.Event, error)) (*domain.Instance, error) {
	return s.inTx(ctx, func(tx *sqlx.Tx) (*domain.Instance, error) {
		var row instanceRow
		err := tx.GetContext(ctx, &row, `SELECT * FROM instances WHERE id = ?`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInstanceNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load instance %s: %w", id, err)
		}
		inst, err := row.toInstance()
		if err != nil {
			return nil, err
		}

		ev, err := fn(inst)
		if err != nil {
			return nil, err
		}
		saved, err := saveInstance(ctx, tx, inst)
		if err != nil {
			return nil, err
		}
		if ev != nil {
			if err := appendEvent(ctx, tx, ev); err != nil {
				return nil, err
			}
		}
		return saved, nil
	})
}

func appendEvent(ctx context.Context, tx *sqlx.Tx, ev *domain.Event) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO events (id, instance_id, type, timestamp, content)
		VALUES (:id, :instance_id, :type, :timestamp, :content)`, ev)
	if err != nil {
		return fmt.Errorf("failed to append %s event: %w", ev.Type, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) (*domain.Instance, error)) (*domain.Instance, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inst, err := fn(tx)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return inst, nil
}

func saveInstance(ctx context.Context, tx *sqlx.Tx, inst *domain.Instance) (*domain.Instance, error) {
	stored := inst.Clone()
	stored.UpdatedAt = time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}
	row, err := toRow(stored)
	if err != nil {
		return nil, err
	}
	if _, err := tx.NamedExecContext(ctx, upsertInstance, row); err != nil {
		return nil, fmt.Errorf("failed to save instance %s: %w", inst.ID, err)
	}
	return stored, nil
}

// Get loads an instance by ID.
func (s *Store) Get(ctx context.Context, id string) (*domain.Instance, error) {
	var row instanceRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM instances WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load instance %s: %w", id, err)
	}
	return row.toInstance()
}

// FindPendingForHost returns the oldest instance of the host with a pending action.
func (s *Store) FindPendingForHost(ctx context.Context, hostID string) (*domain.Instance, error) {
	var row instanceRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM instances
		WHERE host_id = ? AND pending_action IS NOT NULL
		ORDER BY created_at, rowid
		LIMIT 1`, hostID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending instances of %s: %w", hostID, err)
	}
	return row.toInstance()
}

// ListByHost returns every instance owned by the host, oldest first.
func (s *Store) ListByHost(ctx context.Context, hostID string) ([]*domain.Instance, error) {
	return s.list(ctx, `SELECT * FROM instances WHERE host_id = ? ORDER BY created_at, rowid`, hostID)
}

// List returns every instance, oldest first.
func (s *Store) List(ctx context.Context) ([]*domain.Instance, error) {
	return s.list(ctx, `SELECT * FROM instances ORDER BY created_at, rowid`)
}

func (s *Store) list(ctx context.Context, query string, args ...any) ([]*domain.Instance, error) {
	var rows []instanceRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	out := make([]*domain.Instance, 0, len(rows))
	for _, row := range rows {
		inst, err := row.toInstance()
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// Delete removes the instance and its events.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.inTx(ctx, func(tx *sqlx.Tx) (*domain.Instance, error) {
		if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE instance_id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete events of %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM instances WHERE id = ?`, id); err != nil {
			return nil, fmt.Errorf("failed to delete instance %s: %w", id, err)
		}
		return nil, nil
	})
	return err
}

// Events returns at most limit of the newest events, oldest first.
// A limit of zero or less returns every event.
func (s *Store) Events(ctx context.Context, instanceID string, limit int) ([]*domain.Event, error) {
	if limit <= 0 {
		limit = -1
	}
	var events []*domain.Event
	err := s.db.SelectContext(ctx, &events, `
		SELECT id, instance_id, type, timestamp, content FROM events
		WHERE instance_id = ?
		ORDER BY seq DESC
		LIMIT ?`, instanceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load events of %s: %w", instanceID, err)
	}
	slices.Reverse(events)
	return events, nil
}

// SaveWorld persists the world.
func (s *Store) SaveWorld(ctx context.Context, w *domain.World) (*domain.World, error) {
	stored := *w
	stored.UpdatedAt = time.Now().UTC()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO worlds (id, host_id, name, size, difficulty, seed, created, updated_at)
		VALUES (:id, :host_id, :name, :size, :difficulty, :seed, :created, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
		    host_id = excluded.host_id,
		    name = excluded.name,
		    size = excluded.size,
		    difficulty = excluded.difficulty,
		    seed = excluded.seed,
		    created = excluded.created,
		    updated_at = excluded.updated_at`, &stored)
	if err != nil {
		return nil, fmt.Errorf("failed to save world %s: %w", w.ID, err)
	}
	return &stored, nil
}

// GetWorld loads a world by ID.
func (s *Store) GetWorld(ctx context.Context, id string) (*domain.World, error) {
	var w domain.World
	err := s.db.GetContext(ctx, &w, `SELECT * FROM worlds WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWorldNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load world %s: %w", id, err)
	}
	return &w, nil
}

// ListWorlds returns every world sorted by name.
func (s *Store) ListWorlds(ctx context.Context) ([]*domain.World, error) {
	var worlds []*domain.World
	if err := s.db.SelectContext(ctx, &worlds, `SELECT * FROM worlds ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list worlds: %w", err)
	}
	return worlds, nil
}

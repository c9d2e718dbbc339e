package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/housekeeper/internal/config"
	"github.com/housekeeper/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL-based access to account, stats and score records
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository creates a new PostgreSQL repository
func NewRepository(ctx context.Context, cfg *config.PostgresConfig, logger *slog.Logger) (*Repository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Repository{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// Ping checks the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// RunMigrations creates the tables this service reads and writes
func (r *Repository) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name VARCHAR(32) NOT NULL UNIQUE,
			priv INT NOT NULL DEFAULT 1,
			country CHAR(2) NOT NULL DEFAULT 'xx',
			donor_end BIGINT NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS stats (
			id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			mode SMALLINT NOT NULL,
			pp DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (id, mode)
		)`,
		`CREATE TABLE IF NOT EXISTS maps (
			id BIGINT PRIMARY KEY,
			artist VARCHAR(128) NOT NULL,
			title VARCHAR(128) NOT NULL,
			version VARCHAR(128) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scores (
			id BIGSERIAL PRIMARY KEY,
			map_id BIGINT NOT NULL,
			userid BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			mode SMALLINT NOT NULL,
			mods INT NOT NULL DEFAULT 0,
			client_checksum VARCHAR(128),
			client_flags INT NOT NULL DEFAULT 0,
			sanitized BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_donor_end ON users(donor_end) WHERE donor_end > 0`,
		`CREATE INDEX IF NOT EXISTS idx_scores_userid ON scores(userid)`,
	}

	for _, migration := range migrations {
		_, err := r.pool.Exec(ctx, migration)
		if err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	r.logger.Info("database migrations completed")
	return nil
}

// ExpiredDonors returns ids of accounts whose donation period ended but
// which still hold a donation privilege
func (r *Repository) ExpiredDonors(ctx context.Context, now time.Time) ([]int64, error) {
	query := `
		SELECT id FROM users
		WHERE donor_end <= $1 AND priv & $2 <> 0
	`
	rows, err := r.pool.Query(ctx, query, now.Unix(), int32(domain.PrivDonator))
	if err != nil {
		return nil, fmt.Errorf("listing expired donors: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scanning expired donors: %w", err)
	}
	return ids, nil
}

// GetPlayer loads an account by id
func (r *Repository) GetPlayer(ctx context.Context, id int64) (*domain.Player, error) {
	query := `
		SELECT id, name, priv, country, donor_end
		FROM users
		WHERE id = $1
	`
	var (
		p        domain.Player
		priv     int32
		donorEnd int64
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &priv, &p.Country, &donorEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("getting player: %w", err)
	}
	p.Privileges = domain.Privileges(priv)
	if donorEnd > 0 {
		p.DonorEnd = time.Unix(donorEnd, 0)
	}
	return &p, nil
}

// RevokeDonor atomically strips donation privileges and clears the expiry,
// but only while the account is still expired as of now. It reports the
// resulting privileges and whether anything changed.
func (r *Repository) RevokeDonor(ctx context.Context, id int64, now time.Time) (domain.Privileges, bool, error) {
	query := `
		UPDATE users
		SET priv = priv & ~$2, donor_end = 0
		WHERE id = $1 AND donor_end <= $3 AND priv & $2 <> 0
		RETURNING priv
	`
	var priv int32
	err := r.pool.QueryRow(ctx, query, id, int32(domain.PrivDonator), now.Unix()).Scan(&priv)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("revoking donor privileges: %w", err)
	}
	return domain.Privileges(priv), true, nil
}

// RankRows returns one row per (account, mode) stats entry
func (r *Repository) RankRows(ctx context.Context) ([]domain.RankRow, error) {
	query := `
		SELECT stats.id, users.priv, users.country, stats.pp, stats.mode
		FROM users
		INNER JOIN stats ON users.id = stats.id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing rank rows: %w", err)
	}
	defer rows.Close()

	var out []domain.RankRow
	for rows.Next() {
		var (
			row  domain.RankRow
			priv int32
			mode int16
		)
		if err := rows.Scan(&row.UserID, &priv, &row.Country, &row.Performance, &mode); err != nil {
			return nil, fmt.Errorf("scanning rank row: %w", err)
		}
		row.Privileges = domain.Privileges(priv)
		row.Mode = domain.GameMode(mode)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rank rows: %w", err)
	}
	return out, nil
}

// GetScore loads a score with its owner and beatmap
func (r *Repository) GetScore(ctx context.Context, id int64) (*domain.Score, error) {
	query := `
		SELECT s.id, s.mode, s.mods, COALESCE(s.client_checksum, ''), s.client_flags,
		       u.id, u.name, u.priv, u.country, u.donor_end,
		       m.id, m.artist || ' - ' || m.title || ' [' || m.version || ']'
		FROM scores s
		INNER JOIN users u ON u.id = s.userid
		INNER JOIN maps m ON m.id = s.map_id
		WHERE s.id = $1
	`
	var (
		s        domain.Score
		mode     int16
		mods     int32
		priv     int32
		donorEnd int64
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &mode, &mods, &s.ClientChecksum, &s.ClientFlags,
		&s.Player.ID, &s.Player.Name, &priv, &s.Player.Country, &donorEnd,
		&s.Beatmap.ID, &s.Beatmap.FullName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrScoreNotFound
		}
		return nil, fmt.Errorf("getting score: %w", err)
	}
	s.Mode = domain.GameMode(mode)
	s.Mods = domain.Mods(mods)
	s.Player.Privileges = domain.Privileges(priv)
	if donorEnd > 0 {
		s.Player.DonorEnd = time.Unix(donorEnd, 0)
	}
	return &s, nil
}

// StoreSanitizedScore replaces the client checksum with its digest and
// clears client flags. It reports false when the score was already scrubbed
// or does not exist.
func (r *Repository) StoreSanitizedScore(ctx context.Context, id int64, digest string) (bool, error) {
	query := `
		UPDATE scores
		SET client_checksum = $2, client_flags = 0, sanitized = TRUE
		WHERE id = $1 AND NOT sanitized
	`
	result, err := r.pool.Exec(ctx, query, id, digest)
	if err != nil {
		return false, fmt.Errorf("storing sanitized score: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

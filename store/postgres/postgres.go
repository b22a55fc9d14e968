// Package postgres provides the durable PostgreSQL implementations of the
// authcore store contracts over the pgx stdlib driver, with goose-managed
// embedded migrations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/croft-labs/authcore/internal"
	"github.com/croft-labs/authcore/store"
)

// Manager owns the database handle and hands out the two repositories.
type Manager struct {
	db          *sql.DB
	refresh     *RefreshRepository
	revocations *RevocationRepository
}

// Open connects to dsn, runs pending migrations, and returns the manager.
func Open(ctx context.Context, dsn string) (*Manager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	m := NewManager(db)
	if err := m.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

// NewManager wraps an existing database handle without running migrations.
func NewManager(db *sql.DB) *Manager {
	return &Manager{
		db:          db,
		refresh:     &RefreshRepository{db: db},
		revocations: &RevocationRepository{db: db},
	}
}

// RefreshTokens returns the refresh-token repository.
func (m *Manager) RefreshTokens() *RefreshRepository { return m.refresh }

// Revocations returns the revoked-access-token repository.
func (m *Manager) Revocations() *RevocationRepository { return m.revocations }

// Conn exposes the underlying handle for host-side pooling and stats.
func (m *Manager) Conn() *sql.DB { return m.db }

// RunMigrations applies the embedded goose migrations.
func (m *Manager) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, m.db, "migrations"); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (m *Manager) Close() error { return m.db.Close() }

// RefreshRepository implements store.RefreshTokenStore.
//
// Rotation atomicity relies on row-level locking: Rotate takes
// SELECT ... FOR UPDATE over the subject's rows inside one transaction, so
// concurrent rotations for the same subject serialize at the database and
// exactly one consumes the active row. Commit-or-nothing follows from the
// transaction itself.
type RefreshRepository struct {
	db *sql.DB
}

// Create implements store.RefreshTokenStore.
func (r *RefreshRepository) Create(ctx context.Context, token *store.RefreshToken) error {
	const query = `
		INSERT INTO refresh_tokens (id, subject_id, token_hash, created_at, expires_at, used, invalidated)
		VALUES ($1, $2, $3, $4, $5, FALSE, FALSE)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.SubjectID, token.TokenHash[:], token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// Rotate implements store.RefreshTokenStore.
func (r *RefreshRepository) Rotate(ctx context.Context, subjectID string, providedHash internal.TokenHash, next *store.RefreshToken) (*store.RotationOutcome, error) {
	var outcome *store.RotationOutcome

	err := withTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		rows, err := scanSubjectRowsForUpdate(ctx, tx, subjectID)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}

		now := time.Now()

		var matched *store.RefreshToken
		for _, row := range rows {
			if row.TokenHash.Equal(providedHash) {
				matched = row
				break
			}
		}

		switch {
		case matched == nil:
			return store.ErrRefreshNotFound
		case matched.Used() || matched.Invalidated():
			return store.ErrRefreshReused
		case !matched.Active(now):
			return store.ErrRefreshNotFound
		}

		const consume = `UPDATE refresh_tokens SET used = TRUE WHERE id = $1 AND used = FALSE AND invalidated = FALSE`
		res, err := tx.ExecContext(ctx, consume, matched.ID)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			// Lost a race the row lock should have prevented; treat as reuse.
			return store.ErrRefreshReused
		}
		if err := matched.MarkUsed(); err != nil {
			return store.ErrRefreshReused
		}

		out := &store.RotationOutcome{Consumed: matched, Issued: next}
		for _, row := range rows {
			if row == matched || !row.Active(now) {
				continue
			}
			const retire = `UPDATE refresh_tokens SET invalidated = TRUE WHERE id = $1 AND used = FALSE AND invalidated = FALSE`
			if _, err := tx.ExecContext(ctx, retire, row.ID); err != nil {
				return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
			}
			if err := row.MarkInvalidated(); err != nil {
				continue
			}
			out.Invalidated = append(out.Invalidated, row)
		}

		const insert = `
			INSERT INTO refresh_tokens (id, subject_id, token_hash, created_at, expires_at, used, invalidated)
			VALUES ($1, $2, $3, $4, $5, FALSE, FALSE)
		`
		if _, err := tx.ExecContext(ctx, insert,
			next.ID, next.SubjectID, next.TokenHash[:], next.CreatedAt, next.ExpiresAt); err != nil {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}

		outcome = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// InvalidateAllForSubject implements store.RefreshTokenStore.
func (r *RefreshRepository) InvalidateAllForSubject(ctx context.Context, subjectID string) ([]*store.RefreshToken, error) {
	var retired []*store.RefreshToken

	err := withTx(ctx, r.db, func(ctx context.Context, tx DBTX) error {
		rows, err := scanSubjectRowsForUpdate(ctx, tx, subjectID)
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
		}

		now := time.Now()
		for _, row := range rows {
			if !row.Active(now) {
				continue
			}
			const retire = `UPDATE refresh_tokens SET invalidated = TRUE WHERE id = $1 AND used = FALSE AND invalidated = FALSE`
			if _, err := tx.ExecContext(ctx, retire, row.ID); err != nil {
				return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
			}
			if err := row.MarkInvalidated(); err != nil {
				continue
			}
			retired = append(retired, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return retired, nil
}

// ListBySubject implements store.RefreshTokenStore.
func (r *RefreshRepository) ListBySubject(ctx context.Context, subjectID string) ([]*store.RefreshToken, error) {
	const query = `
		SELECT id, subject_id, token_hash, created_at, expires_at, used, invalidated
		FROM refresh_tokens
		WHERE subject_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	defer rows.Close()
	return collectRefreshRows(rows)
}

// PruneExpired implements store.RefreshTokenStore.
func (r *RefreshRepository) PruneExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return res.RowsAffected()
}

// PruneSubject implements store.RefreshTokenStore.
func (r *RefreshRepository) PruneSubject(ctx context.Context, subjectID string, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE subject_id = $1 AND expires_at < $2`
	res, err := r.db.ExecContext(ctx, query, subjectID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return res.RowsAffected()
}

// RevocationRepository implements store.RevocationStore.
type RevocationRepository struct {
	db *sql.DB
}

// Revoke implements store.RevocationStore. Conflicting jtis keep their
// original entry; the denylist is append-only.
func (r *RevocationRepository) Revoke(ctx context.Context, revocation store.RevokedAccessToken) error {
	const query = `
		INSERT INTO revoked_access_tokens (jti, subject_id, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		revocation.JTI, revocation.SubjectID, revocation.ExpiresAt, revocation.RevokedAt)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// IsRevoked implements store.RevocationStore. Entries past their copied
// expiry count as not revoked; the token is dead by expiry regardless.
func (r *RevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM revoked_access_tokens WHERE jti = $1 AND expires_at > NOW())`
	var revoked bool
	if err := r.db.QueryRowContext(ctx, query, jti).Scan(&revoked); err != nil {
		return false, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return revoked, nil
}

// PruneExpired implements store.RevocationStore.
func (r *RevocationRepository) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM revoked_access_tokens WHERE expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return res.RowsAffected()
}

// PruneSubject implements store.RevocationStore.
func (r *RevocationRepository) PruneSubject(ctx context.Context, subjectID string, now time.Time) (int64, error) {
	const query = `DELETE FROM revoked_access_tokens WHERE subject_id = $1 AND expires_at < $2`
	res, err := r.db.ExecContext(ctx, query, subjectID, now)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return res.RowsAffected()
}

func scanSubjectRowsForUpdate(ctx context.Context, tx DBTX, subjectID string) ([]*store.RefreshToken, error) {
	const query = `
		SELECT id, subject_id, token_hash, created_at, expires_at, used, invalidated
		FROM refresh_tokens
		WHERE subject_id = $1
		ORDER BY created_at
		FOR UPDATE
	`
	rows, err := tx.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRefreshRows(rows)
}

func collectRefreshRows(rows *sql.Rows) ([]*store.RefreshToken, error) {
	var out []*store.RefreshToken
	for rows.Next() {
		var (
			id, subject          string
			hashRaw              []byte
			createdAt, expiresAt time.Time
			used, invalidated    bool
		)
		if err := rows.Scan(&id, &subject, &hashRaw, &createdAt, &expiresAt, &used, &invalidated); err != nil {
			return nil, err
		}

		var hash internal.TokenHash
		copy(hash[:], hashRaw)
		out = append(out, store.Rehydrate(id, subject, hash, createdAt, expiresAt, used, invalidated))
	}
	return out, rows.Err()
}

var (
	_ store.RefreshTokenStore = (*RefreshRepository)(nil)
	_ store.RevocationStore   = (*RevocationRepository)(nil)
)

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/and161185/cookiepool/internal/errs"
	"github.com/and161185/cookiepool/internal/model"
	"github.com/and161185/cookiepool/internal/repository"
)

var _ repository.CredentialRepository = (*CredentialRepo)(nil)

const (
	qAdd = `
INSERT INTO credentials (identity, seq, record)
VALUES ($1, nextval('credential_seq'), $2)
ON CONFLICT (identity) DO UPDATE SET seq = EXCLUDED.seq
RETURNING (xmax = 0) AS inserted, record`

	qTrim = `
DELETE FROM credentials
WHERE identity IN (SELECT identity FROM credentials ORDER BY seq DESC OFFSET $1)`

	qReplaceRecord = `UPDATE credentials SET record=$2 WHERE identity=$1`

	qList = `SELECT identity, record FROM credentials ORDER BY seq DESC`

	qListForUpdate = `SELECT identity, record FROM credentials ORDER BY seq DESC FOR UPDATE`

	qDeleteMany = `DELETE FROM credentials WHERE identity = ANY($1)`
)

// CredentialRepo implements CredentialRepository using PostgreSQL.
// Rows are keyed by identity; pool order comes from the seq column.
type CredentialRepo struct {
	db    *DB
	codec repository.Codec
	log   *zap.Logger
}

// NewCredentialRepo constructs a credential repository.
func NewCredentialRepo(db *DB, codec repository.Codec, log *zap.Logger) *CredentialRepo {
	return &CredentialRepo{db: db, codec: codec, log: log}
}

// Add upserts c at the head of the pool and trims the tail to capacity.
func (r *CredentialRepo) Add(ctx context.Context, c model.Credential, capacity int) (model.Credential, bool, error) {
	raw, err := r.codec.Encode(c)
	if err != nil {
		return model.Credential{}, false, err
	}

	stored := c
	var inserted bool
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var existing []byte
		if err := tx.QueryRow(ctx, qAdd, c.Identity, raw).Scan(&inserted, &existing); err != nil {
			return fmt.Errorf("insert credential: %w", err)
		}
		if !inserted {
			prev, derr := r.codec.Decode(c.Identity, existing)
			if derr == nil {
				stored = prev
			} else {
				// the stored copy is unreadable; replace it with the fresh one
				r.log.Warn("replacing unreadable credential record",
					zap.String("identity", c.Identity), zap.Error(derr))
				if _, err := tx.Exec(ctx, qReplaceRecord, c.Identity, raw); err != nil {
					return fmt.Errorf("replace credential: %w", err)
				}
				inserted = true
			}
		}
		if _, err := tx.Exec(ctx, qTrim, capacity); err != nil {
			return fmt.Errorf("trim pool: %w", err)
		}
		return nil
	})
	if err != nil {
		return model.Credential{}, false, err
	}
	return stored, inserted, nil
}

// List returns readable entries, most recent first.
func (r *CredentialRepo) List(ctx context.Context) ([]model.Credential, error) {
	rows, err := r.db.Pool.Query(ctx, qList)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return r.scanAll(rows)
}

// Update rewrites the record of an existing identity.
func (r *CredentialRepo) Update(ctx context.Context, c model.Credential) error {
	raw, err := r.codec.Encode(c)
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx, qReplaceRecord, c.Identity, raw)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RemoveWhere deletes matching entries under row locks.
func (r *CredentialRepo) RemoveWhere(ctx context.Context, pred func(model.Credential) bool) (int, error) {
	var removed int
	err := r.db.inTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, qListForUpdate)
		if err != nil {
			return fmt.Errorf("lock credentials: %w", err)
		}
		all, err := r.scanAll(rows)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(all))
		for _, c := range all {
			if pred(c) {
				ids = append(ids, c.Identity)
			}
		}
		if len(ids) == 0 {
			return nil
		}

		tag, err := tx.Exec(ctx, qDeleteMany, ids)
		if err != nil {
			return fmt.Errorf("delete credentials: %w", err)
		}
		removed = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// scanAll decodes every row, skipping unreadable records. It closes rows.
func (r *CredentialRepo) scanAll(rows pgx.Rows) ([]model.Credential, error) {
	defer rows.Close()

	out := make([]model.Credential, 0)
	for rows.Next() {
		var (
			identity string
			raw      []byte
		)
		if err := rows.Scan(&identity, &raw); err != nil {
			return nil, err
		}
		c, err := r.codec.Decode(identity, raw)
		if err != nil {
			if errors.Is(err, repository.ErrUnreadableRecord) {
				r.log.Warn("skipping unreadable credential record",
					zap.String("identity", identity), zap.Error(err))
				continue
			}
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

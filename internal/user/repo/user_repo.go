package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-client-bot/internal/message"
	"github.com/ovaphlow/pitchfork/service-client-bot/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/database"
)

// UserRepo provides data access for the user_info and admin_info tables.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureTable creates user_info and admin_info if they do not exist.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS user_info (
  tg_user_id BIGINT PRIMARY KEY,
  role TEXT,
  last_message_ids BIGINT[] NOT NULL DEFAULT '{}'
);
CREATE TABLE IF NOT EXISTS admin_info (
  tg_user_id BIGINT PRIMARY KEY
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Get returns the user row or sql.ErrNoRows.
func (r *UserRepo) Get(ctx context.Context, id int64) (*entity.User, error) {
	var u entity.User
	const q = `SELECT tg_user_id, role FROM user_info WHERE tg_user_id=$1`
	if err := r.db.GetContext(ctx, &u, q, id); err != nil {
		return nil, err
	}
	return &u, nil
}

// Register inserts the user with role. A row created earlier without a role
// gets one; an existing role is never overwritten.
func (r *UserRepo) Register(ctx context.Context, id int64, role entity.Role) error {
	const q = `INSERT INTO user_info (tg_user_id, role, last_message_ids) VALUES ($1, $2, '{}')
		ON CONFLICT (tg_user_id) DO UPDATE SET role = COALESCE(user_info.role, EXCLUDED.role)`
	_, err := r.db.ExecContext(ctx, q, id, string(role))
	return err
}

// RegisterAdmin adds id to the admin registry (idempotent).
func (r *UserRepo) RegisterAdmin(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO admin_info (tg_user_id) VALUES ($1) ON CONFLICT DO NOTHING`, id)
	return err
}

// ListAdminIDs returns every registered administrator.
func (r *UserRepo) ListAdminIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, `SELECT tg_user_id FROM admin_info ORDER BY tg_user_id`); err != nil {
		return nil, err
	}
	return ids, nil
}

// AppendMessageIDs merges ids into the user's outstanding set. The row is
// locked for the read-merge-write so concurrent appends do not lose ids.
func (r *UserRepo) AppendMessageIDs(ctx context.Context, id int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var current pq.Int64Array
		err := tx.GetContext(ctx, &current, `SELECT COALESCE(last_message_ids, '{}') FROM user_info WHERE tg_user_id=$1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			// no row to lock yet; the upsert merges if another caller wins the insert
			const ins = `INSERT INTO user_info (tg_user_id, last_message_ids) VALUES ($1, $2)
				ON CONFLICT (tg_user_id) DO UPDATE SET last_message_ids =
				  COALESCE(user_info.last_message_ids, '{}') ||
				  ARRAY(SELECT x FROM unnest(EXCLUDED.last_message_ids) AS x
				        WHERE x <> ALL(COALESCE(user_info.last_message_ids, '{}')))`
			_, err := tx.ExecContext(ctx, ins, id, pq.Int64Array(message.MergeIDs(nil, ids)))
			return err
		}
		if err != nil {
			return err
		}
		merged := message.MergeIDs(current, ids)
		if len(merged) == len(current) {
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE user_info SET last_message_ids=$2 WHERE tg_user_id=$1`, id, pq.Int64Array(merged))
		return err
	})
}

// TakeMessageIDs returns the outstanding set and empties it in one
// transaction. A missing user yields an empty set.
func (r *UserRepo) TakeMessageIDs(ctx context.Context, id int64) ([]int64, error) {
	var taken pq.Int64Array
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &taken, `SELECT COALESCE(last_message_ids, '{}') FROM user_info WHERE tg_user_id=$1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if len(taken) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `UPDATE user_info SET last_message_ids='{}' WHERE tg_user_id=$1`, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if taken == nil {
		return []int64{}, nil
	}
	return []int64(taken), nil
}

// ClearMessageIDs empties the outstanding set.
func (r *UserRepo) ClearMessageIDs(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE user_info SET last_message_ids='{}' WHERE tg_user_id=$1`, id)
	return err
}

package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-client-bot/pkg/database"
)

var (
	// ErrPhoneTaken is returned when another client already owns the number.
	ErrPhoneTaken = errors.New("phone already registered")
	// ErrProfileExists is returned when the user already has a profile.
	ErrProfileExists = errors.New("client profile already exists")
)

const (
	uniqueViolation = "23505"
	phoneIndex      = "idx_client_info_tel_num"
	primaryKey      = "client_info_pkey"
)

type ClientRepo struct {
	db *sqlx.DB
}

func NewClientRepo(db *sqlx.DB) *ClientRepo {
	return &ClientRepo{db: db}
}

// EnsureTable creates client_info and the trigger publishing row changes on
// channel. The payload is {"old": OLD row, "new": NEW row}.
func (r *ClientRepo) EnsureTable(ctx context.Context, channel string) error {
	const tbl = `
	CREATE TABLE IF NOT EXISTS client_info (
		tg_user_id BIGINT PRIMARY KEY,
		tel_num varchar(16) NOT NULL,
		notif_text TEXT,
		product_photo_path TEXT,
		receipt_photo_path TEXT
	);
	`
	if _, err := r.db.ExecContext(ctx, tbl); err != nil {
		return err
	}

	idx := `CREATE UNIQUE INDEX IF NOT EXISTS ` + phoneIndex + ` ON client_info (tel_num);`
	if _, err := r.db.ExecContext(ctx, idx); err != nil {
		return err
	}

	fn := fmt.Sprintf(`
	CREATE OR REPLACE FUNCTION notify_client_update() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify(%s, json_build_object(
			'txid', txid_current(),
			'at', clock_timestamp(),
			'old', row_to_json(OLD),
			'new', row_to_json(NEW))::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql;
	`, database.QuoteLiteral(channel))
	if _, err := r.db.ExecContext(ctx, fn); err != nil {
		return err
	}

	const trg = `
	DROP TRIGGER IF EXISTS client_info_notify ON client_info;
	CREATE TRIGGER client_info_notify AFTER UPDATE ON client_info
		FOR EACH ROW EXECUTE FUNCTION notify_client_update();
	`
	if _, err := r.db.ExecContext(ctx, trg); err != nil {
		return err
	}
	return nil
}

// Create stores the client's phone.
func (r *ClientRepo) Create(ctx context.Context, id int64, phone string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO client_info (tg_user_id, tel_num) VALUES ($1, $2)`, id, phone)
	return mapErr(err)
}

// Exists reports whether id has a profile.
func (r *ClientRepo) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS(SELECT 1 FROM client_info WHERE tg_user_id=$1)`, id)
	return ok, err
}

// FindByPhone returns the owner of phone or sql.ErrNoRows.
func (r *ClientRepo) FindByPhone(ctx context.Context, phone string) (int64, error) {
	var id int64
	if err := r.db.GetContext(ctx, &id, `SELECT tg_user_id FROM client_info WHERE tel_num=$1`, phone); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdatePhone replaces the phone of id. Returns sql.ErrNoRows when id has
// no profile.
func (r *ClientRepo) UpdatePhone(ctx context.Context, id int64, phone string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE client_info SET tel_num=$2 WHERE tg_user_id=$1`, id, phone)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func mapErr(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case phoneIndex:
		return ErrPhoneTaken
	case primaryKey:
		return ErrProfileExists
	}
	return err
}

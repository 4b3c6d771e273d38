package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/iamwavecut/tool"
	"github.com/jmoiron/sqlx"
)

type kvRow struct {
	Value     string        `db:"value"`
	ExpiresAt sql.NullInt64 `db:"expires_at"`
}

func (r kvRow) expired(now time.Time) bool {
	return r.ExpiresAt.Valid && r.ExpiresAt.Int64 <= now.UnixNano()
}

func (c *Client) expiresAt(ttl time.Duration) sql.NullInt64 {
	if ttl <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: c.now().Add(ttl).UnixNano(), Valid: true}
}

func (c *Client) getRow(ctx context.Context, q sqlx.QueryerContext, key string) (*kvRow, error) {
	row := &kvRow{}
	err := sqlx.GetContext(ctx, q, row, `SELECT value, expires_at FROM kv_store WHERE key = ?`, key)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get value for key %s: %w", key, err)
	}
	if row.expired(c.now()) {
		return nil, nil
	}
	return row, nil
}

func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	row, err := c.getRow(ctx, c.db, key)
	if err != nil || row == nil {
		return "", false, err
	}
	return row.Value, true, nil
}

const upsertKV = `
	INSERT INTO kv_store (key, value, expires_at, updated_at)
	VALUES (?, ?, ?, datetime('now'))
	ON CONFLICT(key) DO UPDATE SET
	value = excluded.value,
	expires_at = excluded.expires_at,
	updated_at = excluded.updated_at
`

func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := tool.Err(c.db.ExecContext(ctx, upsertKV, key, value, c.expiresAt(ttl))); err != nil {
		return fmt.Errorf("failed to set value for key %s: %w", key, err)
	}
	return nil
}

func (c *Client) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var n int64
	err := c.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := c.getRow(ctx, tx, key)
		if err != nil {
			return err
		}
		expires := c.expiresAt(ttl)
		if row != nil {
			current, err := strconv.ParseInt(row.Value, 10, 64)
			if err != nil {
				return fmt.Errorf("value of %s is not an integer: %w", key, err)
			}
			n = current + 1
			expires = row.ExpiresAt
		} else {
			n = 1
		}
		return tool.Err(tx.ExecContext(ctx, upsertKV, key, strconv.FormatInt(n, 10), expires))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", key, err)
	}
	return n, nil
}

func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	row, err := c.getRow(ctx, c.db, key)
	if err != nil {
		return false, err
	}
	if row != nil {
		return true, nil
	}
	var count int
	err = c.db.GetContext(ctx, &count, `
		SELECT (SELECT COUNT(*) FROM hash_fields WHERE key = ?) + (SELECT COUNT(*) FROM set_members WHERE key = ?)
	`, key, key)
	if err != nil {
		return false, fmt.Errorf("failed to check key %s: %w", key, err)
	}
	return count > 0, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, q := range []string{
			`DELETE FROM kv_store WHERE key = ?`,
			`DELETE FROM hash_fields WHERE key = ?`,
			`DELETE FROM set_members WHERE key = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, key); err != nil {
				return fmt.Errorf("failed to delete key %s: %w", key, err)
			}
		}
		return nil
	})
}

func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	row, err := c.getRow(ctx, c.db, key)
	if err != nil || row == nil || !row.ExpiresAt.Valid {
		return 0, err
	}
	return time.Unix(0, row.ExpiresAt.Int64).Sub(c.now()), nil
}

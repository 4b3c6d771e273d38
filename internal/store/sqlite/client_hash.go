package sqlite

import (
	"context"
	"fmt"
	"strconv"

	"github.com/iamwavecut/tool"
	"github.com/jmoiron/sqlx"
)

type hashField struct {
	Field string `db:"field"`
	Value string `db:"value"`
}

func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var value string
	err := c.db.GetContext(ctx, &value, `SELECT value FROM hash_fields WHERE key = ? AND field = ?`, key, field)
	if err != nil {
		if isNoRows(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get %s.%s: %w", key, field, err)
	}
	return value, true, nil
}

func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var rows []hashField
	if err := c.db.SelectContext(ctx, &rows, `SELECT field, value FROM hash_fields WHERE key = ?`, key); err != nil {
		return nil, fmt.Errorf("failed to get hash %s: %w", key, err)
	}
	res := make(map[string]string, len(rows))
	for _, row := range rows {
		res[row.Field] = row.Value
	}
	return res, nil
}

func (c *Client) HSet(ctx context.Context, key, field, value string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO hash_fields (key, field, value)
		VALUES (?, ?, ?)
		ON CONFLICT(key, field) DO UPDATE SET value = excluded.value
	`
	if err := tool.Err(c.db.ExecContext(ctx, query, key, field, value)); err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", key, field, err)
	}
	return nil
}

func (c *Client) HSetNX(ctx context.Context, key, field, value string) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `INSERT OR IGNORE INTO hash_fields (key, field, value) VALUES (?, ?, ?)`, key, field, value)
	if err != nil {
		return false, fmt.Errorf("failed to set %s.%s: %w", key, field, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func (c *Client) HDel(ctx context.Context, key, field string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := tool.Err(c.db.ExecContext(ctx, `DELETE FROM hash_fields WHERE key = ? AND field = ?`, key, field)); err != nil {
		return fmt.Errorf("failed to delete %s.%s: %w", key, field, err)
	}
	return nil
}

func (c *Client) HExists(ctx context.Context, key, field string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	if err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM hash_fields WHERE key = ? AND field = ?`, key, field); err != nil {
		return false, fmt.Errorf("failed to check %s.%s: %w", key, field, err)
	}
	return count > 0, nil
}

func (c *Client) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var n int64
	err := c.inTx(ctx, func(tx *sqlx.Tx) error {
		var current string
		err := tx.GetContext(ctx, &current, `SELECT value FROM hash_fields WHERE key = ? AND field = ?`, key, field)
		switch {
		case isNoRows(err):
			n = delta
		case err != nil:
			return err
		default:
			v, err := strconv.ParseInt(current, 10, 64)
			if err != nil {
				return fmt.Errorf("hash value is not an integer: %w", err)
			}
			n = v + delta
		}
		return tool.Err(tx.ExecContext(ctx, `
			INSERT INTO hash_fields (key, field, value)
			VALUES (?, ?, ?)
			ON CONFLICT(key, field) DO UPDATE SET value = excluded.value
		`, key, field, strconv.FormatInt(n, 10)))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s.%s: %w", key, field, err)
	}
	return n, nil
}

package sqlite

import (
	"context"
	"fmt"

	"github.com/iamwavecut/tool"
)

func (c *Client) SAdd(ctx context.Context, key, member string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := tool.Err(c.db.ExecContext(ctx, `INSERT OR IGNORE INTO set_members (key, member) VALUES (?, ?)`, key, member)); err != nil {
		return fmt.Errorf("failed to add %s to %s: %w", member, key, err)
	}
	return nil
}

func (c *Client) SRem(ctx context.Context, key, member string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if err := tool.Err(c.db.ExecContext(ctx, `DELETE FROM set_members WHERE key = ? AND member = ?`, key, member)); err != nil {
		return fmt.Errorf("failed to remove %s from %s: %w", member, key, err)
	}
	return nil
}

func (c *Client) SIsMember(ctx context.Context, key, member string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	if err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM set_members WHERE key = ? AND member = ?`, key, member); err != nil {
		return false, fmt.Errorf("failed to check %s in %s: %w", member, key, err)
	}
	return count > 0, nil
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	members := []string{}
	if err := c.db.SelectContext(ctx, &members, `SELECT member FROM set_members WHERE key = ? ORDER BY member`, key); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", key, err)
	}
	return members, nil
}

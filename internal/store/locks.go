package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"
)

// TryLockOrder takes a session advisory lock keyed by the order id without waiting. The lock lives on a
// dedicated pooled connection until release is called. ok is false when another session holds it.
func TryLockOrder(ctx context.Context, db *sql.DB, orderID int64) (release func(), ok bool, err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("lock order %d: %w", orderID, err)
	}

	err = conn.QueryRowContext(ctx,
		`SELECT pg_try_advisory_lock($1)`, orderID).Scan(&ok)
	if err != nil || !ok {
		conn.Close()
		if err != nil {
			return nil, false, fmt.Errorf("lock order %d: %w", orderID, err)
		}
		return nil, false, nil
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var unlocked bool
		if err := conn.QueryRowContext(ctx,
			`SELECT pg_advisory_unlock($1)`, orderID).Scan(&unlocked); err != nil || !unlocked {
			// Drop the connection so the session, and the lock with it, goes away.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		conn.Close()
	}

	return release, true, nil
}

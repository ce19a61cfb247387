package repository

import (
	"context"
	"database/sql"

	"github.com/DukeRupert/liftaudit/internal/domain"
)

// Connector hands out dedicated job store connections from a pool.
type Connector struct {
	db *sql.DB
}

// NewConnector creates a Connector over db.
func NewConnector(db *sql.DB) *Connector {
	return &Connector{db: db}
}

// Session is a JobStore bound to one pinned connection.
// The owner must Close it when the connection is no longer trusted.
type Session struct {
	*JobStore
	conn *sql.Conn
}

// Connect pins a connection and verifies it with a ping.
func (c *Connector) Connect(ctx context.Context) (*Session, error) {
	const op = "repository.Connect"

	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, domain.Wrap(err, domain.ETRANSIENT, op, "failed to acquire job store connection")
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, domain.Wrap(err, domain.ETRANSIENT, op, "job store ping failed")
	}
	return &Session{JobStore: NewJobStore(conn), conn: conn}, nil
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

package sqlgateway

import (
	"context"
	"github.com/denismitr/batchmig/internal/database"
	"github.com/denismitr/batchmig/internal/retry"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"time"
)

const (
	DefaultConnectionAttempts    = 20
	DefaultConnectionTimeout     = 60 * time.Second
	DefaultConnectionAttemptStep = 500 * time.Millisecond
)

type ConnectOptions struct {
	MaxAttempts int
	MaxTimeout  time.Duration
	RetryStep   time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: DefaultConnectionAttempts,
		MaxTimeout:  DefaultConnectionTimeout,
		RetryStep:   DefaultConnectionAttemptStep,
	}
}

// handle pins every statement of a migrator to one pooled connection,
// which session level locks and in-memory sqlite databases both rely on
type handle struct {
	*sqlx.Conn
}

func (h handle) Begin(ctx context.Context) (database.Tx, error) {
	tx, err := h.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not begin transaction")
	}

	return tx, nil
}

// RetryingConnector takes a single connection out of the pool, retrying
// with an incremental pause while the database is not reachable yet
type RetryingConnector struct {
	options *ConnectOptions
	db      *sqlx.DB
	h       *handle
}

var _ database.Connector = (*RetryingConnector)(nil)

func NewRetryingConnector(db *sqlx.DB, options *ConnectOptions) *RetryingConnector {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	return &RetryingConnector{db: db, options: options}
}

func (c *RetryingConnector) Timeout() time.Duration {
	return c.options.MaxTimeout
}

func (c *RetryingConnector) Connect(ctx context.Context) (database.Handle, error) {
	if c.h != nil {
		return c.h, nil
	}

	if c.db == nil {
		return nil, database.ErrConnectorNotInitialized
	}

	if c.options.MaxTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.options.MaxTimeout)
		defer cancel()
	}

	var conn *sqlx.Conn
	err := retry.Incremental(ctx, c.options.RetryStep, c.options.MaxAttempts, func(ctx context.Context, attempt int) error {
		candidate, err := c.db.Connx(ctx)
		if err != nil {
			return retry.Retryable(errors.Wrap(err, "could not establish DB connection"), attempt)
		}

		if err := candidate.PingContext(ctx); err != nil {
			_ = candidate.Close()
			return retry.Retryable(errors.Wrap(err, "db ping failed"), attempt)
		}

		conn = candidate

		return nil
	})

	if err != nil {
		return nil, err
	}

	c.h = &handle{Conn: conn}

	return c.h, nil
}

func (c *RetryingConnector) Close() error {
	if c.h == nil {
		return nil
	}

	conn := c.h.Conn
	c.h = nil

	if err := conn.Close(); err != nil {
		return errors.Wrap(err, "retrying connector could not close the connection")
	}

	return nil
}

package bus

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// schema - таблица записей аудита. Повторная запись с тем же id игнорируется.
const schema = `CREATE TABLE IF NOT EXISTS audit_records (
	id          TEXT PRIMARY KEY,
	routing_key TEXT NOT NULL,
	parent_id   TEXT NOT NULL DEFAULT '',
	payload     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
)`

const insertRecord = `INSERT INTO audit_records (id, routing_key, parent_id, payload, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING`

// Postgres - транспорт в таблицу audit_records. Владеет пулом соединений.
type Postgres struct {
	db *sql.DB
}

// NewPostgres создаёт транспорт поверх пула соединений
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close закрывает пул
func (p *Postgres) Close() error {
	return p.db.Close()
}

// OpenPostgres открывает пул по DSN и проверяет соединение
func OpenPostgres(ctx context.Context, dsn string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (p *Postgres) Name() string { return "postgres" }

// EnsureSchema создаёт таблицу, если её нет
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create audit_records: %w", err)
	}
	return nil
}

// Dial берёт соединение из пула на одну сессию
func (p *Postgres) Dial(ctx context.Context) (Conn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres conn: %w", err)
	}
	return &pgConn{conn: conn}, nil
}

type pgConn struct {
	conn *sql.Conn
}

func (c *pgConn) Publish(ctx context.Context, msg Message) error {
	if msg.ID == "" {
		return fmt.Errorf("postgres publish %s: record id is required", msg.RoutingKey)
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := c.conn.ExecContext(ctx, insertRecord, msg.ID, msg.RoutingKey, msg.ParentID, string(msg.Body), ts)
	if err != nil {
		return fmt.Errorf("postgres publish %s: %w", msg.RoutingKey, err)
	}
	return nil
}

func (c *pgConn) Close() error {
	return c.conn.Close()
}

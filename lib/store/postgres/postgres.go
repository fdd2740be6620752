// Package postgres implements the store interface for PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/tarancss/safesave/lib/store"
)

// Schema creates the tables used by the store.
const Schema = `
CREATE TABLE IF NOT EXISTS groups (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	code            TEXT NOT NULL UNIQUE,
	admin           TEXT NOT NULL,
	members         TEXT[] NOT NULL DEFAULT '{}',
	pending         TEXT[] NOT NULL DEFAULT '{}',
	savings_goal    DOUBLE PRECISION NOT NULL DEFAULT 0,
	current_savings DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS groups_name_idx ON groups (lower(name));
CREATE TABLE IF NOT EXISTS group_wallets (
	wallet   TEXT PRIMARY KEY,
	group_id TEXT NOT NULL REFERENCES groups (id) ON DELETE CASCADE
);
CREATE TABLE IF NOT EXISTS watch_state (
	contract TEXT PRIMARY KEY,
	state    JSONB NOT NULL
);`

const groupColumns = `id, name, code, admin, members, pending, savings_goal, current_savings, is_active, created_at,
 updated_at`

// qualified are the group columns of statements joining other tables.
const qualified = `groups.id, groups.name, groups.code, groups.admin, groups.members, groups.pending,
 groups.savings_goal, groups.current_savings, groups.is_active, groups.created_at, groups.updated_at`

// uniqueViolation is the postgres error code of unique constraint violations.
const uniqueViolation = "23505"

// walletsKey is the constraint keeping every wallet in at most one group.
const walletsKey = "group_wallets_pkey"

// Postgres implements a connection to a PostgreSQL database.
type Postgres struct {
	db *sql.DB
}

// New returns a postgres client connection to the specified database in 'connection' and creates the schema.
func New(connection string) (*Postgres, error) {
	db, err := sql.Open("postgres", connection)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to DB in %s: %w", connection, err)
	}

	p := NewWithDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:gomnd // 5 seconds timeout
	defer cancel()

	if _, err = db.ExecContext(ctx, Schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("cannot create schema: %w", err)
	}

	return p, nil
}

// NewWithDB returns a store on an open database handle.
func NewWithDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Close will close any database connection. Must be called at termination time.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// CreateGroup inserts g, filling its id, code and timestamps, and claims its wallets.
func (p *Postgres) CreateGroup(ctx context.Context, g *store.Group) error {
	g.Prepare(time.Now().UTC())

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO groups (`+groupColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		g.ID, g.Name, g.Code, g.Admin, pq.Array(g.Members), pq.Array(g.Pending), g.SavingsGoal, g.CurrentSavings,
		g.IsActive, g.CreatedAt, g.UpdatedAt)
	if err == nil {
		_, err = tx.ExecContext(ctx, `INSERT INTO group_wallets (wallet, group_id) SELECT unnest($1::TEXT[]), $2`,
			pq.Array(g.Wallets()), g.ID)
	}

	if err != nil {
		_ = tx.Rollback()

		return wrap("could not insert group", err)
	}

	return wrap("could not insert group", tx.Commit())
}

// Groups returns all the groups sorted by creation time.
func (p *Postgres) Groups(ctx context.Context) ([]store.Group, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+groupColumns+` FROM groups ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("error getting groups: %w", err)
	}
	defer rows.Close()

	gs := []store.Group{}

	for rows.Next() {
		g, err := scan(rows)
		if err != nil {
			return nil, err
		}

		gs = append(gs, g)
	}

	return gs, rows.Err()
}

// Group returns the group with the given id.
func (p *Postgres) Group(ctx context.Context, id string) (store.Group, error) {
	return p.queryOne(ctx, `WHERE id = $1`, id)
}

// GroupByCode returns the group with the given join code, case insensitive.
func (p *Postgres) GroupByCode(ctx context.Context, code string) (store.Group, error) {
	return p.queryOne(ctx, `WHERE code = $1`, strings.ToUpper(code))
}

// GroupOf returns the group wallet is a member of or has asked to join.
func (p *Postgres) GroupOf(ctx context.Context, wallet string) (store.Group, error) {
	return p.queryOne(ctx, `WHERE id = (SELECT group_id FROM group_wallets WHERE wallet = $1)`, wallet)
}

func (p *Postgres) queryOne(ctx context.Context, where string, arg interface{}) (store.Group, error) {
	g, err := scan(p.db.QueryRowContext(ctx, `SELECT `+groupColumns+` FROM groups `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		err = store.ErrDataNotFound
	}

	return g, err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scan(s scanner) (g store.Group, err error) {
	err = s.Scan(&g.ID, &g.Name, &g.Code, &g.Admin, pq.Array(&g.Members), pq.Array(&g.Pending), &g.SavingsGoal,
		&g.CurrentSavings, &g.IsActive, &g.CreatedAt, &g.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("error reading group: %w", err)
	}

	return
}

// UpdateGroup writes the settings of g and reloads it.
func (p *Postgres) UpdateGroup(ctx context.Context, g *store.Group) error {
	u, err := scan(p.db.QueryRowContext(ctx, `UPDATE groups SET name = $2, code = $3, savings_goal = $4,
		current_savings = $5, is_active = $6, updated_at = $7 WHERE id = $1 RETURNING `+groupColumns,
		g.ID, g.Name, g.Code, g.SavingsGoal, g.CurrentSavings, g.IsActive, time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrDataNotFound
	}

	if err != nil {
		return wrap("could not update group", err)
	}

	*g = u

	return nil
}

// RequestJoin claims wallet for the group with the given join code and adds it to the pending requests.
func (p *Postgres) RequestJoin(ctx context.Context, code, wallet string) (store.Group, error) {
	g, err := scan(p.db.QueryRowContext(ctx, `WITH w AS (
			INSERT INTO group_wallets (wallet, group_id) SELECT $1, id FROM groups WHERE code = $2 RETURNING group_id
		)
		UPDATE groups SET pending = array_append(pending, $1), updated_at = $3 FROM w WHERE groups.id = w.group_id
		RETURNING `+qualified, wallet, strings.ToUpper(code), time.Now().UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return g, store.ErrDataNotFound
	}

	return g, wrap("could not update group", err)
}

// Approve moves the pending request of wallet to the members.
func (p *Postgres) Approve(ctx context.Context, id, wallet string) (store.Group, error) {
	g, err := scan(p.db.QueryRowContext(ctx, `UPDATE groups SET pending = array_remove(pending, $2),
		members = array_append(members, $2), updated_at = $3 WHERE id = $1 AND $2 = ANY(pending)
		RETURNING `+groupColumns, id, wallet, time.Now().UTC()))

	return g, p.notPending(ctx, id, err)
}

// Reject drops the pending request of wallet and releases it.
func (p *Postgres) Reject(ctx context.Context, id, wallet string) (store.Group, error) {
	g, err := scan(p.db.QueryRowContext(ctx, `WITH g AS (
			UPDATE groups SET pending = array_remove(pending, $2), updated_at = $3 WHERE id = $1 AND $2 = ANY(pending)
			RETURNING `+groupColumns+`
		), d AS (
			DELETE FROM group_wallets WHERE wallet = $2 AND group_id IN (SELECT id FROM g)
		)
		SELECT `+groupColumns+` FROM g`, id, wallet, time.Now().UTC()))

	return g, p.notPending(ctx, id, err)
}

// RemoveMember drops wallet from the members and pending requests of the group and releases it.
func (p *Postgres) RemoveMember(ctx context.Context, id, wallet string) error {
	res, err := p.db.ExecContext(ctx, `WITH g AS (
			UPDATE groups SET members = array_remove(members, $2), pending = array_remove(pending, $2), updated_at = $3
			WHERE id = $1 AND ($2 = ANY(members) OR $2 = ANY(pending)) RETURNING id
		)
		DELETE FROM group_wallets WHERE wallet = $2 AND group_id IN (SELECT id FROM g)`, id, wallet, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("could not update group: %w", err)
	}

	return affected(res)
}

// notPending tells a missing group from a missing request after a filtered update.
func (p *Postgres) notPending(ctx context.Context, id string, err error) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return wrap("could not update group", err)
	}

	if _, errG := p.Group(ctx, id); errG == nil {
		return store.ErrNotPending
	}

	return store.ErrDataNotFound
}

// DeleteGroup removes the group with the given id.
func (p *Postgres) DeleteGroup(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("could not delete group: %w", err)
	}

	return affected(res)
}

// LoadWatch loads from db the watcher state for the indicated contract.
func (p *Postgres) LoadWatch(ctx context.Context, contract string) (ws store.WatchState, err error) {
	var b []byte

	err = p.db.QueryRowContext(ctx, `SELECT state FROM watch_state WHERE contract = $1`, contract).Scan(&b)
	if errors.Is(err, sql.ErrNoRows) {
		return ws, store.ErrDataNotFound
	}

	if err != nil {
		return ws, fmt.Errorf("error reading watch state: %w", err)
	}

	err = json.Unmarshal(b, &ws)

	return
}

// SaveWatch saves to db the watcher state for the indicated contract.
func (p *Postgres) SaveWatch(ctx context.Context, contract string, ws store.WatchState) error {
	b, err := json.Marshal(ws)
	if err != nil {
		return err
	}

	_, err = p.db.ExecContext(ctx, `INSERT INTO watch_state (contract, state) VALUES ($1, $2)
		ON CONFLICT (contract) DO UPDATE SET state = EXCLUDED.state`, contract, b)

	return err
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n != 1 {
		return store.ErrDataNotFound
	}

	return nil
}

func wrap(msg string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == walletsKey {
			return store.ErrInGroup
		}

		return store.ErrDuplicate
	}

	return fmt.Errorf("%s: %w", msg, err)
}

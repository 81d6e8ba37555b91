package statestore

import (
	"context"
	"fmt"
	"strings"

	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// Postgres stores documents in the client_state table.
type Postgres struct {
	sql infra.SQLExecutor
}

func NewPostgres(sql infra.SQLExecutor) *Postgres {
	return &Postgres{sql: sql}
}

func (p *Postgres) Get(ctx context.Context, owner, key string) ([]byte, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, ErrInvalidOwner
	}
	var value []byte
	if err := p.sql.QueryRow(ctx, sqlinline.QSelectClientState, owner, key).Scan(&value); err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("statestore: load %s: %w", key, err)
	}
	return value, nil
}

func (p *Postgres) Put(ctx context.Context, owner, key string, value []byte) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return ErrInvalidOwner
	}
	if _, err := p.sql.Exec(ctx, sqlinline.QUpsertClientState, owner, key, value); err != nil {
		return fmt.Errorf("statestore: save %s: %w", key, err)
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, owner, key string) error {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return ErrInvalidOwner
	}
	if _, err := p.sql.Exec(ctx, sqlinline.QDeleteClientState, owner, key); err != nil {
		return fmt.Errorf("statestore: delete %s: %w", key, err)
	}
	return nil
}

var _ Store = (*Postgres)(nil)

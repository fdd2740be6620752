// Package store defines the interface for database implementations to the api and watcher microservices.
package store

import (
	"context"
	"errors"
)

// DB defines required methods for the api and watcher services.
type DB interface {
	// methods for the api service
	CreateGroup(ctx context.Context, g *Group) error
	Groups(ctx context.Context) ([]Group, error)
	Group(ctx context.Context, id string) (Group, error)
	GroupByCode(ctx context.Context, code string) (Group, error)
	GroupOf(ctx context.Context, wallet string) (Group, error)
	// UpdateGroup writes the settings of g (name, code, goal, savings, active) and reloads g. Members and pending
	// requests are only changed by the single-wallet methods below.
	UpdateGroup(ctx context.Context, g *Group) error
	DeleteGroup(ctx context.Context, id string) error
	RequestJoin(ctx context.Context, code, wallet string) (Group, error)
	Approve(ctx context.Context, id, wallet string) (Group, error)
	Reject(ctx context.Context, id, wallet string) (Group, error)
	RemoveMember(ctx context.Context, id, wallet string) error
	// methods for the watcher service
	LoadWatch(ctx context.Context, contract string) (WatchState, error)
	SaveWatch(ctx context.Context, contract string, ws WatchState) error
	Close() error
}

// Errors returned
var (
	ErrDataNotFound = errors.New("data was not found in store")
	ErrDuplicate    = errors.New("a group with the same name or code already exists")
	ErrInGroup      = errors.New("wallet already belongs to a group")
	ErrNotPending   = errors.New("wallet has no pending join request")
)

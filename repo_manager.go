package guestuser

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// RepositoryManager exposes the stores the lifecycle manager works against.
type RepositoryManager interface {
	Validate() error
	MustValidate()
	RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error
	Users() Users
	Guests() Guests
}

type mngr struct {
	db     *bun.DB
	users  Users
	guests Guests
}

type RepositoryManagerOption func(*mngr)

// WithGuestsRepository swaps the guest marker store, e.g. for an application
// specific marker model.
func WithGuestsRepository(guests Guests) RepositoryManagerOption {
	return func(m *mngr) {
		if guests != nil {
			m.guests = guests
		}
	}
}

// WithUsersRepository swaps the identity store implementation.
func WithUsersRepository(users Users) RepositoryManagerOption {
	return func(m *mngr) {
		if users != nil {
			m.users = users
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...RepositoryManagerOption) RepositoryManager {
	m := &mngr{
		db:     db,
		users:  NewUsersRepository(db),
		guests: NewGuestsRepository(db),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// NewRepositoryManagerFromConfig resolves the configured guest model key
// before wiring the repositories.
func NewRepositoryManagerFromConfig(db *bun.DB, cfg *Config, opts ...RepositoryManagerOption) (RepositoryManager, error) {
	constructor, err := ResolveGuestModel(cfg.GuestModel)
	if err != nil {
		return nil, err
	}
	opts = append([]RepositoryManagerOption{WithGuestsRepository(constructor(db))}, opts...)
	return NewRepositoryManager(db, opts...), nil
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.guests == nil {
		return errors.New("repository guests should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Guests() Guests {
	return m.guests
}

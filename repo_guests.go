package guestuser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Guests is the guest marker store. Markers are only ever written by the
// lifecycle manager; everything else reads.
type Guests interface {
	repository.Repository[*Guest]

	CreateForUser(ctx context.Context, userID uuid.UUID) (*Guest, error)
	CreateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Guest, error)

	ExistsForUser(ctx context.Context, userID uuid.UUID) (bool, error)
	ExistsForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (bool, error)

	// DeleteForUserTx removes the marker for a user and reports how many
	// rows went away. The rows-affected count is the optimistic guard that
	// lets exactly one of two racing conversions succeed.
	DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error)

	// FilterExpired returns markers created strictly before the cutoff,
	// oldest first, with their User relation loaded.
	FilterExpired(ctx context.Context, cutoff time.Time) ([]*Guest, error)
	FilterExpiredTx(ctx context.Context, tx bun.IDB, cutoff time.Time) ([]*Guest, error)
}

type guests struct {
	repository.Repository[*Guest]
	db  *bun.DB
	now Clock
}

var _ Guests = (*guests)(nil)

type GuestsOption func(*guests)

// WithGuestsClock pins marker creation timestamps, for tests.
func WithGuestsClock(clock Clock) GuestsOption {
	return func(g *guests) {
		if clock != nil {
			g.now = clock
		}
	}
}

func NewGuestsRepository(db *bun.DB, opts ...GuestsOption) Guests {
	repo := repository.NewRepository[*Guest](db, repository.ModelHandlers[*Guest]{
		NewRecord: func() *Guest { return &Guest{} },
		GetID: func(g *Guest) uuid.UUID {
			if g == nil {
				return uuid.Nil
			}
			return g.ID
		},
		SetID: func(g *Guest, id uuid.UUID) {
			if g != nil {
				g.ID = id
			}
		},
	})

	repoGuests := &guests{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoGuests)
		}
	}

	return repoGuests
}

func (g *guests) CreateForUser(ctx context.Context, userID uuid.UUID) (*Guest, error) {
	return g.CreateForUserTx(ctx, g.db, userID)
}

func (g *guests) CreateForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (*Guest, error) {
	record := &Guest{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: g.now(),
	}
	return g.Repository.CreateTx(ctx, tx, record)
}

func (g *guests) ExistsForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	return g.ExistsForUserTx(ctx, g.db, userID)
}

func (g *guests) ExistsForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (bool, error) {
	return tx.NewSelect().
		Model((*Guest)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exists(ctx)
}

func (g *guests) DeleteForUserTx(ctx context.Context, tx bun.IDB, userID uuid.UUID) (int64, error) {
	res, err := tx.NewDelete().
		Model((*Guest)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (g *guests) FilterExpired(ctx context.Context, cutoff time.Time) ([]*Guest, error) {
	return g.FilterExpiredTx(ctx, g.db, cutoff)
}

func (g *guests) FilterExpiredTx(ctx context.Context, tx bun.IDB, cutoff time.Time) ([]*Guest, error) {
	var records []*Guest
	err := tx.NewSelect().
		Model(&records).
		Relation("User").
		Where("?TableAlias.created_at < ?", cutoff).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Swappable guest model registry. Applications that need extra columns on
// the marker register a constructor and select it with Config.GuestModel.
var (
	guestModelsMu sync.RWMutex
	guestModels   = map[string]func(db *bun.DB) Guests{}
)

// RegisterGuestModel registers a guest marker repository constructor under a
// configuration key.
func RegisterGuestModel(name string, constructor func(db *bun.DB) Guests) {
	if name == "" || constructor == nil {
		return
	}
	guestModelsMu.Lock()
	defer guestModelsMu.Unlock()
	guestModels[name] = constructor
}

// ResolveGuestModel returns the constructor for the configured model key.
// The empty key resolves to the built-in Guest repository.
func ResolveGuestModel(name string) (func(db *bun.DB) Guests, error) {
	if name == "" {
		return func(db *bun.DB) Guests { return NewGuestsRepository(db) }, nil
	}
	guestModelsMu.RLock()
	defer guestModelsMu.RUnlock()
	if constructor, ok := guestModels[name]; ok {
		return constructor, nil
	}
	return nil, errors.New(
		fmt.Sprintf("unknown guest model %q", name),
		errors.CategoryOperation,
	).WithTextCode(TextCodeUnknownModel)
}

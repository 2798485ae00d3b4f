package guestuser

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// DefaultMaxCreateAttempts caps the retry loop for username collisions.
// Collisions are expected and benign; running out of attempts is not.
const DefaultMaxCreateAttempts = 64

// GuestManager orchestrates the guest lifecycle: creation with retry on
// username contention, classification, conversion and expiry reclamation.
// Correctness under concurrency is pushed down to the store's transactional
// guarantees; the manager holds no locks.
type GuestManager struct {
	repo        RepositoryManager
	cfg         *Config
	signals     *Signals
	logger      Logger
	maxAttempts int
	now         Clock
}

type GuestManagerOption func(*GuestManager)

// WithManagerLogger overrides the default logger.
func WithManagerLogger(logger Logger) GuestManagerOption {
	return func(m *GuestManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerSignals attaches an event bus for lifecycle notifications.
func WithManagerSignals(signals *Signals) GuestManagerOption {
	return func(m *GuestManager) {
		if signals != nil {
			m.signals = signals
		}
	}
}

// WithManagerClock pins time for expiry calculations, for tests.
func WithManagerClock(clock Clock) GuestManagerOption {
	return func(m *GuestManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithMaxCreateAttempts bounds the collision retry loop.
func WithMaxCreateAttempts(attempts int) GuestManagerOption {
	return func(m *GuestManager) {
		if attempts > 0 {
			m.maxAttempts = attempts
		}
	}
}

// NewGuestManager builds a manager. The config must have been validated.
func NewGuestManager(repo RepositoryManager, cfg *Config, opts ...GuestManagerOption) (*GuestManager, error) {
	if err := repo.Validate(); err != nil {
		return nil, err
	}

	m := &GuestManager{
		repo:        repo,
		cfg:         cfg,
		signals:     NewSignals(),
		logger:      defLogger{},
		maxAttempts: DefaultMaxCreateAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Signals returns the manager's event bus so collaborators can subscribe.
func (m *GuestManager) Signals() *Signals {
	return m.signals
}

// CreateGuestUser creates a new guest identity: a user row with an empty
// credential plus its guest marker, both in one transaction. A uniqueness
// violation aborts the transaction entirely and retries with a fresh name,
// so a marker-less guest is never observable. Returns the new user.
func (m *GuestManager) CreateGuestUser(ctx context.Context, req *GuestRequest) (*User, error) {
	if !m.cfg.Enabled {
		return nil, ErrGuestsDisabled
	}

	if req == nil {
		req = &GuestRequest{}
	}

	username := req.PreferredUsername
	if username == "" {
		username = m.cfg.GenerateUsername()
	}

	for attempt := 0; attempt < m.maxAttempts; attempt++ {
		var user *User
		err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			record := &User{
				Username:     username,
				PasswordHash: "",
			}
			created, err := m.repo.Users().CreateTx(ctx, tx, record)
			if err != nil {
				return err
			}
			if _, err := m.repo.Guests().CreateForUserTx(ctx, tx, created.ID); err != nil {
				return err
			}
			user = created
			return nil
		})

		if err == nil {
			m.logger.Debug("created guest user", "username", user.Username, "attempts", attempt+1)
			m.signals.emitGuestCreated(ctx, GuestCreatedEvent{
				User:       user,
				Path:       req.Path,
				UserAgent:  req.UserAgent,
				OccurredAt: m.now(),
			})
			return user, nil
		}

		if !IsUniqueViolation(err) {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create guest user")
		}

		// retry with a new username
		username = m.cfg.GenerateUsername()
	}

	return nil, ErrUsernamesExhausted
}

// IsGuest reports whether the user is a temporary guest. Anonymous users are
// never guests. When the request was authenticated by the guest verifier the
// marker query is skipped; the context flag is request scoped, so a
// conversion is visible to the next request immediately.
func (m *GuestManager) IsGuest(ctx context.Context, user *User) (bool, error) {
	if user.IsAnonymous() {
		return false, nil
	}

	if AuthMethodFromContext(ctx) == AuthMethodGuest {
		return true, nil
	}

	return m.repo.Guests().ExistsForUser(ctx, user.ID)
}

// Convert turns a guest into a permanent account by applying the supplied
// credentials to the same user row and removing the marker, atomically.
// The surrogate key and every relation pointing at it stay valid. A second
// call for the same user fails with ErrNotGuest and mutates nothing; when
// two calls race, the marker delete's rows-affected check lets exactly one
// succeed.
func (m *GuestManager) Convert(ctx context.Context, user *User, creds Credentials) (*User, error) {
	if user.IsAnonymous() {
		return nil, ErrNotGuest
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, err
	}

	var converted *User
	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		deleted, err := m.repo.Guests().DeleteForUserTx(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return ErrNotGuest
		}

		converted, err = m.repo.Users().UpdateCredentialsTx(ctx, tx, user.ID, creds.Username, hash)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	m.signals.emitConverted(ctx, ConvertedEvent{
		User:       converted,
		OccurredAt: m.now(),
	})

	return converted, nil
}

// FilterExpired returns the guest markers older than the configured maximum
// age, oldest first. Side effect free and safe to call concurrently with
// any other operation.
func (m *GuestManager) FilterExpired(ctx context.Context) ([]*Guest, error) {
	cutoff := m.now().Add(-m.cfg.MaxGuestAge())
	return m.repo.Guests().FilterExpired(ctx, cutoff)
}

// DeleteExpired reclaims every expired guest identity and returns how many
// were removed. Each identity is deleted in its own transaction; an
// interrupted run leaves the remainder for the next invocation.
func (m *GuestManager) DeleteExpired(ctx context.Context) (int, error) {
	expired, err := m.FilterExpired(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, guest := range expired {
		err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := m.repo.Guests().DeleteForUserTx(ctx, tx, guest.UserID); err != nil {
				return err
			}
			return m.repo.Users().DeleteByIDTx(ctx, tx, guest.UserID)
		})
		if err != nil {
			return count, goerrors.Wrap(err, goerrors.CategoryInternal, "could not delete expired guest")
		}
		count++
	}

	m.logger.Info("deleted expired guests", "count", count)
	return count, nil
}

package guestuser

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the host framework's identity record. The guest machinery creates,
// queries and deletes rows here but the model is otherwise owned by the
// embedding application.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"password_hash,omitempty"`
	LoggedInAt    *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsAnonymous reports whether the user is the unauthenticated pseudo-identity.
func (u *User) IsAnonymous() bool {
	return u == nil || u.ID == uuid.Nil
}

// HasUsablePassword reports whether the user carries credential material.
// Guest identities never do.
func (u *User) HasUsablePassword() bool {
	return u != nil && u.PasswordHash != ""
}

// Guest marks a User as a temporary guest. Its presence is the sole source
// of truth for guest classification. Rows are created transactionally with
// their User and removed on conversion or expiry.
type Guest struct {
	bun.BaseModel `bun:"table:guests,alias:gst"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID `bun:"user_id,notnull,unique,type:uuid" json:"user_id,omitempty"`
	User          *User     `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at,omitempty"`
}

// IsExpired reports whether the guest is older than maxAge at the given
// instant. The comparison is strict; a guest exactly maxAge old is retained.
func (g *Guest) IsExpired(maxAge time.Duration, now time.Time) bool {
	return g.CreatedAt.Before(now.Add(-maxAge))
}

func (g *Guest) String() string {
	if g.User != nil {
		return g.User.Username
	}
	return g.UserID.String()
}

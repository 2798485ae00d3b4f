// Package guestuser provides transparent temporary identities for web
// application visitors.
//
// Guest lifecycle:
//   - GuestManager creates a user row with an empty credential together with
//     its Guest marker in one transaction, retrying on username collisions.
//     The marker's presence is the sole source of truth for classification.
//   - Convert applies real credentials to the same user row and removes the
//     marker, so every foreign key held by the application survives the
//     upgrade. DeleteExpired reclaims guests older than the configured age.
//
// Access gates:
//   - Gate exposes AllowGuestUser, GuestRequired and RegularRequired, each
//     usable as router middleware or as a single-handler wrapper. They
//     translate classification outcomes into redirects and never surface raw
//     errors to the visitor.
//
// Authentication integration:
//   - GuestVerifier authenticates with a username only and must be the last
//     entry of the VerifierChain; NewGuestAuthenticator validates the
//     ordering at startup. Sessions carry an auth-method claim so the
//     classifier can skip the marker query on the request that logged the
//     guest in.
//
// Signals:
//   - Signals broadcasts GuestCreated and Converted events to registered
//     listeners, e.g. a federated login integration that auto-converts a
//     guest once they link an external account.
package guestuser

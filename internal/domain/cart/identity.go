package cart

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// guestTokenPrefix namespaces minted guest tokens so stray cookie values are
// cheaply rejected before any storage lookup.
const guestTokenPrefix = "guest_"

// guestTokenBytes is the entropy of a minted token. 32 random bytes, hex
// encoded.
const guestTokenBytes = 32

// NewGuestToken mints an opaque guest identifier. The token correlates an
// anonymous shopper's cart across requests; it is independent of any
// short-lived session state and is expected to be round-tripped by the client
// for the configured cookie lifetime.
func NewGuestToken() string {
	buf := make([]byte, guestTokenBytes)
	// crypto/rand.Read never fails on supported platforms.
	_, _ = rand.Read(buf)
	return guestTokenPrefix + hex.EncodeToString(buf)
}

// ValidGuestToken reports whether a client-provided token has the minted
// shape. Tokens that fail this check are ignored and replaced.
func ValidGuestToken(token string) bool {
	if !strings.HasPrefix(token, guestTokenPrefix) {
		return false
	}
	body := token[len(guestTokenPrefix):]
	if len(body) != guestTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(body)
	return err == nil
}

// Auth is the caller's authentication state for one request: an optional
// authenticated user and an optional guest token presented by the client.
type Auth struct {
	UserID     int64  // 0 when anonymous
	GuestToken string // empty when the client presented no token
}

// Authenticated reports whether the request carries a logged-in identity.
func (a Auth) Authenticated() bool {
	return a.UserID > 0
}

// Identity is the resolved owner of the authoritative cart for a request.
// Exactly one field is set.
type Identity struct {
	UserID     int64
	GuestToken string
}

// UserIdentity returns an identity owned by a user.
func UserIdentity(userID int64) Identity {
	return Identity{UserID: userID}
}

// GuestIdentity returns an identity owned by a guest token.
func GuestIdentity(token string) Identity {
	return Identity{GuestToken: token}
}

// Resolution is the outcome of identity resolution, including the token
// directives the transport layer must relay to the client.
type Resolution struct {
	Identity Identity

	// IssueToken, when non-empty, is a freshly minted guest token the client
	// must persist and round-trip on subsequent requests.
	IssueToken string

	// ClearToken instructs the client to drop its guest token: the token was
	// consumed by a merge or re-key and must not resurrect a deleted cart.
	ClearToken bool

	// Merge carries statistics when a guest cart was folded into a user cart
	// during this resolution. Nil otherwise.
	Merge *MergeStats
}

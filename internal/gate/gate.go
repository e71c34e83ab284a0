package gate

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AdminName is the single roster entry of the admin gate. The admin role
// carries no identity of its own.
const AdminName = "admin"

// MaxSecretLen is the longest secret bcrypt can tell apart. Longer submissions
// are refused rather than silently truncated.
const MaxSecretLen = 72

// Gate checks a name and secret against a fixed roster of bcrypt hashes.
type Gate struct {
	hashes map[string][]byte
	// compared against when the name is unknown, so both failure paths cost
	// one bcrypt comparison
	dummy []byte
}

// New hashes every plaintext secret in creds with the given cost. Values that
// already look like bcrypt hashes are kept as they are.
func New(creds map[string]string, cost int) (*Gate, error) {
	g := &Gate{hashes: make(map[string][]byte, len(creds))}

	for name, secret := range creds {
		if name == "" || secret == "" {
			return nil, fmt.Errorf("gate: empty name or secret")
		}
		if isBcryptHash(secret) {
			if _, err := bcrypt.Cost([]byte(secret)); err != nil {
				return nil, fmt.Errorf("gate: bad hash for %q: %w", name, err)
			}
			g.hashes[name] = []byte(secret)
			continue
		}
		if len(secret) > MaxSecretLen {
			return nil, fmt.Errorf("gate: secret for %q is longer than %d bytes", name, MaxSecretLen)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
		if err != nil {
			return nil, fmt.Errorf("gate: hash secret for %q: %w", name, err)
		}
		g.hashes[name] = hash
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("dummy-secret-never-matches"), cost)
	if err != nil {
		return nil, fmt.Errorf("gate: dummy hash: %w", err)
	}
	g.dummy = dummy

	return g, nil
}

// NewAdmin builds the gate for the single shared administrator secret.
func NewAdmin(secret string, cost int) (*Gate, error) {
	return New(map[string]string{AdminName: secret}, cost)
}

// Authenticate returns the matched roster name. Unknown names and wrong
// secrets both yield ErrInvalidCredentials.
func (g *Gate) Authenticate(name, secret string) (string, error) {
	hash, ok := g.hashes[name]
	if !ok || len(secret) > MaxSecretLen {
		_ = bcrypt.CompareHashAndPassword(g.dummy, []byte(secret))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(secret)); err != nil {
		return "", ErrInvalidCredentials
	}
	return name, nil
}

// Has reports whether name is on the roster.
func (g *Gate) Has(name string) bool {
	_, ok := g.hashes[name]
	return ok
}

func (g *Gate) Len() int {
	return len(g.hashes)
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}

// Package identity gates every mutation on the caller being a fully
// provisioned user: authenticated, with a display name, and holding a
// reserved username.
package identity

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrIncompleteProfile = errors.New("incomplete profile")
)

// Principal is the raw session identity extracted from a request before
// verification. A zero Principal means no session was presented.
type Principal struct {
	UserID string
	Name   string
}

// Identity is a verified, fully provisioned caller.
type Identity struct {
	UserID   string
	Name     string
	Username string
}

// UsernameDirectory resolves the reserved username for a user id. An empty
// username with a nil error means no reservation exists.
type UsernameDirectory interface {
	UsernameFor(ctx context.Context, userID string) (string, error)
}

type Verifier struct {
	directory UsernameDirectory
}

func NewVerifier(directory UsernameDirectory) *Verifier {
	return &Verifier{directory: directory}
}

// Verify checks the principal and returns the verified identity. It performs
// no writes; a failed verification leaves no side effects anywhere.
func (v *Verifier) Verify(ctx context.Context, principal Principal) (Identity, error) {
	userID := strings.TrimSpace(principal.UserID)
	if userID == "" {
		return Identity{}, ErrNotAuthenticated
	}
	name := strings.TrimSpace(principal.Name)
	if name == "" {
		return Identity{}, ErrIncompleteProfile
	}
	username, err := v.directory.UsernameFor(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	if strings.TrimSpace(username) == "" {
		return Identity{}, ErrIncompleteProfile
	}
	return Identity{UserID: userID, Name: name, Username: username}, nil
}

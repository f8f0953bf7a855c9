package identity

import (
	"context"
	"errors"
	"testing"
)

type fakeDirectory struct {
	usernames map[string]string
	err       error
}

func (f *fakeDirectory) UsernameFor(_ context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.usernames[userID], nil
}

func TestVerify(t *testing.T) {
	directory := &fakeDirectory{usernames: map[string]string{"user-1": "avery"}}
	verifier := NewVerifier(directory)

	cases := []struct {
		name      string
		principal Principal
		wantErr   error
	}{
		{name: "provisioned", principal: Principal{UserID: "user-1", Name: "Avery"}, wantErr: nil},
		{name: "no session", principal: Principal{}, wantErr: ErrNotAuthenticated},
		{name: "blank user id", principal: Principal{UserID: "  ", Name: "Avery"}, wantErr: ErrNotAuthenticated},
		{name: "missing display name", principal: Principal{UserID: "user-1"}, wantErr: ErrIncompleteProfile},
		{name: "no reserved username", principal: Principal{UserID: "user-2", Name: "Blair"}, wantErr: ErrIncompleteProfile},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := verifier.Verify(context.Background(), tc.principal)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Verify() error = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr == nil {
				if got.UserID != "user-1" || got.Name != "Avery" || got.Username != "avery" {
					t.Fatalf("unexpected identity: %+v", got)
				}
			}
		})
	}
}

func TestVerifySurfacesDirectoryError(t *testing.T) {
	wantErr := errors.New("directory down")
	verifier := NewVerifier(&fakeDirectory{err: wantErr})
	_, err := verifier.Verify(context.Background(), Principal{UserID: "user-1", Name: "Avery"})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Verify() error = %v, want %v", err, wantErr)
	}
}

package auth

import (
	"context"
	"time"

	fbauth "firebase.google.com/go/v4/auth"
)

// FirebaseAuth verifies Firebase ID tokens and manages Firebase users.
type FirebaseAuth struct {
	client *fbauth.Client
}

func NewFirebaseAuth(client *fbauth.Client) FirebaseAuth {
	return FirebaseAuth{client: client}
}

func (f FirebaseAuth) Verify(ctx context.Context, idToken string) (Principal, error) {
	tok, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{UID: tok.UID}
	p.Email, _ = tok.Claims["email"].(string)
	if tok.AuthTime > 0 {
		p.AuthTime = time.Unix(tok.AuthTime, 0).UTC()
	}
	return p, nil
}

func (f FirebaseAuth) DeleteUser(ctx context.Context, uid string) error {
	err := f.client.DeleteUser(ctx, uid)
	if fbauth.IsUserNotFound(err) {
		return nil
	}
	return err
}

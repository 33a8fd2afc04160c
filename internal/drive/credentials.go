package drive

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"google.golang.org/api/drive/v3"
)

// Credentials are the service-account fields needed to mint Drive access tokens.
type Credentials struct {
	ProjectID    string
	ClientEmail  string
	PrivateKeyID string
	PrivateKey   string // PEM, real newlines
}

// Validate reports which required fields are missing.
func (c Credentials) Validate() error {
	var missing []string
	if c.ClientEmail == "" {
		missing = append(missing, "CLIENT_EMAIL")
	}
	if c.PrivateKey == "" {
		missing = append(missing, "PRIVATE_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v not set", ErrMissingCredentials, missing)
	}
	return nil
}

// TokenSource returns a read-only Drive token source for the service account.
func (c Credentials) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &jwt.Config{
		Email:        c.ClientEmail,
		PrivateKey:   []byte(c.PrivateKey),
		PrivateKeyID: c.PrivateKeyID,
		Scopes:       []string{drive.DriveReadonlyScope},
		TokenURL:     google.JWTTokenURL,
	}
	return cfg.TokenSource(ctx), nil
}

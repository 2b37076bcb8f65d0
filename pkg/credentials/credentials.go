// Package credentials loads the Firebase service account and builds the Firebase app from it.
package credentials

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	firebase "firebase.google.com/go/v4"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// ErrMissing is returned when neither the environment nor the local file provide a service account.
var ErrMissing = errors.New("no Firebase service account found: set FIREBASE_SERVICE_ACCOUNT or add the credentials file")

// ErrNotServiceAccount is returned when the material parses but is not a service account key.
var ErrNotServiceAccount = errors.New("credentials are not a service account key")

// Source tells where the service account came from.
type Source string

const (
	SourceEnv  Source = "env"
	SourceFile Source = "file"
)

var scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/datastore",
	"https://www.googleapis.com/auth/firebase.messaging",
}

// Credentials is a parsed service account.
type Credentials struct {
	ProjectID string
	Source    Source

	google *google.Credentials
}

// Load reads the service account from the base64 encoded value, falling back to the file.
func Load(ctx context.Context, encoded, file string) (*Credentials, error) {
	var (
		raw    []byte
		source Source
		err    error
	)

	switch {
	case strings.TrimSpace(encoded) != "":
		raw, err = base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIREBASE_SERVICE_ACCOUNT: %w", err)
		}
		source = SourceEnv
	case file != "":
		raw, err = os.ReadFile(file)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrMissing
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file %s: %w", file, err)
		}
		source = SourceFile
	default:
		return nil, ErrMissing
	}

	// JWTConfigFromJSON only accepts "type": "service_account".
	if _, err := google.JWTConfigFromJSON(raw, scopes...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotServiceAccount, err)
	}

	creds, err := google.CredentialsFromJSON(ctx, raw, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account: %w", err)
	}

	return &Credentials{
		ProjectID: creds.ProjectID,
		Source:    source,
		google:    creds,
	}, nil
}

// ClientOption returns the option used by every Google client in the process.
func (c *Credentials) ClientOption() option.ClientOption {
	return option.WithCredentials(c.google)
}

// NewFirebaseApp initializes the Firebase app. An empty projectID uses the one in the service account.
func (c *Credentials) NewFirebaseApp(ctx context.Context, projectID string) (*firebase.App, error) {
	if projectID == "" {
		projectID = c.ProjectID
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, c.ClientOption())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	return app, nil
}

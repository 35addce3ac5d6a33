// Package gcp locates Google Cloud Application Default Credentials and turns
// them into client options for the BigQuery, Drive and Sheets wrappers.
package gcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// CredentialsEnv names the variable pointing at a credentials file.
const CredentialsEnv = "GOOGLE_APPLICATION_CREDENTIALS"

// ErrCredentialsNotSet is returned when no Application Default Credentials can be found.
var ErrCredentialsNotSet = errors.New(
	"google cloud credentials are not set: run 'gcloud auth application-default login' to set the credentials",
)

// Common OAuth scopes.
const (
	ScopeCloudPlatform  = "https://www.googleapis.com/auth/cloud-platform"
	ScopeDriveFile      = "https://www.googleapis.com/auth/drive.file"
	ScopeDriveReadOnly  = "https://www.googleapis.com/auth/drive.readonly"
	ScopeSheetsReadOnly = "https://www.googleapis.com/auth/spreadsheets.readonly"
)

// OAuthPath returns the credentials file in use: $GOOGLE_APPLICATION_CREDENTIALS
// when set, otherwise the gcloud application default location.
func OAuthPath() string {
	if path := os.Getenv(CredentialsEnv); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "~"
	}
	return filepath.Join(home, ".config", "gcloud", "application_default_credentials.json")
}

// IsOAuthSet reports whether Application Default Credentials can be found.
func IsOAuthSet(ctx context.Context) bool {
	_, err := google.FindDefaultCredentials(ctx, ScopeCloudPlatform)
	return err == nil
}

// RequireCredentials returns ErrCredentialsNotSet unless IsOAuthSet.
func RequireCredentials(ctx context.Context) error {
	if !IsOAuthSet(ctx) {
		return ErrCredentialsNotSet
	}
	return nil
}

// ClientOptions finds default credentials for scopes and returns them as
// API client options. A non-empty quotaProject bills API quota to that project.
func ClientOptions(ctx context.Context, quotaProject string, scopes ...string) ([]option.ClientOption, error) {
	creds, err := google.FindDefaultCredentials(ctx, scopes...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCredentialsNotSet, err)
	}

	opts := []option.ClientOption{option.WithCredentials(creds)}
	if quotaProject != "" {
		opts = append(opts, option.WithQuotaProject(quotaProject))
	}
	return opts, nil
}

package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"github.com/fclairamb/gallerystore/internal/apperrors"
)

const (
	defaultBranch = "main"
	defaultUser   = "gallerystore"
	defaultEmail  = "gallerystore@local"
)

// RemoteConfig holds configuration for the catalog history remote.
type RemoteConfig struct {
	URL      string // Remote git repository URL (GLS_GIT_URL)
	Password string // Password/token for HTTPS auth (GLS_GIT_PASS)
	Branch   string // Target branch (GLS_GIT_BRANCH)
	User     string // Commit author name (GLS_GIT_USER)
	Email    string // Commit author email (GLS_GIT_EMAIL)
	Push     *bool  // Push after each commit (GLS_PUSH), nil means push when URL is set
}

// WithDefaults returns a copy with empty fields set to their defaults.
func (c RemoteConfig) WithDefaults() RemoteConfig {
	if c.Branch == "" {
		c.Branch = defaultBranch
	}
	if c.User == "" {
		c.User = defaultUser
	}
	if c.Email == "" {
		c.Email = defaultEmail
	}
	return c
}

// IsEnabled returns true if a remote is configured.
func (c *RemoteConfig) IsEnabled() bool {
	return c != nil && c.URL != ""
}

// IsSSH returns true if the URL is an SSH URL.
func (c *RemoteConfig) IsSSH() bool {
	if c == nil || c.URL == "" {
		return false
	}
	return strings.HasPrefix(c.URL, "git@") || strings.HasPrefix(c.URL, "ssh://")
}

// IsPushEnabled returns true if commits should be pushed.
// When GLS_PUSH is not set, defaults to true if GLS_GIT_URL is set.
func (c *RemoteConfig) IsPushEnabled() bool {
	if c == nil {
		return false
	}
	if c.Push != nil {
		return *c.Push && c.URL != ""
	}
	return c.URL != ""
}

// GetAuth returns the appropriate authentication method for the remote URL.
func (c *RemoteConfig) GetAuth() (transport.AuthMethod, error) {
	if !c.IsEnabled() {
		return nil, apperrors.ErrRemoteNotConfigured
	}

	if c.IsSSH() {
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			return nil, fmt.Errorf("create SSH agent auth: %w", err)
		}
		return auth, nil
	}

	if c.Password == "" {
		return nil, apperrors.ErrHTTPSPasswordRequired
	}

	return &http.BasicAuth{
		Username: "oauth2",
		Password: c.Password,
	}, nil
}

// TestConnection checks that the remote can be listed with the configured credentials.
func (c *RemoteConfig) TestConnection(ctx context.Context) error {
	auth, err := c.GetAuth()
	if err != nil {
		return fmt.Errorf("get auth: %w", err)
	}

	rem := git.NewRemote(nil, &config.RemoteConfig{
		Name: "origin",
		URLs: []string{c.URL},
	})

	if _, err := rem.ListContext(ctx, &git.ListOptions{Auth: auth}); err != nil {
		// Empty repository is a valid connection
		if err.Error() == msgRemoteRepoEmpty {
			return nil
		}
		return fmt.Errorf("list remote: %w", err)
	}
	return nil
}

// Package history keeps every saved catalog as a git commit in the data directory.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/fclairamb/gallerystore/internal/apperrors"
)

const (
	msgRemoteRepoEmpty = "remote repository is empty"

	dirPerm = 0750 // Directory permissions: rwxr-x---
)

// Entry is one catalog revision.
type Entry struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// Recorder commits catalog revisions to a git repository.
type Recorder struct {
	rootPath     string
	repo         *git.Repository
	mu           sync.Mutex
	logger       *slog.Logger
	remoteConfig *RemoteConfig
}

// Option configures Recorder.
type Option func(*Recorder)

// WithLogger sets a custom logger for the recorder.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithRemoteConfig sets the remote git configuration.
func WithRemoteConfig(cfg *RemoteConfig) Option {
	return func(r *Recorder) {
		r.remoteConfig = cfg
	}
}

// Open opens the repository at path, creating or cloning it if needed.
func Open(path string, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		rootPath: path,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	repo, err := r.initializeRepository(path)
	if err != nil {
		return nil, err
	}
	r.repo = repo
	return r, nil
}

// Record stages the file at path and commits it if it changed.
func (r *Recorder) Record(ctx context.Context, path, message string) error {
	rel, err := filepath.Rel(r.rootPath, path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	r.mu.Lock()
	defer r.mu.Unlock()

	worktree, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("get worktree: %w", err)
	}

	if _, err := worktree.Add(rel); err != nil {
		return fmt.Errorf("git add %s: %w", rel, err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	fileStatus, listed := status[rel]
	if !listed || fileStatus.Staging == git.Unmodified {
		r.logger.DebugContext(ctx, "catalog unchanged, nothing to commit", "path", rel)
		return nil
	}

	cfg := r.authorConfig()
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  cfg.User,
			Email: cfg.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	r.logger.InfoContext(ctx, "catalog revision committed", "hash", hash.String(), "message", message)

	if r.remoteConfig.IsPushEnabled() {
		return r.push(ctx)
	}
	return nil
}

// Log returns the most recent revisions of the file at path, newest first.
// A limit of zero or less returns all of them.
func (r *Recorder) Log(ctx context.Context, path string, limit int) ([]Entry, error) {
	rel, err := filepath.Rel(r.rootPath, path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	r.mu.Lock()
	defer r.mu.Unlock()

	iter, err := r.repo.Log(&git.LogOptions{FileName: &rel})
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("git log: %w", err)
	}
	defer iter.Close()

	entries := []Entry{}
	err = iter.ForEach(func(c *object.Commit) error {
		if limit > 0 && len(entries) >= limit {
			return storer.ErrStop
		}
		entries = append(entries, Entry{
			Hash:    c.Hash.String(),
			Message: c.Message,
			Author:  c.Author.Name,
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}

	r.logger.DebugContext(ctx, "read catalog history", "count", len(entries))
	return entries, nil
}

// Revision returns the content of the file at path as of the given commit.
func (r *Recorder) Revision(ctx context.Context, path, hash string) ([]byte, error) {
	rel, err := filepath.Rel(r.rootPath, path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	commit, err := r.repo.CommitObject(plumbing.NewHash(hash))
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: revision %s", apperrors.ErrNotFound, hash)
		}
		return nil, fmt.Errorf("get commit %s: %w", hash, err)
	}

	file, err := commit.File(filepath.ToSlash(rel))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%w: %s at %s", apperrors.ErrNotFound, rel, hash)
		}
		return nil, fmt.Errorf("read %s at %s: %w", rel, hash, err)
	}

	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s at %s: %w", rel, hash, err)
	}

	r.logger.DebugContext(ctx, "read catalog revision", "hash", hash, "size", len(contents))
	return []byte(contents), nil
}

// Push pushes local commits to the remote repository.
func (r *Recorder) Push(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.push(ctx)
}

func (r *Recorder) push(ctx context.Context) error {
	auth, err := r.remoteConfig.GetAuth()
	if err != nil {
		return fmt.Errorf("get auth: %w", err)
	}

	r.logger.InfoContext(ctx, "pushing to remote", "url", r.remoteConfig.URL, "branch", r.remoteConfig.Branch)

	err = r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		Auth:       auth,
	})
	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			r.logger.InfoContext(ctx, "nothing to push")
			return nil
		}
		return fmt.Errorf("push: %w", err)
	}

	r.logger.InfoContext(ctx, "push complete")
	return nil
}

func (r *Recorder) authorConfig() RemoteConfig {
	if r.remoteConfig == nil {
		return RemoteConfig{}.WithDefaults()
	}
	return r.remoteConfig.WithDefaults()
}

// initializeRepository clones from the remote when the directory does not exist yet,
// and otherwise opens or creates a local repository.
func (r *Recorder) initializeRepository(path string) (*git.Repository, error) {
	_, statErr := os.Stat(path)
	dirExists := statErr == nil

	if r.remoteConfig.IsEnabled() && !dirExists {
		return r.cloneFromRemote(path)
	}
	return r.openOrCreateLocalRepo(path)
}

// cloneFromRemote clones a repository from the remote URL.
func (r *Recorder) cloneFromRemote(path string) (*git.Repository, error) {
	cfg := r.remoteConfig.WithDefaults()
	r.logger.Info("cloning catalog history from remote", "url", cfg.URL, "branch", cfg.Branch)

	auth, err := r.remoteConfig.GetAuth()
	if err != nil {
		return nil, fmt.Errorf("get auth: %w", err)
	}

	repo, err := git.PlainClone(path, false, &git.CloneOptions{
		URL:           cfg.URL,
		Auth:          auth,
		ReferenceName: plumbing.NewBranchReferenceName(cfg.Branch),
		SingleBranch:  true,
	})
	if err == nil {
		r.logger.Info("clone complete")
		return repo, nil
	}

	if err.Error() != msgRemoteRepoEmpty {
		return nil, fmt.Errorf("clone repository: %w", err)
	}

	r.logger.Info(msgRemoteRepoEmpty + ", initializing locally")
	// A failed clone may leave the directory behind
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return r.initNewRepo(path)
}

// openOrCreateLocalRepo opens an existing repository or creates a new one.
func (r *Recorder) openOrCreateLocalRepo(path string) (*git.Repository, error) {
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	repo, err := git.PlainOpen(path)
	if err == nil {
		return r.ensureRemoteConfigured(repo)
	}

	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open git repo: %w", err)
	}
	return r.initNewRepo(path)
}

// initNewRepo initializes a new git repository and optionally adds the remote.
func (r *Recorder) initNewRepo(path string) (*git.Repository, error) {
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init git repo: %w", err)
	}

	if r.remoteConfig.IsEnabled() {
		if err := r.addRemoteToRepo(repo); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// ensureRemoteConfigured adds the origin remote to an existing repository if missing.
func (r *Recorder) ensureRemoteConfigured(repo *git.Repository) (*git.Repository, error) {
	if !r.remoteConfig.IsEnabled() {
		return repo, nil
	}
	if _, err := repo.Remote("origin"); err == nil {
		return repo, nil
	}

	r.logger.Info("adding remote origin to existing repo", "url", r.remoteConfig.URL)
	if err := r.addRemoteToRepo(repo); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *Recorder) addRemoteToRepo(repo *git.Repository) error {
	_, err := repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{r.remoteConfig.URL},
	})
	if err != nil {
		return fmt.Errorf("add remote origin: %w", err)
	}
	return nil
}

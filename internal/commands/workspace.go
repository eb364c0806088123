package commands

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/b2a/internal/activitylog"
	"github.com/cleared-dev/b2a/internal/config"
	"github.com/cleared-dev/b2a/internal/gitops"
	"github.com/cleared-dev/b2a/internal/logging"
	"github.com/cleared-dev/b2a/internal/store"
)

// workspace is an initialized b2a directory opened for one command.
type workspace struct {
	dir    string
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
}

func openWorkspace(cmd *cobra.Command, dir string) (*workspace, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	cfg, err := config.Load(filepath.Join(absDir, config.FileName))
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dbPath(absDir, cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return &workspace{dir: absDir, cfg: cfg, store: st, logger: logger}, nil
}

func dbPath(dir string, cfg *config.Config) string {
	if filepath.IsAbs(cfg.Database.Path) {
		return cfg.Database.Path
	}
	return filepath.Join(dir, cfg.Database.Path)
}

func (w *workspace) Close() error {
	return w.store.Close()
}

// record appends to the activity log and, with git.auto_commit, commits the
// workspace. A failed commit is logged, not returned: the database already
// holds the change.
func (w *workspace) record(ctx context.Context, message string, entries ...activitylog.Entry) error {
	now := time.Now().UTC()
	for i := range entries {
		entries[i].Timestamp = now
		entries[i].ProjectID = w.cfg.Project.ID
	}
	if err := activitylog.Append(w.dir, entries...); err != nil {
		return err
	}
	if !w.cfg.Git.AutoCommit || !gitops.IsRepo(w.dir) {
		return nil
	}
	author := gitops.Author{Name: w.cfg.Git.AuthorName, Email: w.cfg.Git.AuthorEmail}
	hash, err := gitops.CommitAll(ctx, w.dir, message, author)
	if err != nil {
		w.logger.Warn("workspace commit failed", "error", err)
		return nil
	}
	if hash != "" {
		w.logger.Debug("workspace committed", "commit", hash, "message", message)
	}
	return nil
}

package cli

import (
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/bulkstep/internal/bulk"
	"github.com/roach88/bulkstep/internal/catalog"
	"github.com/roach88/bulkstep/internal/config"
	"github.com/roach88/bulkstep/internal/model"
	"github.com/roach88/bulkstep/internal/store"
)

// session is the per-command state: resolved config, logger, schema and,
// when opened, the store.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	reg       *model.Registry
	store     *store.Store
	formatter *OutputFormatter
}

// newSession resolves config and compiles the schema. Failures are reported
// through the formatter.
func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	s := &session{
		formatter: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
			Verbose:   opts.Verbose,
		},
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, s.formatter.FailCode(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.Schema != "" {
		cfg.Schema = opts.Schema
	}
	s.cfg = cfg
	s.logger = newLogger(cmd.ErrOrStderr(), cfg.Log, opts.Verbose)

	if cfg.Schema == "" {
		return nil, s.formatter.FailCode(ExitCommandError, ErrCodeSchema, "no schema",
			errors.New("set --schema, BULKSTEP_SCHEMA or schema in the config file"))
	}
	reg, err := catalog.Load(cfg.Schema)
	if err != nil {
		return nil, s.formatter.FailCode(ExitCommandError, ErrCodeSchema, "failed to load schema", err)
	}
	s.reg = reg
	s.formatter.VerboseLog("Loaded %d entity type(s) from %s", reg.Len(), cfg.Schema)
	return s, nil
}

// open opens the configured database, creating tables as needed.
func (s *session) open() error {
	s.logger.Debug("opening database", "path", s.cfg.Database)
	st, err := store.Open(s.cfg.Database, s.reg, store.WithLogger(s.logger))
	if err != nil {
		return s.formatter.FailCode(ExitCommandError, ErrCodeDatabase, "failed to open database", err)
	}
	s.store = st
	return nil
}

// close closes the store if it was opened.
func (s *session) close() {
	if s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("error closing database", "error", err)
	}
}

// executor builds a step executor over the store.
func (s *session) executor(step int) *bulk.Executor {
	return bulk.NewExecutor(s.store,
		bulk.WithTransactor(s.store),
		bulk.WithLogger(s.logger),
		bulk.WithStep(step),
	)
}

// step returns the flag value when positive, else the configured step.
func (s *session) step(flag int) int {
	if flag > 0 {
		return flag
	}
	return s.cfg.Step
}

// newLogger builds the slog logger for a command. Verbose forces debug.
func newLogger(w io.Writer, lc config.LogConfig, verbose bool) *slog.Logger {
	level, err := lc.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(lc.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// parseIDs converts command-line identities to values of t's key kind.
func parseIDs(t *model.EntityType, raw []string) ([]model.Value, error) {
	ids := make([]model.Value, 0, len(raw))
	for _, r := range raw {
		if t.KeyKind() == model.KeyUUID {
			ids = append(ids, model.String(r))
			continue
		}
		n, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, model.NewConfigurationError("%s identity %q is not an integer", t.Name, r)
		}
		ids = append(ids, model.Int(n))
	}
	return ids, nil
}

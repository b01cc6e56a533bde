package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/assistant-core/internal/config"
	httpapi "github.com/tbourn/assistant-core/internal/http"
	"github.com/tbourn/assistant-core/internal/observability"
	"github.com/tbourn/assistant-core/internal/repo"
	"github.com/tbourn/assistant-core/internal/services"
	"github.com/tbourn/assistant-core/internal/sysutil"
)

const shutdownTimeout = 15 * time.Second

// app carries state shared by every subcommand.
type app struct {
	envFile string
	cfg     config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "assistantd",
		Short:         "Assistant core: identities, idempotent ingestion and run admission",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "dotenv file to load (default $ENV_FILE or .env)")

	cmd.AddCommand(a.serveCommand())
	cmd.AddCommand(a.migrateCommand())
	cmd.AddCommand(a.linkCommand())
	cmd.AddCommand(a.runCommand())
	return cmd
}

// init loads the optional dotenv file, then configuration and logging.
// Variables already set in the environment win over the file.
func (a *app) init() error {
	path := sysutil.FirstNonEmpty(a.envFile, os.Getenv("ENV_FILE"), ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, cfg.LogPretty)
	return nil
}

// openStore opens the configured store and, unless skipped, migrates the schema.
func (a *app) openStore(migrate bool) (*gorm.DB, func(), error) {
	db, err := repo.Open(a.cfg.DB.Driver, a.cfg.DB.Path, a.cfg.DB.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if migrate {
		if err := repo.AutoMigrate(db); err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("migrate schema: %w", err)
		}
	}
	return db, closeFn, nil
}

func (a *app) serveCommand() *cobra.Command {
	var noMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, !(noMigrate || sysutil.IsTruthy(os.Getenv("SKIP_AUTO_MIGRATE"))))
		},
	}
	cmd.Flags().BoolVar(&noMigrate, "no-migrate", false, "skip schema migration on start")
	return cmd
}

func (a *app) serve(ctx context.Context, migrate bool) error {
	shutdownOTel, err := observability.SetupOTel(ctx, a.cfg, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, closeDB, err := a.openStore(migrate)
	if err != nil {
		return err
	}
	defer closeDB()

	gin.SetMode(a.cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, a.cfg)

	srv := &http.Server{
		Addr:              ":" + a.cfg.Port,
		Handler:           r,
		ReadTimeout:       a.cfg.ReadTimeout,
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		WriteTimeout:      a.cfg.WriteTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("driver", a.cfg.DB.Driver).
			Str("version", version).
			Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (a *app) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Plan or execute an identity migration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "plan <identity-id>",
		Short: "Count the rows a migration would rewrite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, func(s *httpapi.Services) (any, error) {
				return s.Migrations.PlanMigration(cmd.Context(), args[0])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "exec <identity-id>",
		Short: "Mint a new id and repoint every reference atomically",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, func(s *httpapi.Services) (any, error) {
				return s.Migrations.ExecuteMigration(cmd.Context(), args[0])
			})
		},
	})
	return cmd
}

func (a *app) linkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Inspect or revoke link codes",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status <provider> <provider-user-id>",
		Short: "Show the mapping and pending code of a provider identity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, func(s *httpapi.Services) (any, error) {
				return s.Identities.GetLinkStatus(cmd.Context(), args[0], args[1])
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <code>",
		Short: "Revoke a pending link code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withServices(cmd, func(s *httpapi.Services) (any, error) {
				if err := s.Identities.RevokeLinkCode(cmd.Context(), args[0]); err != nil {
					return nil, err
				}
				return map[string]string{"code": args[0], "status": "revoked"}, nil
			})
		},
	})
	return cmd
}

// runCommand admits a trigger and runs an external command at most once for
// it. The command's output goes to stderr so stdout stays the JSON outcome.
func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <subject-id> <run-key> -- <command> [args...]",
		Short: "Run a command at most once per (subject, run key)",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			trig := services.JobTrigger{
				SubjectID: args[0],
				RunKey:    args[1],
				Meta:      map[string]any{"command": args[2]},
			}
			var workErr error
			err := a.withServices(cmd, func(s *httpapi.Services) (any, error) {
				out, err := s.Jobs.HandleTrigger(cmd.Context(), trig, commandWork(cmd, args[2], args[3:]))
				if err != nil && !errors.As(err, new(*services.JobError)) {
					return nil, err
				}
				workErr = err
				return out, nil
			})
			if err != nil {
				return err
			}
			return workErr
		},
	}
}

// commandWork runs name with args. A non-zero exit is reported with an
// exit_<code> fail code.
func commandWork(cmd *cobra.Command, name string, args []string) services.Work {
	return func(ctx context.Context) error {
		c := exec.CommandContext(ctx, name, args...)
		c.Stdout = cmd.ErrOrStderr()
		c.Stderr = cmd.ErrOrStderr()
		err := c.Run()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &services.JobError{Code: "exit_" + strconv.Itoa(exitErr.ExitCode()), Err: err}
		}
		if err != nil {
			return &services.JobError{Code: "exec_failed", Err: err}
		}
		return nil
	}
}

// withServices opens the store, runs fn and prints its result as JSON.
func (a *app) withServices(cmd *cobra.Command, fn func(*httpapi.Services) (any, error)) error {
	db, closeDB, err := a.openStore(true)
	if err != nil {
		return err
	}
	defer closeDB()

	out, err := fn(httpapi.NewServices(db, a.cfg))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

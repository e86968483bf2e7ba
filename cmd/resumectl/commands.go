package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	httpserver "github.com/fairyhunter13/resume-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
)

const app = "resumectl"

// backend is what the data commands operate on.
type backend interface {
	Migrate(ctx context.Context) error
	PurgeVectors(ctx context.Context) error
	Reindex(ctx context.Context, resumeID string) (int, error)
	Close()
}

type opener func(ctx context.Context, cfg config.Config) (backend, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           app,
		Short:         "resumectl runs maintenance tasks for the resume evaluator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newMigrateCmd(open),
		newPurgeVectorsCmd(open),
		newReindexCmd(open),
		newHashPasswordCmd(),
	)
	return root
}

// withBackend loads config, sets up logging and runs fn against an opened backend.
func withBackend(cmd *cobra.Command, open opener, fn func(ctx context.Context, b backend) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cmd.ErrOrStderr(), cfg)
	ctx := obsctx.ContextWithLogger(cmd.Context(), logger)
	b, err := open(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, b)
}

func newMigrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b backend) error {
				if err := b.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
				return nil
			})
		},
	}
}

func newPurgeVectorsCmd(open opener) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge-vectors",
		Short: "Delete every chunk vector and recreate the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to purge without --yes")
			}
			return withBackend(cmd, open, func(ctx context.Context, b backend) error {
				if err := b.PurgeVectors(ctx); err != nil {
					return err
				}
				obsctx.LoggerFromContext(ctx).Warn("vector collection purged")
				fmt.Fprintln(cmd.OutOrStdout(), "vectors purged")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the purge")
	return cmd
}

func newReindexCmd(open opener) *cobra.Command {
	var resumeID string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Re-chunk and re-embed one resume or all of them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBackend(cmd, open, func(ctx context.Context, b backend) error {
				n, err := b.Reindex(ctx, resumeID)
				if err != nil {
					return err
				}
				obsctx.LoggerFromContext(ctx).Info("reindex finished", slog.String("resume_id", resumeID), slog.Int("resumes", n))
				fmt.Fprintf(cmd.OutOrStdout(), "reindexed %d resume(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&resumeID, "resume-id", "", "only reindex this resume")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print an ADMIN_PASSWORD_HASH value for the given password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return errors.New("password must not be empty")
			}
			hash, err := httpserver.HashPassword(args[0], httpserver.DefaultArgon2Params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

package main

import (
	"fmt"

	"asset-pipeline/internal/auth"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the lease sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, log, err := ctx.service()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			if migrate {
				if err := svc.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrate: %w", err)
				}
				log.Info("schema up to date")
			}

			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "Apply the schema before serving")
	return cmd
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, log, err := ctx.service()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			if err := svc.Migrate(cmd.Context()); err != nil {
				return err
			}
			log.Info("schema up to date")
			return nil
		},
	}
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one lease sweep and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, log, err := ctx.service()
			if err != nil {
				return err
			}
			defer log.Sync()
			defer svc.Close()

			result, err := svc.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued=%d failed=%d\n", result.Requeued, result.Failed)
			return nil
		},
	}
}

// newTokenCommand mints a session JWT for operators and local testing. It
// needs no database.
func newTokenCommand(ctx *commandContext) *cobra.Command {
	var (
		userID string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a session token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := ctx.ensure()
			if err != nil {
				return err
			}

			id := uuid.New()
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}

			r := auth.Role(role)
			if r != auth.RoleAdmin && r != auth.RoleUser {
				return fmt.Errorf("--role must be %q or %q", auth.RoleAdmin, auth.RoleUser)
			}

			token, err := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL).Generate(id, r)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id (random when empty)")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleAdmin), "admin or user")
	return cmd
}

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/domain/model"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/db/migrate"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/security"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/usecase"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Apply or inspect schema migrations"}
	for _, dir := range []string{"up", "down"} {
		cmd.AddCommand(&cobra.Command{
			Use:   dir,
			Short: "Migrate the schema " + dir,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := migrate.Run(a.cfg.Database.URL, dir); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "migrated %s\n", dir)
				return nil
			},
		})
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, dirty, err := migrate.Version(a.cfg.Database.URL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", v, dirty)
			return nil
		},
	})
	return cmd
}

func (a *app) seedCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "seed", Short: "Seed plans or admin accounts"}

	cmd.AddCommand(&cobra.Command{
		Use:   "plans",
		Short: "Insert the default plans that are missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			store, err := a.storage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			plans := usecase.NewPlanUseCase(store.Plans, a.log)
			n, err := plans.Seed(ctx, model.DefaultPlans())
			if err != nil {
				return err
			}
			all, err := plans.List(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d plan(s)\n", n)
			for _, p := range all {
				fmt.Fprintf(cmd.OutOrStdout(), "  - %s %s (%dh, %s %s)\n", p.ID, p.Name, p.DurationHours, model.FormatMinor(p.PriceMinor), p.Currency)
			}
			return nil
		},
	})

	var username, password, secret string
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Enroll an admin account with a TOTP second factor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			store, err := a.storage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var url string
			if secret == "" {
				if secret, url, err = security.GenerateTOTPKey(a.cfg.Auth.Issuer, username); err != nil {
					return err
				}
			}
			issuer, err := security.NewTokenIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, time.Now)
			if err != nil {
				return err
			}
			auth := usecase.NewAdminAuthUseCase(usecase.AdminAuthConfig{}, store.Admins, store.Tokens,
				security.NewHasher(a.cfg.Auth.BcryptCost), security.NewTOTP(), issuer, store.Attempts, a.log)
			p, err := auth.Enroll(ctx, username, password, secret)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enrolled %s (id=%s)\n", p.Username, p.ID)
			if url != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "totp secret: %s\nprovisioning url: %s\n", secret, url)
			}
			return nil
		},
	}
	admin.Flags().StringVar(&username, "username", "", "admin username")
	admin.Flags().StringVar(&password, "password", "", "admin password (min 8 characters)")
	admin.Flags().StringVar(&secret, "totp-secret", "", "base32 TOTP secret; generated when empty")
	_ = admin.MarkFlagRequired("username")
	_ = admin.MarkFlagRequired("password")
	cmd.AddCommand(admin)

	return cmd
}

func (a *app) codesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "codes", Short: "Manage access codes"}

	var planID string
	var quantity int
	gen := &cobra.Command{
		Use:   "generate",
		Short: "Issue a batch of UNUSED access codes for a plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			store, err := a.storage(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			codes := usecase.NewCodeRegistry(usecase.CodeRegistryConfig{
				Length:     a.cfg.Codes.Length,
				MaxBatch:   a.cfg.Codes.MaxBatch,
				PendingTTL: a.cfg.Codes.PendingTTL,
			}, store.Codes, store.Plans, store.TxManager, a.log)
			batch, err := codes.GenerateBatch(ctx, model.SystemActor(), planID, quantity)
			if err != nil {
				return err
			}
			for _, c := range batch.Codes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%dh\n", c.Code, batch.Plan.Name, c.DurationHours)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d code(s) issued, %d remaining in the code space\n", len(batch.Codes), batch.Remaining)
			return nil
		},
	}
	gen.Flags().StringVar(&planID, "plan", "", "plan id")
	gen.Flags().IntVar(&quantity, "quantity", 1, "number of codes")
	_ = gen.MarkFlagRequired("plan")
	cmd.AddCommand(gen)

	return cmd
}

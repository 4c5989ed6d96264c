// Command portalctl is the operator tool: schema migrations, seeding and
// offline code batches.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bwambale03/wifi-auth-and-ctrl/internal/bootstrap"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/config"
	"github.com/bwambale03/wifi-auth-and-ctrl/internal/infra/logging"
)

type app struct {
	cfgPath string
	dev     bool

	cfg *config.Config
	log *zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "portalctl",
		Short:         "Operate the WiFi portal: migrations, seeding, access codes",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadConfig(a.cfgPath, a.dev)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a.cfg = cfg
			a.log = logging.New(cfg.Log, true)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgPath, "config", "config.yaml", "path to YAML config file")
	root.PersistentFlags().BoolVar(&a.dev, "dev", false, "developer mode")

	root.AddCommand(a.migrateCmd(), a.seedCmd(), a.codesCmd())
	return root
}

// storage opens the configured database. portalctl against the in-memory
// store would write into a process that exits immediately.
func (a *app) storage(ctx context.Context) (*bootstrap.Storage, error) {
	if a.cfg.Database.URL == "" {
		return nil, errors.New("database.url is not set; set PORTAL_DATABASE_URL")
	}
	return bootstrap.Open(ctx, a.cfg, a.log)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 30*time.Second)
}

// Command tgsim resolves turns for the strategy game: it imports the world
// and each turn's moves, runs the economy tick and processes pending moves.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talgya/tgsim/internal/config"
	"github.com/talgya/tgsim/internal/persistence"
)

var (
	env config.Env
	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:           "tgsim",
	Short:         "Turn resolution for the territory strategy game",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if env, err = config.ParseEnv(); err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: env.SlogLevel(),
		}))
		slog.SetDefault(logger)

		if path, _ := cmd.Flags().GetString("config"); path != "" {
			env.ConfigPath = path
		}
		if path, _ := cmd.Flags().GetString("db"); path != "" {
			env.DBPath = path
		}

		cfg, err = config.Load(env.ConfigPath)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "tuning file (overrides TGSIM_CONFIG)")
	rootCmd.PersistentFlags().String("db", "", "database path (overrides TGSIM_DB_PATH)")
}

// openDB opens the store. With checkSchema set it refuses to continue
// against a database that is missing required tables or columns.
func openDB(ctx context.Context, checkSchema bool) (*persistence.DB, error) {
	db, err := persistence.Open(env.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("database opened", "path", env.DBPath)

	if checkSchema {
		if err := db.ValidateSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("tgsim failed", "error", err)
		stop()
		os.Exit(1)
	}
}

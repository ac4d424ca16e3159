package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/talgya/tgsim/internal/api"
	"github.com/talgya/tgsim/internal/engine"
	"github.com/talgya/tgsim/internal/importer"
	"github.com/talgya/tgsim/internal/moves"
	"github.com/talgya/tgsim/internal/report"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Migrate(cmd.Context()); err != nil {
			return err
		}
		slog.Info("schema migrated", "path", env.DBPath)
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the database schema and the tuning file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()

		slog.Info("schema ok", "path", env.DBPath)
		return cfg.Validate()
	},
}

var importWorldCmd = &cobra.Command{
	Use:   "import-world DIR",
	Short: "Load countries, provinces and states from CSV files in DIR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := importer.ImportWorld(cmd.Context(), db, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d countries, %d provinces, %d states (%d rows skipped)\n",
			stats.Countries, stats.Provinces, stats.States, stats.Skipped)
		return nil
	},
}

var importMovesCmd = &cobra.Command{
	Use:   "import-moves TURN",
	Short: "Import player_moves_turn_TURN.csv from the moves directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		turn, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("turn: %w", err)
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = env.MovesDir
		}

		db, err := openDB(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := importer.ImportMovesFile(cmd.Context(), db, dir, turn)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d moves for turn %d\n", n, turn)
		return nil
	},
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one economy tick over every country",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()

		r, err := engine.NewTickEngine(cfg).Run(cmd.Context(), db)
		if err != nil {
			return err
		}
		return report.WriteTick(cmd.OutOrStdout(), r)
	},
}

var movesCmd = &cobra.Command{
	Use:   "moves",
	Short: "Validate and execute every pending move",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := moves.NewProcessor(cfg).Process(cmd.Context(), db)
		if err != nil {
			return err
		}
		return report.WriteMoves(cmd.OutOrStdout(), res)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve economy records over HTTP and resolve turns on request",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer db.Close()

		srv := &api.Server{DB: db, Config: cfg, Addr: env.Addr, AdminKey: env.AdminKey}
		return srv.ListenAndServe(cmd.Context())
	},
}

func init() {
	importMovesCmd.Flags().String("dir", "", "moves directory (overrides TGSIM_MOVES_DIR)")
	rootCmd.SetErr(os.Stderr)
	rootCmd.AddCommand(migrateCmd, validateCmd, importWorldCmd, importMovesCmd, tickCmd, movesCmd, serveCmd)
}

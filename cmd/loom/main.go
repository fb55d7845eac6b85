package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/storyloom/loom/ai/engine"
	"github.com/storyloom/loom/ai/memory"
	"github.com/storyloom/loom/internal/profile"
)

var (
	version = "0.1.0"

	rootCmd = &cobra.Command{
		Use:   "loom",
		Short: "Narrative memory and context assembly engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			e, err := newEngine(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			go e.Lifecycle.Run(ctx)
			slog.Info("loom started", "version", version, "mode", e.Profile.Mode)

			c := make(chan os.Signal, 1)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c
			slog.Info("shutting down")
			cancel()
			return nil
		},
	}

	lifecycleCmd = &cobra.Command{
		Use:   "lifecycle",
		Short: "Run one memory lifecycle pass and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			e.Lifecycle.RunOnce(cmd.Context())
			return nil
		},
	}

	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Delete old, low-importance memories for an entity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, _ := cmd.Flags().GetString("owner")
			domain, _ := cmd.Flags().GetString("domain")
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			below, _ := cmd.Flags().GetFloat64("importance-below")

			e, err := newEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			store, ok := e.Stores[memory.Domain(domain)]
			if !ok {
				return fmt.Errorf("unknown memory domain %q", domain)
			}
			n, err := store.Prune(cmd.Context(), owner, time.Now().Add(-olderThan), below)
			if err != nil {
				return err
			}
			fmt.Printf("pruned %d records\n", n)
			return nil
		},
	}
)

func newEngine(ctx context.Context) (*engine.Engine, error) {
	p := &profile.Profile{
		Mode:      viper.GetString("mode"),
		Data:      viper.GetString("data"),
		Driver:    viper.GetString("driver"),
		DSN:       viper.GetString("dsn"),
		VectorDSN: viper.GetString("vector-dsn"),
		Version:   version,
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return engine.New(ctx, p)
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("data", ".")

	rootCmd.PersistentFlags().String("mode", "demo", `mode of the engine, can be "prod", "dev" or "demo"`)
	rootCmd.PersistentFlags().String("data", ".", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", `database driver, can be "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name for the knowledge graph")
	rootCmd.PersistentFlags().String("vector-dsn", "", "pgvector database backing the memory index")

	for _, flag := range []string{"mode", "data", "driver", "dsn", "vector-dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("loom")
	viper.AutomaticEnv()

	pruneCmd.Flags().String("owner", "", "entity whose memories to prune")
	pruneCmd.Flags().String("domain", string(memory.DomainScene), "memory domain to prune")
	pruneCmd.Flags().Duration("older-than", 48*time.Hour, "only prune records older than this")
	pruneCmd.Flags().Float64("importance-below", 0.5, "only prune records less important than this")

	rootCmd.AddCommand(lifecycleCmd, pruneCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

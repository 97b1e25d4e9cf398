package main

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/stanza"
	"github.com/aretw0/stanza/internal/logging"
	"github.com/aretw0/stanza/pkg/adapters/memory"
	"github.com/aretw0/stanza/pkg/adapters/redis"
	"github.com/aretw0/stanza/pkg/adapters/sqlite"
	"github.com/aretw0/stanza/pkg/persistence/middleware"
	"github.com/aretw0/stanza/pkg/ports"
)

var rootCmd = &cobra.Command{
	Use:   "stanza",
	Short: "Stanza executes interactive markdown documents",
	Long:  `Stanza turns declarative documents into interactive sessions: typed state, forms, navigation and durable timed waits.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("dir", ".", "Directory containing the document files")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging to stderr")
	rootCmd.PersistentFlags().String("state", "", "SQLite file for durable wait persistence (default in-memory)")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for wait persistence and locking (overrides --state)")
	rootCmd.PersistentFlags().String("db", "", "SQLite database exposed read-only under the db namespace")
	rootCmd.PersistentFlags().String("state-key", "", "Hex-encoded 32-byte key to encrypt persisted snapshots at rest")
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return logging.New(slog.LevelDebug)
	}
	return logging.NewNop()
}

// buildEngine assembles an Engine from the persistent flags shared by run,
// serve and pending.
func buildEngine(cmd *cobra.Command, extra ...stanza.Option) (*stanza.Engine, error) {
	dir, _ := cmd.Flags().GetString("dir")
	statePath, _ := cmd.Flags().GetString("state")
	redisAddr, _ := cmd.Flags().GetString("redis")
	dbPath, _ := cmd.Flags().GetString("db")
	stateKey, _ := cmd.Flags().GetString("state-key")

	opts := []stanza.Option{stanza.WithLogger(newLogger(cmd))}

	var store ports.SchedulerStore
	switch {
	case redisAddr != "":
		redisStore := redis.New(redisAddr, "", 0)
		store = redisStore
		opts = append(opts, stanza.WithDocumentLocker(redis.NewLocker(redisStore.Client(), "stanza:")))
	case statePath != "":
		sqliteStore, err := sqlite.Open(statePath)
		if err != nil {
			return nil, fmt.Errorf("opening state database: %w", err)
		}
		store = sqliteStore
	}

	if stateKey != "" {
		key, err := hex.DecodeString(stateKey)
		if err != nil || len(key) != 32 {
			return nil, fmt.Errorf("--state-key must be 64 hex characters (32 bytes)")
		}
		if store == nil {
			store = memory.NewStore()
		}
		store = middleware.Wrap(store, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: key,
		}))
	}
	if store != nil {
		opts = append(opts, stanza.WithSchedulerStore(store))
	}

	if dbPath != "" {
		source, err := sqlite.OpenSource(dbPath)
		if err != nil {
			return nil, fmt.Errorf("opening bound database: %w", err)
		}
		opts = append(opts, stanza.WithTableSource(source))
	}

	opts = append(opts, extra...)
	return stanza.New(dir, opts...)
}

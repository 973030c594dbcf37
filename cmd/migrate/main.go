package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/gofrs/flock"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openforensics/vfsmigrate/internal/blobs"
	"github.com/openforensics/vfsmigrate/internal/db"
	"github.com/openforensics/vfsmigrate/internal/legacy"
	"github.com/openforensics/vfsmigrate/internal/migrate"
	"github.com/openforensics/vfsmigrate/internal/relstore"
	"github.com/openforensics/vfsmigrate/internal/utils"
	"github.com/openforensics/vfsmigrate/internal/version"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

// the legacy dump is never written to
const legacyPragmas = `
PRAGMA query_only=ON;
PRAGMA busy_timeout=5000;
`

var rootCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Migrate legacy hierarchical endpoint data into the relational store",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().String("legacy-db", "", "Path to the legacy store dump (sqlite)")
	rootCmd.Flags().String("dest-db", "", "Path to the destination store (sqlite)")
	rootCmd.Flags().StringSliceP("clients", "C", nil, "Client IDs to migrate (default: all clients)")
	rootCmd.Flags().Int("blob-batch-size", migrate.DefaultBlobBatchSize, "Blob identities fetched per batch")
	rootCmd.Flags().Int("blob-fan-out", migrate.DefaultBlobFanOut, "Concurrent blob copies within a batch")
	rootCmd.Flags().Int("concurrency", migrate.DefaultConcurrency, "Clients migrated in parallel")
	rootCmd.Flags().Bool("dry-run", false, "Read and validate everything, write nothing")
	rootCmd.Flags().String("blob-bucket", "", "Destination S3 bucket for blobs (default: destination sqlite)")
	rootCmd.Flags().String("blob-region", "us-east-1", "Destination S3 region")
	rootCmd.Flags().String("blob-endpoint", "", "Custom S3 endpoint (e.g. minio)")
	rootCmd.Flags().String("blob-access-key", "", "S3 access key")
	rootCmd.Flags().String("blob-secret-key", "", "S3 secret key")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file")
}

func main() {
	handler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	slog.SetDefault(slog.New(handler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	for _, flag := range []string{
		"legacy-db", "dest-db", "clients", "blob-batch-size", "blob-fan-out",
		"concurrency", "dry-run", "blob-bucket", "blob-region", "blob-endpoint",
		"blob-access-key", "blob-secret-key",
	} {
		viper.BindPFlag(flag, cmd.Flags().Lookup(flag))
	}

	viper.SetEnvPrefix("VFSMIGRATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if viper.GetString("legacy-db") == "" {
		return errors.New("a legacy store dump is required (--legacy-db)")
	}
	if viper.GetString("dest-db") == "" {
		return errors.New("a destination store is required (--dest-db)")
	}
	return nil
}

func run(ctx context.Context) error {
	defer slog.Info("Bye!")

	legacyPath, err := utils.ResolvePath(viper.GetString("legacy-db"))
	if err != nil {
		return err
	}
	destPath, err := utils.ResolvePath(viper.GetString("dest-db"))
	if err != nil {
		return err
	}
	if !utils.FileExists(legacyPath) {
		return fmt.Errorf("legacy store dump not found: %s", legacyPath)
	}

	// one migration process per destination
	if err := utils.EnsureParent(destPath); err != nil {
		return fmt.Errorf("ensure destination directory: %w", err)
	}
	runLock := flock.New(destPath + ".lock")
	locked, err := runLock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another migration is already running against %s", destPath)
	}
	defer runLock.Unlock()

	legacyDB, err := db.NewSqliteDB(db.WithPath(legacyPath), db.WithPragmas(legacyPragmas))
	if err != nil {
		return fmt.Errorf("open legacy store: %w", err)
	}
	defer legacyDB.Close()

	destDB, err := db.NewSqliteDB(db.WithPath(destPath))
	if err != nil {
		return fmt.Errorf("open destination store: %w", err)
	}
	defer destDB.Close()

	legacyStore := legacy.NewSQLiteStore(legacyDB)
	pathStore, err := relstore.NewStore(destDB)
	if err != nil {
		return err
	}

	var blobDst blobs.Store
	if bucket := viper.GetString("blob-bucket"); bucket != "" {
		blobDst, err = blobs.NewS3StoreWithConfig(&blobs.S3Config{
			BucketName: bucket,
			Region:     viper.GetString("blob-region"),
			Endpoint:   viper.GetString("blob-endpoint"),
			AccessKey:  viper.GetString("blob-access-key"),
			SecretKey:  viper.GetString("blob-secret-key"),
		})
		if err != nil {
			return fmt.Errorf("open destination blob bucket: %w", err)
		}
	} else {
		blobDst, err = relstore.NewBlobStore(destDB)
		if err != nil {
			return err
		}
	}

	runner := migrate.NewRunner(migrate.Config{
		Clients:       viper.GetStringSlice("clients"),
		Concurrency:   viper.GetInt("concurrency"),
		BlobBatchSize: viper.GetInt("blob-batch-size"),
		BlobFanOut:    viper.GetInt("blob-fan-out"),
		DryRun:        viper.GetBool("dry-run"),
	}, legacyStore, pathStore, blobDst)

	summary, runErr := runner.Run(ctx)
	printSummary(summary, runErr)

	return runErr
}

func printSummary(s *migrate.Summary, runErr error) {
	fmt.Println()
	fmt.Printf("Run %s finished in %s\n", cyan(s.RunID), s.Duration.Round(time.Millisecond))
	fmt.Printf("  clients: %s migrated, %s failed\n", green(s.ClientsMigrated), failCount(s.ClientsFailed))
	fmt.Printf("  paths:   %d migrated, %d skipped, %d corrupt entries dropped\n", s.PathsMigrated, s.PathsSkipped, s.CorruptEntries)
	fmt.Printf("  records: %d written\n", s.RecordsWritten)
	fmt.Printf("  blobs:   %s migrated (%s), %s failed\n", green(s.BlobsMigrated), humanize.Bytes(uint64(s.BlobBytes)), failCount(s.BlobsFailed))

	switch {
	case runErr == nil:
		fmt.Println(green("fully migrated"))
	case errors.Is(runErr, migrate.ErrPartialRun):
		fmt.Println(red("partially migrated, safe to re-run"))
	default:
		fmt.Println(red(runErr.Error()))
	}
}

func failCount(n int) string {
	if n > 0 {
		return red(n)
	}
	return fmt.Sprint(n)
}

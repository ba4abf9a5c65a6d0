package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/objstore-tools/s3fetch/config"
	"github.com/objstore-tools/s3fetch/internal/fetch"
	"github.com/objstore-tools/s3fetch/internal/s3client"
	"github.com/objstore-tools/s3fetch/internal/transfer"
	"github.com/objstore-tools/s3fetch/s3types"
)

var (
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "s3fetch",
	Short: "Download tool for S3-compatible object storage",
	Long: `s3fetch downloads objects from an S3-compatible object store (Wasabi,
MinIO, AWS S3) to the local filesystem: a single object, everything under
a prefix, or a point-in-time snapshot reconstructed from version history.
Configuration is loaded from a .env file or environment variables.`,
	SilenceUsage: true,
}

// Execute runs the CLI with the given configuration.
func Execute(config *config.Config) error {
	cfg = config
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(downloadFileCmd)
	rootCmd.AddCommand(downloadDirCmd)
	rootCmd.AddCommand(downloadVersionedCmd)

	rootCmd.PersistentFlags().StringP("bucket", "b", "", "Override bucket name from config")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().IntP("concurrency", "c", transfer.DefaultConcurrency, "Number of parallel downloads")
}

func getBucketName(cmd *cobra.Command) string {
	bucket, _ := cmd.Flags().GetString("bucket")
	if bucket != "" {
		return bucket
	}
	return cfg.BucketName
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

func newLogger(cmd *cobra.Command) zerolog.Logger {
	level := zerolog.InfoLevel
	if isVerbose(cmd) {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// newService builds the authenticated store client and the mode service.
// When an MFA serial is configured the one-time password is prompted for
// here, before any core component is constructed.
func newService(cmd *cobra.Command) (*fetch.Service, zerolog.Logger, error) {
	logger := newLogger(cmd)

	var mfaToken string
	if cfg.MFASerial != "" {
		fmt.Fprint(cmd.OutOrStdout(), "Please enter your MFA OTP: ")
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &mfaToken); err != nil {
			return nil, logger, fmt.Errorf("failed to read MFA OTP: %w", err)
		}
	}

	client, err := s3client.New(cmd.Context(), cfg, mfaToken)
	if err != nil {
		return nil, logger, err
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")

	service := fetch.New(client, getBucketName(cmd),
		fetch.WithLogger(logger),
		fetch.WithConcurrency(concurrency),
		fetch.WithProgressTracker(newConsoleTracker(logger)),
	)
	return service, logger, nil
}

// reportOutcome prints the summary and turns a partial or total failure
// into a non-zero exit.
func reportOutcome(logger zerolog.Logger, outcome *s3types.TransferOutcome) error {
	for _, failure := range outcome.Failures {
		event := logger.Error().Str("key", failure.Key)
		if failure.VersionID != "" {
			event = event.Str("version", failure.VersionID)
		}
		event.Err(failure.Reason).Msg("download failed")
	}

	logger.Info().
		Int("succeeded", outcome.Succeeded).
		Int("failed", outcome.Failed).
		Int("skipped", outcome.Skipped).
		Int64("bytes", outcome.BytesTransferred).
		Dur("duration", outcome.Duration).
		Msg("download complete")

	if !outcome.OK() {
		return fmt.Errorf("%d of %d downloads did not complete", outcome.Failed+outcome.Skipped, outcome.Total())
	}
	return nil
}

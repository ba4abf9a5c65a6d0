package cmd

import (
	"github.com/spf13/cobra"
)

var downloadDirCmd = &cobra.Command{
	Use:   "download_dir",
	Short: "Download everything under a prefix",
	Long: `Download all current objects under a prefix, preserving the key
hierarchy below the prefix as local subdirectories.

With no --source the entire bucket is downloaded.`,
	Example: `  # Download the whole bucket into ./Download/
  s3fetch download_dir

  # Download one prefix into a specific directory
  s3fetch download_dir --source backups/2026/ --destination /tmp/restore`,
	RunE: runDownloadDir,
}

func runDownloadDir(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")
	destination, _ := cmd.Flags().GetString("destination")

	service, logger, err := newService(cmd)
	if err != nil {
		return err
	}

	outcome, err := service.Dir(cmd.Context(), source, destination)
	if err != nil {
		// Listing failed partway; still surface what did complete.
		_ = reportOutcome(logger, outcome)
		return err
	}
	return reportOutcome(logger, outcome)
}

func init() {
	downloadDirCmd.Flags().StringP("source", "s", "", "Prefix to download (default: entire bucket)")
	downloadDirCmd.Flags().StringP("destination", "d", "", "Local directory to save objects (default: ./Download)")
}

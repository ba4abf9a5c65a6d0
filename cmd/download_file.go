package cmd

import (
	"github.com/spf13/cobra"
)

var downloadFileCmd = &cobra.Command{
	Use:   "download_file",
	Short: "Download a single object",
	Long: `Download a single object from the bucket.

If no destination is specified, the object is saved under ./Download/
using the last segment of its key as the file name.`,
	Example: `  # Download to ./Download/report.pdf
  s3fetch download_file --source docs/report.pdf

  # Download to an explicit path
  s3fetch download_file --source docs/report.pdf --destination /tmp/report.pdf`,
	RunE: runDownloadFile,
}

func runDownloadFile(cmd *cobra.Command, args []string) error {
	source, _ := cmd.Flags().GetString("source")
	destination, _ := cmd.Flags().GetString("destination")

	service, logger, err := newService(cmd)
	if err != nil {
		return err
	}

	outcome, err := service.File(cmd.Context(), source, destination)
	if err != nil {
		return err
	}
	return reportOutcome(logger, outcome)
}

func init() {
	downloadFileCmd.Flags().StringP("source", "s", "", "Object key to download")
	downloadFileCmd.Flags().StringP("destination", "d", "", "Local path to save the object (default: ./Download/<filename>)")
	_ = downloadFileCmd.MarkFlagRequired("source")
}

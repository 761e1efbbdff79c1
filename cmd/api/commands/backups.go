package commands

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripboard/core/internal/infrastructure/config"
	"github.com/tripboard/core/internal/ports"
)

// NewBackupsCommand creates the backups command with subcommands
func NewBackupsCommand() *cobra.Command {
	backupsCmd := &cobra.Command{
		Use:   "backups",
		Short: "Document backup commands",
		Long:  "List and restore timestamped document backups",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List backups, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocumentService(func(cfg *config.Config, service ports.DocumentService) error {
				backups, err := service.ListBackups(cmd.Context())
				if err != nil {
					return err
				}

				if len(backups) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No backups in %s\n", cfg.Storage.BackupDir)
					return nil
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "FILENAME\tTIMESTAMP (UTC)\tSIZE")
				for _, backup := range backups {
					fmt.Fprintf(w, "%s\t%s\t%d\n", backup.Filename, backup.Timestamp.UTC().Format(time.DateTime), backup.Size)
				}
				return w.Flush()
			})
		},
	}

	restoreCmd := &cobra.Command{
		Use:   "restore FILENAME",
		Short: "Restore a backup over the current document",
		Long:  "Restore a backup over the current document. The current document is backed up first.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocumentService(func(_ *config.Config, service ports.DocumentService) error {
				doc, err := service.RestoreBackup(cmd.Context(), args[0])
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s (last updated %s)\n", args[0], doc.LastUpdated)
				return nil
			})
		},
	}

	backupsCmd.AddCommand(listCmd, restoreCmd)
	return backupsCmd
}

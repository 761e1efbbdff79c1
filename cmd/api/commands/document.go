package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tripboard/core/internal/domain/entities"
	"github.com/tripboard/core/internal/infrastructure/config"
	"github.com/tripboard/core/internal/ports"
)

// NewDocumentCommand creates the document command with subcommands
func NewDocumentCommand() *cobra.Command {
	documentCmd := &cobra.Command{
		Use:   "document",
		Short: "Trip document commands",
		Long:  "Show, save and inspect the trip document",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current document",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (json, yaml)", format)
			}

			return withDocumentService(func(_ *config.Config, service ports.DocumentService) error {
				doc := service.LoadDocument(cmd.Context())
				return writeDocument(cmd.OutOrStdout(), doc, format)
			})
		},
	}
	showCmd.Flags().String("format", "json", "Output format (json, yaml)")

	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Save a document from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			reason, _ := cmd.Flags().GetString("reason")

			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			doc, err := entities.DecodeDocument(data)
			if err != nil {
				return fmt.Errorf("invalid document in %s: %w", file, err)
			}

			return withDocumentService(func(_ *config.Config, service ports.DocumentService) error {
				result, err := service.SaveDocument(cmd.Context(), doc, reason)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Document saved to %s\n", result.Backend)
				fmt.Fprintf(out, "  Last updated: %s\n", result.LastUpdated)
				if result.Backup != nil {
					fmt.Fprintf(out, "  Backup: %s\n", result.Backup.Filename)
				}
				if result.Revision != "" {
					fmt.Fprintf(out, "  Revision: %s (attempts: %d)\n", result.Revision, result.Attempts)
				}
				return nil
			})
		},
	}
	saveCmd.Flags().String("file", "", "Path to the JSON document, - for stdin (required)")
	saveCmd.Flags().String("reason", "", "Change reason, used as the commit message")
	saveCmd.MarkFlagRequired("file")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend and backup state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDocumentService(func(_ *config.Config, service ports.DocumentService) error {
				status := service.Status(cmd.Context())

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Backend:       %s\n", status.Backend)
				if status.Remote != "" {
					fmt.Fprintf(out, "Remote:        %s\n", status.Remote)
				}
				fmt.Fprintf(out, "Document:      %s\n", status.DocumentPath)
				fmt.Fprintf(out, "Backup dir:    %s\n", status.BackupDir)
				fmt.Fprintf(out, "Backups:       %d / %d\n", status.BackupCount, status.MaxBackups)
				if status.LatestBackup != nil {
					fmt.Fprintf(out, "Latest backup: %s\n", status.LatestBackup.Filename)
				}
				return nil
			})
		},
	}

	documentCmd.AddCommand(showCmd, saveCmd, statusCmd)
	return documentCmd
}

func writeDocument(w io.Writer, doc *entities.Document, format string) error {
	if format == "json" {
		data, err := doc.Encode()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	// Round-trip through JSON so yaml sees the flat document including extra keys
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	var generic map[string]interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func readInput(cmd *cobra.Command, file string) ([]byte, error) {
	if file == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return data, nil
}

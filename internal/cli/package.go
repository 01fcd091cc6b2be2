package cli

import (
	"bytes"
	"fmt"
	"os"

	"exam-session-service/internal/app"
	"exam-session-service/internal/bundle"
	"github.com/spf13/cobra"
)

// NewExportCmd writes one exam package to a file.
func NewExportCmd(configPath *string) *cobra.Command {
	var examID, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an exam with its media as a zip package",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.close()

			catalog := app.NewCatalogService(b.exams, b.blobs, catalogOptions(cfg), log)
			var buf bytes.Buffer
			exam, err := catalog.Export(cmd.Context(), examID, &buf)
			if err != nil {
				return err
			}
			if out == "" {
				out = bundle.FileName(exam.Name)
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write package: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&examID, "id", "", "exam id")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default: derived from exam name)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

// NewImportCmd stores a package file as a new exam.
func NewImportCmd(configPath *string) *cobra.Command {
	var createdBy string
	cmd := &cobra.Command{
		Use:   "import <package.zip>",
		Short: "Import an exam package as a new unassigned exam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, err := openBackends(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer b.close()

			catalog := app.NewCatalogService(b.exams, b.blobs, catalogOptions(cfg), log)
			exam, err := catalog.Import(cmd.Context(), data, createdBy)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), exam.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&createdBy, "created-by", "", "author recorded on the imported exam")
	return cmd
}

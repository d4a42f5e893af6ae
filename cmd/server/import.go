package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/PiyushN6/Smart-Tourist-Safety-system/pkg/importer"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-geofences FILE...",
		Short: "Bulk import geofences from CSV or YAML files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, closePublisher, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer closePublisher()

			im := importer.New(core.Geofence, core.Auth)
			failed := 0
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				result, err := im.ImportFile(ctx, filepath.Base(path), f)
				_ = f.Close()
				if err != nil {
					return fmt.Errorf("import %s: %w", path, err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: created %d geofences %v\n", path, len(result.Created), result.Created)
				for _, rowErr := range result.Errors {
					fmt.Fprintf(out, "%s: row %d: %s\n", path, rowErr.Row, rowErr.Error)
				}
				failed += len(result.Errors)
			}

			if failed > 0 {
				return fmt.Errorf("%d rows failed to import", failed)
			}
			return nil
		},
	}
}

func newImportUsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-users FILE.csv",
		Short: "Bulk create user accounts from a CSV with email,password,role columns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			core, closePublisher, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer closePublisher()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := importer.New(core.Geofence, core.Auth).ImportUsersCSV(ctx, f)
			if err != nil {
				return fmt.Errorf("import %s: %w", args[0], err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "created %d users, skipped %d existing\n", len(result.Created), result.Skipped)
			for _, rowErr := range result.Errors {
				fmt.Fprintf(out, "row %d: %s\n", rowErr.Row, rowErr.Error)
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d rows failed to import", len(result.Errors))
			}
			return nil
		},
	}
}

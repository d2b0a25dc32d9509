package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Thianvelaz/Cognio/internal/model"
	"github.com/Thianvelaz/Cognio/internal/transfer"
)

func runExport(apiURL, apiKey, format string, out io.Writer) error {
	resp, err := checkResponse(newClient(apiURL, apiKey).R().
		SetQueryParam("format", format).
		Get("/memory/export"))
	if err != nil {
		return err
	}
	_, err = out.Write(resp.Body())
	return err
}

// runImport uploads path; the format is detected from its extension unless
// format is set.
func runImport(apiURL, apiKey, path, format, project string, out io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if format == "" || format == "auto" {
		format = string(transfer.DetectFormat(filepath.Base(path)))
	}
	f, err := transfer.ParseFormat(format)
	if err != nil {
		return err
	}
	client := newClient(apiURL, apiKey)
	if _, err := checkResponse(client.R().Get("/health")); err != nil {
		return fmt.Errorf("service not reachable at %s: %w", apiURL, err)
	}

	var res model.ImportResult
	req := client.R().
		SetResult(&res).
		SetHeader("Content-Type", f.ContentType()).
		SetQueryParam("format", string(f)).
		SetBody(data)
	if project != "" {
		req.SetQueryParam("project", project)
	}
	if _, err := checkResponse(req.Post("/memory/import")); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "Imported: %d new, %d duplicates, %d failed\n", res.Imported, res.Duplicates, res.Failed)
	return err
}

func init() {
	var exportFormat, outPath string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export all memories",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outPath == "" {
				return runExport(apiFlag, apiKeyFlag, exportFormat, os.Stdout)
			}
			fh, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := runExport(apiFlag, apiKeyFlag, exportFormat, fh); err != nil {
				_ = fh.Close()
				return err
			}
			return fh.Close()
		},
	}
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "json", "json or markdown")
	exportCmd.Flags().StringVarP(&outPath, "out", "o", "", "Write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)

	var importFormat, importProject string
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import memories from a json, markdown or text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(apiFlag, apiKeyFlag, args[0], importFormat, importProject, os.Stdout)
		},
	}
	importCmd.Flags().StringVarP(&importFormat, "format", "f", "auto", "auto, json, markdown or text")
	importCmd.Flags().StringVarP(&importProject, "project", "p", "", "Assign every imported memory to this project")
	rootCmd.AddCommand(importCmd)
}

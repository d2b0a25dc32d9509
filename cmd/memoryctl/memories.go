package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func runSave(apiURL, apiKey, text, project string, tags []string, out io.Writer) error {
	if text == "" {
		return fmt.Errorf("--text required")
	}
	payload := map[string]interface{}{"text": text}
	if project != "" {
		payload["project"] = project
	}
	if len(tags) > 0 {
		payload["tags"] = tags
	}
	resp, err := checkResponse(newClient(apiURL, apiKey).R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post("/memory/save"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(resp.Body()))
	return err
}

func runSearch(apiURL, apiKey, query, project string, limit int, threshold float64, out io.Writer) error {
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	params := map[string]string{"q": query}
	if project != "" {
		params["project"] = project
	}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	if threshold >= 0 {
		params["threshold"] = strconv.FormatFloat(threshold, 'f', -1, 64)
	}
	resp, err := checkResponse(newClient(apiURL, apiKey).R().
		SetQueryParams(params).
		Get("/memory/search"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(resp.Body()))
	return err
}

func runDelete(apiURL, apiKey, id string, out io.Writer) error {
	resp, err := checkResponse(newClient(apiURL, apiKey).R().
		SetPathParam("id", id).
		Delete("/memory/{id}"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(resp.Body()))
	return err
}

func runStats(apiURL, apiKey string, out io.Writer) error {
	resp, err := checkResponse(newClient(apiURL, apiKey).R().Get("/memory/stats"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(resp.Body()))
	return err
}

func init() {
	var text, project string
	var tags []string
	saveCmd := &cobra.Command{
		Use:   "save",
		Short: "Save a memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSave(apiFlag, apiKeyFlag, text, project, tags, os.Stdout)
		},
	}
	saveCmd.Flags().StringVarP(&text, "text", "t", "", "Memory text (required)")
	saveCmd.Flags().StringVarP(&project, "project", "p", "", "Project label")
	saveCmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	_ = saveCmd.MarkFlagRequired("text")
	rootCmd.AddCommand(saveCmd)

	var searchProject string
	var limit int
	var threshold float64
	searchCmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Semantic search over memories",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(apiFlag, apiKeyFlag, args[0], searchProject, limit, threshold, os.Stdout)
		},
	}
	searchCmd.Flags().StringVarP(&searchProject, "project", "p", "", "Restrict to project")
	searchCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum results (server default when 0)")
	searchCmd.Flags().Float64Var(&threshold, "threshold", -1, "Minimum score (server default when negative)")
	rootCmd.AddCommand(searchCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a memory by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDelete(apiFlag, apiKeyFlag, args[0], os.Stdout)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(apiFlag, apiKeyFlag, os.Stdout)
		},
	})
}

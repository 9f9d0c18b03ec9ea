package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nitro/lazytemplate/internal"
	"github.com/nitro/lazytemplate/internal/annotation"
	"github.com/nitro/lazytemplate/internal/config"
	"github.com/nitro/lazytemplate/internal/remote"
)

func newTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage the templates stored at a template server",
	}
	cmd.AddCommand(newTemplateSaveCommand(), newTemplateListCommand(), newTemplateLoadCommand(),
		newTemplateDeleteCommand())
	return cmd
}

func newTemplateSaveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Build a template from a file of candidate annotations and save it",
		Long: `Build a template from a file of candidate annotations and save it.

The candidates file is a JSON array. Geometric candidates carry a field and a region, textual
candidates carry a text:

  [
    {"type": "issuer", "text": "ACME Corp"},
    {"type": "field", "field": "Total", "region": {"x": 400, "y": 610, "width": 120, "height": -24}}
  ]

Rejected candidates are reported and skipped. The template is saved only if at least one
candidate was accepted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			document, _ := cmd.Flags().GetString("document")
			path, _ := cmd.Flags().GetString("candidates")
			if document == "" || path == "" {
				return errors.New("--document and --candidates are required")
			}

			cfg, logger, err := load(cmd)
			if err != nil {
				return err
			}
			candidates, err := readCandidates(path)
			if err != nil {
				return err
			}
			client, err := newRemoteClient(cfg)
			if err != nil {
				return err
			}

			session := annotation.Session{Logger: logger, Store: client}
			if err := session.Init(); err != nil {
				return err
			}
			session.Open(document)
			for i, candidate := range candidates {
				if _, err := session.Model().Add(candidate); err != nil {
					printError(cmd, "candidate %d rejected: %s", i, err)
				}
			}

			template, err := session.Save(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved '%s' with %d annotations\n", template.PDFName, len(template.Annotations))
			return nil
		},
	}
	cmd.Flags().String("document", "", "name of the PDF document the template is for")
	cmd.Flags().String("candidates", "", "path of the JSON candidates file")
	return cmd
}

func newTemplateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the stored templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := load(cmd)
			if err != nil {
				return err
			}
			client, err := newRemoteClient(cfg)
			if err != nil {
				return err
			}
			names, err := client.List(cmd.Context())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

func newTemplateLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load NAME",
		Short: "Print a stored template as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(cmd)
			if err != nil {
				return err
			}
			client, err := newRemoteClient(cfg)
			if err != nil {
				return err
			}
			template, err := client.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(template)
		},
	}
}

func newTemplateDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a stored template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := load(cmd)
			if err != nil {
				return err
			}
			client, err := newRemoteClient(cfg)
			if err != nil {
				return err
			}
			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted '%s'\n", args[0])
			return nil
		},
	}
}

func newRemoteClient(cfg config.Config) (remote.Client, error) {
	client := remote.Client{BaseURL: cfg.ServerURL, HTTPClient: internal.NewHTTPClient()}
	if err := client.Init(); err != nil {
		return remote.Client{}, err
	}
	return client, nil
}

func readCandidates(path string) ([]annotation.Candidate, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("fail to read the candidates: %w", err)
	}
	var candidates []annotation.Candidate
	if err := json.Unmarshal(payload, &candidates); err != nil {
		return nil, fmt.Errorf("fail to parse the candidates: %w", err)
	}
	return candidates, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewTemplateCmd создаёт группу команд для управления шаблонами.
func NewTemplateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage workflow templates",
	}

	cmd.AddCommand(
		newTemplateListCmd(clientFn, outputFn),
		newTemplateRegisterCmd(clientFn, outputFn),
	)

	return cmd
}

func newTemplateListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered workflow templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			templates, err := client.ListTemplates()
			if err != nil {
				return err
			}

			headers := []string{"NAME", "STEPS", "FALLBACK_CHAINS"}
			rows := make([][]string, len(templates))
			for i, t := range templates {
				rows[i] = []string{
					t.Name,
					strconv.Itoa(len(t.Steps)),
					strconv.Itoa(len(t.Fallbacks)),
				}
			}

			out.Print(headers, rows, templates)
			return nil
		},
	}
}

func newTemplateRegisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a workflow template from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read template file: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("template file is not valid JSON")
			}

			tmpl, err := client.CreateTemplate(json.RawMessage(data))
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Template registered: %s", tmpl.Name))
			out.Print(
				[]string{"NAME", "STEPS", "FALLBACK_CHAINS"},
				[][]string{{tmpl.Name, strconv.Itoa(len(tmpl.Steps)), strconv.Itoa(len(tmpl.Fallbacks))}},
				tmpl,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to template JSON file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

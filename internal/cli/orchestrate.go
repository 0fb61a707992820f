package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewOrchestrateCmd создаёт команду выполнения запроса оркестрации.
func NewOrchestrateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "orchestrate",
		Short: "Execute an orchestration request from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read request file: %w", err)
			}
			if !json.Valid(data) {
				return fmt.Errorf("request file is not valid JSON")
			}

			result, err := client.Orchestrate(json.RawMessage(data))
			if err != nil {
				return err
			}

			// Результат оркестрации всегда в JSON: форма зависит
			// от стратегии, табличного представления нет.
			var pretty any
			if err := json.Unmarshal(result, &pretty); err != nil {
				return fmt.Errorf("failed to decode result: %w", err)
			}
			out.JSON(pretty)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Path to request JSON file (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

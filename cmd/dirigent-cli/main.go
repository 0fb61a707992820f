// Dirigent CLI — инструмент командной строки для оркестратора.
//
// Использование:
//
//	dirigent [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	backend      Просмотр backend'ов и контуров
//	template     Управление workflow-шаблонами
//	orchestrate  Выполнение запроса оркестрации
//	metrics      Просмотр метрик
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Dirigent/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "dirigent",
		Short:         "Dirigent CLI — workload orchestration tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultAPIURL(), "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewBackendCmd(clientFn, outputFn),
		cli.NewTemplateCmd(clientFn, outputFn),
		cli.NewOrchestrateCmd(clientFn, outputFn),
		cli.NewMetricsCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// defaultAPIURL возвращает URL API из окружения или localhost.
func defaultAPIURL() string {
	if url := os.Getenv("DIRIGENT_API_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

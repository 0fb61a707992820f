package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewMetricsCmd создаёт команду просмотра метрик оркестрации.
func NewMetricsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Show orchestration metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			metrics, err := client.GetMetrics()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"TOTAL", "SUCCESS", "FAILED", "AVG_MS", "FAILOVERS", "CIRCUIT_TRIPS"},
				[][]string{{
					strconv.FormatInt(metrics.TotalRequests, 10),
					strconv.FormatInt(metrics.SuccessfulRequests, 10),
					strconv.FormatInt(metrics.FailedRequests, 10),
					fmt.Sprintf("%.1f", metrics.AverageLatencyMs),
					strconv.FormatInt(metrics.Failovers, 10),
					strconv.FormatInt(metrics.CircuitTrips, 10),
				}},
				metrics,
			)
			return nil
		},
	}
}

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// NewBackendCmd создаёт группу команд для просмотра backend'ов.
func NewBackendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Inspect registered backends",
	}

	cmd.AddCommand(
		newBackendListCmd(clientFn, outputFn),
		newBackendCircuitCmd(clientFn, outputFn),
	)

	return cmd
}

func newBackendListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backends with load and circuit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			backends, err := client.ListBackends()
			if err != nil {
				return err
			}

			headers := []string{"ID", "STATUS", "CIRCUIT", "LOAD", "CAPABILITIES"}
			rows := make([][]string, len(backends))
			for i, b := range backends {
				rows[i] = []string{
					b.ID,
					b.Status,
					b.CircuitState,
					fmt.Sprintf("%d/%d", b.CurrentLoad, b.MaxCapacity),
					strings.Join(b.Capabilities, ","),
				}
			}

			out.Print(headers, rows, backends)
			return nil
		},
	}
}

func newBackendCircuitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "circuit ID",
		Short: "Show circuit breaker state for a backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			circuit, err := client.GetCircuit(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"BACKEND", "STATE", "FAILURES", "NEXT_ATTEMPT"},
				[][]string{{
					circuit.Backend,
					circuit.State,
					strconv.Itoa(circuit.ConsecutiveFailures),
					circuit.NextAttemptAt,
				}},
				circuit,
			)
			return nil
		},
	}
}

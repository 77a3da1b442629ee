package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

const operationTimeout = 10 * time.Second

func newGetCommand(flags *globalFlags, exitCode *int) *cobra.Command {
	var key, valuefile string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Gets the value of an existing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exitCode = runGet(cmd.Context(), flags, key, valuefile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "state store key name to retrieve")
	cmd.Flags().StringVarP(&valuefile, "valuefile", "f", "", "file to write the key value to; if not provided, the value is written to stdout")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runGet(ctx context.Context, flags *globalFlags, key, valuefile string) int {
	store, teardown, err := newClient(ctx, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer teardown()

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	res, err := store.Get(ctx, key)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if res.Version.IsZero() {
		return 1
	}

	if valuefile != "" {
		if err := os.WriteFile(valuefile, res.Value, 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	} else {
		fmt.Println(string(res.Value))
	}
	return 0
}

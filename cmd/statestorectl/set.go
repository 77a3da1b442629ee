package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newSetCommand(flags *globalFlags, exitCode *int) *cobra.Command {
	var key, value, valuefile string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Sets a key and value",
		RunE: func(cmd *cobra.Command, args []string) error {
			if value != "" && valuefile != "" {
				return fmt.Errorf("only one of --value or --valuefile may be set")
			}
			if value == "" && valuefile == "" {
				return fmt.Errorf("one of --value or --valuefile must be set")
			}

			actual := []byte(value)
			if valuefile != "" {
				data, err := os.ReadFile(valuefile)
				if err != nil {
					return fmt.Errorf("could not open/read file: %w", err)
				}
				actual = data
			}

			*exitCode = runSet(cmd.Context(), flags, key, actual)
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "state store key name to update")
	cmd.Flags().StringVar(&value, "value", "", "content to set as the value of the key")
	cmd.Flags().StringVarP(&valuefile, "valuefile", "f", "", "file with content to set as the value of the key")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runSet(ctx context.Context, flags *globalFlags, key string, value []byte) int {
	store, teardown, err := newClient(ctx, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer teardown()

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	res, err := store.Set(ctx, key, value)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !res.Value {
		return 1
	}
	return 0
}

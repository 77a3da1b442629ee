package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDeleteCommand(flags *globalFlags, exitCode *int) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Deletes an existing key and value",
		RunE: func(cmd *cobra.Command, args []string) error {
			*exitCode = runDelete(cmd.Context(), flags, key)
			return nil
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "state store key name to delete")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runDelete(ctx context.Context, flags *globalFlags, key string) int {
	store, teardown, err := newClient(ctx, flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer teardown()

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	res, err := store.Del(ctx, key)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if res.Value == 0 {
		return 1
	}
	return 0
}

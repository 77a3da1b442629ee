// Command statestorectl is a command-line client for the Device State Store,
// supporting get/set/delete of individual keys.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	toolName    = "statestorectl"
	toolVersion = "0.1.0"
)

type globalFlags struct {
	hostname        string
	port            uint16
	notls           bool
	cafile          string
	certfile        string
	keyfile         string
	keypasswordfile string
	verbose         bool
}

func main() {
	os.Exit(run())
}

func run() int {
	var flags globalFlags

	root := &cobra.Command{
		Use:     toolName,
		Short:   "Device State Store CLI",
		Long:    "Allows managing key/value pairs in the Device State Store.",
		Version: toolVersion,
		// Prevent cobra from printing usage on a runtime (non-flag) error; the
		// subcommands report their own errors before returning one.
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.hostname, "hostname", "n", "localhost", "MQTT broker hostname")
	root.PersistentFlags().Uint16VarP(&flags.port, "port", "p", 8883, "MQTT broker port number")
	root.PersistentFlags().BoolVar(&flags.notls, "notls", false, "do not use TLS for the broker connection")
	root.PersistentFlags().StringVarP(&flags.cafile, "cafile", "T", "", "trusted certificate bundle for the TLS connection")
	root.PersistentFlags().StringVarP(&flags.certfile, "certfile", "C", "", "client authentication certificate file")
	root.PersistentFlags().StringVarP(&flags.keyfile, "keyfile", "K", "", "client authentication private key file")
	root.PersistentFlags().StringVarP(&flags.keypasswordfile, "keypasswordfile", "P", "", "password file for the private key")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose logging")

	exitCode := 0
	root.AddCommand(
		newGetCommand(&flags, &exitCode),
		newSetCommand(&flags, &exitCode),
		newDeleteCommand(&flags, &exitCode),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

func logger(flags *globalFlags) *slog.Logger {
	level := slog.LevelWarn
	if flags.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

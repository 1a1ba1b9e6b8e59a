// Command routectl evaluates, validates and administers connector routing configuration.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "config/app.yaml"
	loggerPrefix      = "routectl "
)

// Version is overridden at build time.
var Version = "dev"

type globalOptions struct {
	configPath string
	quiet      bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "routectl",
		Short:         "Connector routing engine operator tool",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", defaultConfigPath, "Path to application configuration file")
	root.PersistentFlags().BoolVar(&opts.quiet, "quiet", false, "Suppress informational logs")

	root.AddCommand(routeCmd(opts))
	root.AddCommand(sessionCmd(opts))
	root.AddCommand(splitCmd())
	root.AddCommand(validateCmd(opts))
	root.AddCommand(migrateCmd(opts))
	root.AddCommand(seedCmd(opts))
	return root
}

func newLogger(opts *globalOptions) *log.Logger {
	if opts.quiet {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, loggerPrefix, log.LstdFlags|log.Lmicroseconds)
}

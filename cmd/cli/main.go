package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/whistleblower/cmd/cli/history"
	"github.com/myrjola/whistleblower/cmd/cli/investigate"
	"github.com/myrjola/whistleblower/internal/errors"
	"github.com/spf13/cobra"
)

func newRootCmd(lookupEnv func(string) (string, bool)) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:  "whistleblower-cli",
		Long: `Command line utilities for Whistleblower public-reputation investigations`,
	}
	rootCmd.AddGroup(investigate.Group)
	rootCmd.AddCommand(investigate.Command(lookupEnv))
	rootCmd.AddGroup(history.Group)
	rootCmd.AddCommand(history.Command(lookupEnv))
	return rootCmd
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd(os.LookupEnv).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	_ = godotenv.Load() // optional .env loaded into the environment; missing file is not an error. No flag takes its default from it.

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rootCmd := &cobra.Command{
		Use:   "fresshctl",
		Short: "Interactive SSH client built on the fressh core",
		Long:  "fresshctl drives the fressh sshclient package directly: connect, run an interactive shell, or manage keys.",
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fresshctl version %s\n", version)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(newConnectCmd())
	rootCmd.AddCommand(newKeygenCmd())
	rootCmd.AddCommand(newValidateKeyCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

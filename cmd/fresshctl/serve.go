package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/EthanShoeDev/fressh/internal/bridge"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP/WebSocket bridge so a browser can drive connections remotely",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry := bridge.NewRegistry()
			router := bridge.NewRouter(registry)

			logrus.Infof("fressh bridge listening on %s", addr)
			if err := router.Run(addr); err != nil {
				return fmt.Errorf("bridge server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	return cmd
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pmmlc/pmmlc/internal/lspserver"
	"github.com/pmmlc/pmmlc/internal/obs"
)

func newLSPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the PMML language server (diagnostics over stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := obs.NewLogger(false)
			if err != nil {
				return err
			}
			server := lspserver.NewServer(log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			return server.Run(ctx)
		},
	}
}

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pmmlc/pmmlc/internal/cache"
	"github.com/pmmlc/pmmlc/internal/httpapi"
	"github.com/pmmlc/pmmlc/internal/obs"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the PMML compile service over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.Server.Port
			}

			log, err := obs.NewLogger(false)
			if err != nil {
				return err
			}

			store, err := cache.OpenSQLite(cfg.Cache.SQLitePath)
			if err != nil {
				return fmt.Errorf("failed to open compile cache: %w", err)
			}
			defer store.Close()

			handler := httpapi.NewServer(log, cfg.Server.SecretKey, store)

			addr := fmt.Sprintf(":%d", port)
			log.Info("compile service listening", zap.String("addr", addr))
			srv := &http.Server{
				Addr:         addr,
				Handler:      handler,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
			}
			return srv.ListenAndServe()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "compile service port (default from pmmlc.yml)")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pmmlc/pmmlc/internal/obs"
	"github.com/pmmlc/pmmlc/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var port int
	var functionName string
	var lowercase bool

	cmd := &cobra.Command{
		Use:   "watch <model.pmml>",
		Short: "Recompile a PMML document on every save and broadcast the result to a browser dashboard",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port == 0 {
				port = cfg.Watch.Port
			}
			if functionName == "" {
				functionName = cfg.Function.Name
			}

			log, err := obs.NewLogger(false)
			if err != nil {
				return err
			}
			hub := watch.NewHub(log)

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("failed to start file watcher: %w", err)
			}
			defer watcher.Close()

			path := args[0]
			dir := filepath.Dir(path)
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("failed to watch %s: %w", dir, err)
			}

			recompile := func() {
				id := obs.CompilationID()
				source, errs, err := compileFile(path, functionName, lowercase)
				status := watch.Status{CompilationID: id}
				if err != nil {
					status.Errors = []string{err.Error()}
				} else if len(errs) > 0 {
					status.Errors = errs
				} else {
					status.OK = true
					status.SourceBytes = len(source)
				}
				hub.Broadcast(status)
			}

			srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: hub}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("watch dashboard server failed", zap.Error(err))
				}
			}()

			fmt.Printf("watching %s (dashboard on :%d)\n", path, port)
			recompile()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			for {
				select {
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) == filepath.Clean(path) && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						recompile()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn("watcher error", zap.Error(err))
				case <-sigCh:
					_ = srv.Shutdown(ctx)
					return nil
				}
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "dashboard port (default from pmmlc.yml)")
	cmd.Flags().StringVar(&functionName, "function", "", "name of the emitted scoring function")
	cmd.Flags().BoolVar(&lowercase, "lowercase", true, "lowercase string literals in emitted source")
	return cmd
}

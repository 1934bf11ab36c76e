package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"
	"github.com/transcribebridge/bridge/internal/api"
	"github.com/transcribebridge/bridge/internal/app"
	"github.com/transcribebridge/bridge/internal/infra/config"
	"github.com/transcribebridge/bridge/internal/infra/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "transcribebridge",
	Short: "TranscribeBridge is a segment-level transcription bridge service",
	Long:  `Fans a long audio file out to a transcription provider as independent segments and reassembles the result for the client.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the segment queue's pump loop",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

var pumpCmd = &cobra.Command{
	Use:   "pump",
	Short: "Run a single queue dispatch round and exit",
	Long:  `For cron- or Lambda-style invocation, where a long-running ticker isn't available.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPump()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml")
	rootCmd.AddCommand(serveCmd, pumpCmd)
}

func loadApp() (*config.Config, *logger.Logger, *app.Context) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Printf("config error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		fmt.Printf("logger error: %v\n", err)
		os.Exit(1)
	}

	ctx, err := app.NewContext(context.Background(), cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application context: %v", err)
	}

	return cfg, log, ctx
}

func runServe() {
	cfg, log, appCtx := loadApp()
	defer appCtx.Close()

	e := echo.New()
	api.RegisterRoutes(e, appCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	pumpCtx, cancelPump := context.WithCancel(context.Background())
	defer cancelPump()

	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Queue.PumpIntervalMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-pumpCtx.Done():
				return
			case <-ticker.C:
				if _, _, err := appCtx.Queue.ForceProcess(pumpCtx, 0); err != nil {
					log.Error("queue pump failed: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := appCtx.Obs.Start(); err != nil {
			log.Error("observability server error: %v", err)
		}
	}()

	go func() {
		log.Info("listening on %s", cfg.Port)
		if err := e.Start(cfg.Port); err != nil {
			log.Info("http server stopped: %v", err)
		}
	}()

	<-sigChan
	log.Info("shutdown signal received, draining...")
	cancelPump()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown error: %v", err)
	}
	if err := appCtx.Obs.Shutdown(shutdownCtx); err != nil {
		log.Error("observability server shutdown error: %v", err)
	}
}

func runPump() {
	_, log, appCtx := loadApp()
	defer appCtx.Close()

	processed, remaining, err := appCtx.Queue.ForceProcess(context.Background(), 0)
	if err != nil {
		log.Fatal("pump failed: %v", err)
	}
	log.Info("pump complete: processed=%d remaining=%d", processed, remaining)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

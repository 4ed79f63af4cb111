package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/quizfeed/internal/api"
	"github.com/kalambet/quizfeed/internal/coldstart"
	"github.com/kalambet/quizfeed/internal/config"
	"github.com/kalambet/quizfeed/internal/feed"
	"github.com/kalambet/quizfeed/internal/generator"
	"github.com/kalambet/quizfeed/internal/profile"
	"github.com/kalambet/quizfeed/internal/refill"
	"github.com/kalambet/quizfeed/internal/remote"
	"github.com/kalambet/quizfeed/internal/storage"
	"github.com/kalambet/quizfeed/internal/syncer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the quizfeed engine (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine()
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Start the profile store service (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStore()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running quizfeed engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show quizfeed system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "quizfeed.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func initLogging(level string) {
	logLevel := slog.LevelInfo
	if strings.EqualFold(level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

func runEngine() error {
	fmt.Fprintf(os.Stderr, "quizfeed version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogging(cfg.Log.Level)

	// Ensure API token exists in platform secret store.
	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}
	slog.Info("API bearer token available")

	// Write PID file. Check if the engine is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("quizfeed is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("quizfeed is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Load the user session from the local cache.
	session, err := profile.NewSession(cfg.User.ID, store, profile.SystemClock())
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}

	// Wire the feed: cold-start controller, candidate pool, refill queue.
	requester := refill.NewRequester(store)
	builder := feed.NewBuilder(
		session,
		coldstart.New(rand.New(rand.NewSource(time.Now().UnixNano()))),
		store,
		requester,
		profile.SystemClock(),
	)

	// Sync coordinator against the remote profile store.
	remoteClient := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey)
	coordinator := syncer.New(cfg.User.ID, session, remoteClient,
		syncer.WithInterval(cfg.SyncInterval()),
	)
	go coordinator.Run(ctx)

	// Background refill worker against the generation service.
	genClient := generator.NewClient(cfg.Generator.BaseURL, cfg.Generator.APIKey)
	worker := refill.NewWorker(store, genClient, session, 500*time.Millisecond)
	go worker.Run(ctx)

	// Engine HTTP API.
	handler := api.NewEngineHandler(api.EngineDeps{
		Feed:    builder,
		Session: session,
		Sync:    coordinator,
		Token:   apiToken,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// MCP server for generation agents (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:   store,
		Profile: session,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
	}()
	slog.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "quizfeed listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for signal or server error.
	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown with timeout. The coordinator's run loop performs
	// its own teardown flush when ctx is cancelled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runStore() error {
	fmt.Fprintf(os.Stderr, "quizfeed store version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	initLogging(cfg.Log.Level)

	apiToken, err := config.GetAPIToken(config.NewKeychain())
	if err != nil {
		return fmt.Errorf("initializing API token: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(filepath.Join(cfg.Storage.DataDir, "store"))
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.StorePort)
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewStoreHandler(store, apiToken),
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "profile store listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("quizfeed is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop quizfeed (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to quizfeed (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}

	// Engine health carries the sync state.
	engineURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	resp, err := client.Get(engineURL + "/health")
	if err != nil {
		printStatus("Engine", "stopped")
	} else {
		var health struct {
			Status    string `json:"status"`
			SyncState string `json:"sync_state"`
		}
		decodeErr := decodeJSON(resp, &health)
		if decodeErr == nil && health.Status == "ok" {
			printStatus("Engine", "running on port %d", cfg.Server.Port)
			printStatus("Sync", "%s", health.SyncState)
		} else {
			printStatus("Engine", "error")
		}
	}

	// Store service.
	storeURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.StorePort)
	storeResp, err := client.Get(storeURL + "/profiles/__health")
	if err != nil {
		printStatus("Store", "not running")
	} else {
		storeResp.Body.Close()
		printStatus("Store", "running on port %d", cfg.Server.StorePort)
	}

	printStatus("Remote", "%s", cfg.Remote.BaseURL)
	printStatus("Generator", "%s", cfg.Generator.BaseURL)
	printStatus("User", "%s", cfg.User.ID)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}

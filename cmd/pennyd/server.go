package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
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

	"github.com/penny-assistant/penny/internal/api"
	"github.com/penny-assistant/penny/internal/config"
	"github.com/penny-assistant/penny/internal/ingest"
	"github.com/penny-assistant/penny/internal/resolver"
	"github.com/penny-assistant/penny/internal/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the penny server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running penny server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show penny system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "penny.pid")
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

func runServer() error {
	fmt.Fprintf(os.Stderr, "penny version %s\n", version)

	loader := config.Load(configPath, slog.Default())
	snap := loader.Snapshot()

	// Initialize structured logging.
	logLevel := slog.LevelInfo
	if strings.EqualFold(snap.Server.LogLevel, "debug") {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(log)

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(snap.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/v1/health", snap.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("penny is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("penny is already running on port %d", snap.Server.Port)
		return fmt.Errorf("server already running on port %d", snap.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage.
	store, err := storage.Open(snap.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	// Build and initialize the capability chains.
	caps := &capabilities{}
	caps.Rebuild(ctx, snap, store, log)

	reload := func() {
		caps.Rebuild(ctx, loader.Reload(), store, log)
	}

	// Rebuild the chains whenever the config file changes on disk. Watch
	// blocks until ctx is done, so it runs in its own goroutine.
	go func() {
		if err := loader.Watch(ctx, func(snap config.Snapshot) {
			caps.Rebuild(ctx, snap, store, log)
		}); err != nil {
			log.Warn("config watch unavailable", "error", err)
		}
	}()

	appHandler := api.NewAppHandler(api.AppDeps{
		Caps:   caps,
		Store:  store,
		Token:  os.Getenv("PENNY_API_TOKEN"),
		Reload: reload,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", snap.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	// Start ingest worker. The worker fetches the retrieval facade per job
	// so ingestion picks up chains rebuilt by a config reload.
	worker := ingest.NewWorker(store, func() ingest.Retriever { return caps.Retrieval() }, 500*time.Millisecond)
	go worker.Run(ctx)

	// Build and start MCP server (stdio transport in a goroutine).
	mcpSrv := api.NewMCPServer(api.MCPDeps{Caps: caps})
	stdioSrv := server.NewStdioServer(mcpSrv)
	go func() {
		if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("MCP stdio server error", "error", err)
		}
	}()
	log.Info("MCP server started (stdio transport)")

	// Start server in a goroutine.
	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "penny listening on %s\n", addr)
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

	// Graceful shutdown with timeout.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	loader := config.Load(configPath, slog.Default())
	snap := loader.Snapshot()

	pidPath := pidFilePath(snap.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("penny is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop penny (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to penny (PID %d)", pid)
	return nil
}

func showStatus() error {
	loader := config.Load(configPath, slog.Default())
	snap := loader.Snapshot()

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", snap.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(serverURL + "/v1/health")
	if err != nil {
		printStatus("Server", "stopped")
		printStatus("Config", "%s", configPath)
		printStatus("Data dir", "%s", snap.Storage.DataDir)
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode == 200 {
		printStatus("Server", "running on port %d", snap.Server.Port)
	} else {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
	}

	// Show per-capability tier status.
	apiClient := newAPIClient(snap)
	statusResp, err := apiClient.get(context.Background(), "/v1/status")
	if err == nil {
		var status map[string][]resolver.TierStatus
		if decodeJSON(statusResp, &status) == nil {
			for _, capability := range []string{"lists", "retrieval", "calendar"} {
				tiers := status[capability]
				parts := make([]string, len(tiers))
				for i, t := range tiers {
					state := "down"
					if t.Ready && t.Healthy {
						state = "ok"
					} else if t.Ready {
						state = "unhealthy"
					}
					parts[i] = fmt.Sprintf("%s=%s", t.Tier, state)
				}
				printStatus(capability, "%s", strings.Join(parts, " "))
			}
		}
	}

	printStatus("Config", "%s", configPath)
	printStatus("Data dir", "%s", snap.Storage.DataDir)
	return nil
}

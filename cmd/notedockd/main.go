// ABOUTME: Entry point for the notedockd storage daemon
// ABOUTME: Owns the durable store and serves the broker channel for delegated contexts

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/notedock/notedock/internal/broker"
	"github.com/notedock/notedock/internal/config"
	"github.com/notedock/notedock/internal/legacy"
	"github.com/notedock/notedock/internal/localkv"
	"github.com/notedock/notedock/internal/migrate"
	"github.com/notedock/notedock/internal/origin"
	"github.com/notedock/notedock/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
             _           _            _
 _ __   ___ | |_ ___  __| | ___   ___| | __
| '_ \ / _ \| __/ _ \/ _' |/ _ \ / __| |/ /
| | | | (_) | ||  __/ (_| | (_) | (__|   <
|_| |_|\___/ \__\___|\__,_|\___/ \___|_|\_\
`

// getConfigPath returns the path to the daemon config file.
// Priority: NOTEDOCK_CONFIG env var > XDG_CONFIG_HOME/notedock/notedockd.yaml > ~/.config/notedock/notedockd.yaml
func getConfigPath() string {
	if envPath := os.Getenv("NOTEDOCK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "notedockd.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "notedock", "notedockd.yaml")
}

// getDataPath returns the path to the notedock data directory.
// Priority: XDG_DATA_HOME/notedock > ~/.local/share/notedock
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "notedock")
}

// loadConfig loads the config file, falling back to defaults rooted in the
// data directory when no file exists.
func loadConfig() (*config.Config, error) {
	configPath := getConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(getDataPath()), nil
	}
	return config.Load(configPath)
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: notedockd <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the storage daemon")
		fmt.Println("  init     Create a config file with defaults")
		fmt.Println("  health   Check daemon health over the broker socket")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	// The daemon is the privileged origin. Setting this marks every
	// storage consumer in this process as allowed to open the store
	// directly.
	os.Setenv(origin.EnvOrigin, origin.Scheme+"://daemon")

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Storage.DatabasePath)
	green.Print("    ▶ ")
	fmt.Printf("Socket:    %s\n", cfg.Broker.SocketPath)
	fmt.Println()

	logger.Info("starting notedockd",
		"database", cfg.Storage.DatabasePath,
		"socket", cfg.Broker.SocketPath,
	)

	st, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	// Move legacy data in before serving any delegated reads. A failed
	// migration is logged and retried on the next start; the daemon still
	// comes up with whatever the store holds.
	if cfg.Storage.LegacyPath != "" {
		flags := localkv.New(cfg.Storage.FallbackPath)
		mig := migrate.New(legacy.NewFileStore(cfg.Storage.LegacyPath), st, flags, logger)
		if err := mig.Run(ctx); err != nil {
			logger.Warn("legacy migration failed, continuing", "error", err)
		}
	}

	srv := broker.NewServer(broker.NewHandler(st, logger), logger)
	if err := srv.Listen(cfg.Broker.SocketPath); err != nil {
		return fmt.Errorf("starting broker: %w", err)
	}
	defer srv.Close()

	err = srv.Serve(ctx)

	// Drain window for connections still writing their last responses.
	if cfg.Broker.ShutdownGrace > 0 {
		time.Sleep(cfg.Broker.ShutdownGrace)
	}

	logger.Info("notedockd stopped")
	return err
}

// runInit writes a default config file, refusing to clobber an existing one.
func runInit() error {
	configPath := getConfigPath()
	dataPath := getDataPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists: %s", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	configContent := fmt.Sprintf(`# notedockd configuration
# Generated by notedockd init

storage:
  database_path: "%s"
  legacy_path: "%s"
  fallback_path: "%s"

broker:
  socket_path: "%s"
  shutdown_grace: "5s"

logging:
  level: "info"
  format: "text"
`,
		filepath.Join(dataPath, "notedock.db"),
		filepath.Join(dataPath, "legacy.json"),
		filepath.Join(dataPath, "fallback.json"),
		filepath.Join(dataPath, "notedock.sock"),
	)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	return nil
}

// runHealth round-trips one read over the broker socket.
func runHealth(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := broker.Dial(cfg.Broker.SocketPath)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer client.Close()

	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.GetNote(callCtx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

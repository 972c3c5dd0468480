package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Transport is the IPC endpoint kind (spec §6.1).
type Transport string

const (
	TransportAuto Transport = "auto"
	TransportUnix Transport = "unix"
	TransportPipe Transport = "pipe"
	TransportTCP  Transport = "tcp"
)

// Config is ctd/ct's runtime configuration (spec §6.5), mirroring
// the original implementation's config.rs field-for-field.
type Config struct {
	Transport         Transport
	Autostart         bool
	SocketPath        string
	PipeName          string
	TCPAddr           string
	AllowFullContext  bool
	WorkspaceAllow    []string
	MaxContextSize    int
	MaxList           int
	BundleSourceCap   int
	DBDir             string // empty: derive from the per-workspace cache dir
	DBFile            string
	ReferencesTopN    int
	MaxMemMB          int
	BenchQueries      int
	BenchDurationS    int
	WatcherDebounceMS int
	Workers           int // 0: runtime.NumCPU()
}

// Default returns the built-in configuration, matching the defaults
// of the original implementation's Config::default().
func Default() Config {
	return Config{
		Transport:         TransportAuto,
		Autostart:         true,
		SocketPath:        "/tmp/ctd.sock",
		PipeName:          `\\.\pipe\ctd`,
		TCPAddr:           "127.0.0.1:48732",
		AllowFullContext:  false,
		MaxContextSize:    16000,
		MaxList:           200,
		BundleSourceCap:   3000,
		DBFile:            "symbols.sqlite",
		ReferencesTopN:    16,
		MaxMemMB:          512,
		BenchQueries:      200,
		BenchDurationS:    5,
		WatcherDebounceMS: 300,
	}
}

// Load reads ct.toml (if present in the current directory) and CT_*
// environment variables over the built-in defaults, in that
// precedence order (env overrides file, file overrides default).
// A missing ct.toml is not an error — Load falls back to defaults
// exactly like the original's Config::load().
func Load() (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("ct")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	bindDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("config: parse ct.toml: %w", err)
		}
	}

	out := Config{
		Transport:         Transport(v.GetString("transport")),
		Autostart:         v.GetBool("autostart"),
		SocketPath:        v.GetString("socket_path"),
		PipeName:          v.GetString("pipe_name"),
		TCPAddr:           v.GetString("tcp_addr"),
		AllowFullContext:  v.GetBool("allow_full_context"),
		WorkspaceAllow:    v.GetStringSlice("workspace_allow"),
		MaxContextSize:    v.GetInt("max_context_size"),
		MaxList:           v.GetInt("max_list"),
		BundleSourceCap:   v.GetInt("bundle_source_cap"),
		DBDir:             v.GetString("db_dir"),
		DBFile:            v.GetString("db_file"),
		ReferencesTopN:    v.GetInt("references_top_n"),
		MaxMemMB:          v.GetInt("max_mem_mb"),
		BenchQueries:      v.GetInt("bench_queries"),
		BenchDurationS:    v.GetInt("bench_duration_s"),
		WatcherDebounceMS: v.GetInt("watcher_debounce_ms"),
		Workers:           v.GetInt("workers"),
	}
	return out, nil
}

func bindDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("transport", string(cfg.Transport))
	v.SetDefault("autostart", cfg.Autostart)
	v.SetDefault("socket_path", cfg.SocketPath)
	v.SetDefault("pipe_name", cfg.PipeName)
	v.SetDefault("tcp_addr", cfg.TCPAddr)
	v.SetDefault("allow_full_context", cfg.AllowFullContext)
	v.SetDefault("workspace_allow", cfg.WorkspaceAllow)
	v.SetDefault("max_context_size", cfg.MaxContextSize)
	v.SetDefault("max_list", cfg.MaxList)
	v.SetDefault("bundle_source_cap", cfg.BundleSourceCap)
	v.SetDefault("db_dir", cfg.DBDir)
	v.SetDefault("db_file", cfg.DBFile)
	v.SetDefault("references_top_n", cfg.ReferencesTopN)
	v.SetDefault("max_mem_mb", cfg.MaxMemMB)
	v.SetDefault("bench_queries", cfg.BenchQueries)
	v.SetDefault("bench_duration_s", cfg.BenchDurationS)
	v.SetDefault("watcher_debounce_ms", cfg.WatcherDebounceMS)
	v.SetDefault("workers", cfg.Workers)
}

// EffectiveTransport resolves TransportAuto to the platform's native
// transport, matching the original's get_effective_transport().
func (c Config) EffectiveTransport() Transport {
	if c.Transport != TransportAuto {
		return c.Transport
	}
	switch runtime.GOOS {
	case "windows":
		return TransportPipe
	default:
		return TransportUnix
	}
}

// CacheDir is the per-workspace cache directory: $XDG_CACHE_HOME/ct/<fingerprint>
// on systems that set it, os.UserCacheDir()'s own platform default
// otherwise (os.UserCacheDir already honors XDG_CACHE_HOME on Unix,
// so no "project directories" library is needed here the way the
// original reaches for one).
func (c Config) CacheDir(workspaceFingerprint string) string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = ".ct"
	}
	return filepath.Join(base, "ct", workspaceFingerprint)
}

// DBPath is the catalog file location (spec §6.3).
func (c Config) DBPath(workspaceFingerprint string) string {
	dir := c.DBDir
	if dir == "" {
		dir = c.CacheDir(workspaceFingerprint)
	}
	return filepath.Join(dir, c.DBFile)
}

// SideDBPath is the reindex side file, renamed over the live file on commit.
func (c Config) SideDBPath(workspaceFingerprint string) string {
	return c.DBPath(workspaceFingerprint) + ".tmp"
}

const fingerprintPrefixLen = 8

// ResolvedSocketPath is the per-workspace Unix socket path, embedding
// a prefix of the workspace fingerprint to isolate per-workspace
// daemons (spec §6.1).
func (c Config) ResolvedSocketPath(workspaceFingerprint string) string {
	if runtime.GOOS == "windows" {
		return c.SocketPath
	}
	return fmt.Sprintf("/tmp/ctd-%s.sock", truncateFingerprint(workspaceFingerprint))
}

// ResolvedPipeName is the per-workspace named pipe path on Windows.
func (c Config) ResolvedPipeName(workspaceFingerprint string) string {
	if runtime.GOOS != "windows" {
		return c.PipeName
	}
	return fmt.Sprintf(`\\.\pipe\ctd-%s`, truncateFingerprint(workspaceFingerprint))
}

func truncateFingerprint(fp string) string {
	if len(fp) <= fingerprintPrefixLen {
		return fp
	}
	return fp[:fingerprintPrefixLen]
}

// SessionTokenPath is where the TCP-transport session token is
// persisted, under the per-user runtime directory (spec §6.3).
func (c Config) SessionTokenPath(workspaceFingerprint string) string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("ctd-%s.token", truncateFingerprint(workspaceFingerprint)))
}

// PIDPath is where `ct daemon start` records the pid of the ctd
// process it spawned for a workspace, so `stop`/`restart`/`status`
// can find it again without dialing the transport.
func (c Config) PIDPath(workspaceFingerprint string) string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, fmt.Sprintf("ctd-%s.pid", truncateFingerprint(workspaceFingerprint)))
}

// WorkspaceAllowed reports whether path falls under one of the
// configured workspace_allow roots. An empty WorkspaceAllow list
// permits every path, matching the original's opt-in-only behavior.
func (c Config) WorkspaceAllowed(path string) bool {
	if len(c.WorkspaceAllow) == 0 {
		return true
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, root := range c.WorkspaceAllow {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			continue
		}
		if abs == rootAbs || strings.HasPrefix(abs, rootAbs+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

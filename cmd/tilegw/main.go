package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/tilegw/internal/api"
	"github.com/mattjoyce/tilegw/internal/config"
	"github.com/mattjoyce/tilegw/internal/doctor"
	"github.com/mattjoyce/tilegw/internal/events"
	"github.com/mattjoyce/tilegw/internal/history"
	"github.com/mattjoyce/tilegw/internal/lock"
	"github.com/mattjoyce/tilegw/internal/log"
	"github.com/mattjoyce/tilegw/internal/metrics"
	"github.com/mattjoyce/tilegw/internal/project"
	"github.com/mattjoyce/tilegw/internal/storage"
	"github.com/mattjoyce/tilegw/internal/tui/watch"
	fswatch "github.com/mattjoyce/tilegw/internal/watch"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "project":
		return runProjectNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- VERBS ---
	case "serve", "start":
		if hasHelpFlag(args) {
			printServeHelp()
			return 0
		}
		return runServe(args)
	case "history":
		return runHistory(args)
	case "watch":
		return runWatch(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: tilegw version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("tilegw %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalized, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalized
	}
	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}
	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`tilegw - Map tile server with hot-reloading projects

Usage:
  tilegw <command> [flags]
  tilegw <noun> <action> [flags]

Commands:
  serve             Serve the configured project in the foreground (alias: start)
  history           Show recent reloads and exports
  watch             Live pool and event monitor TUI
  version           Show version information
  help              Show this help message

Project Actions:
  project check     Validate service and project configuration
  project show      Print the resolved project configuration
  project get       Read one project setting by dotted path

Config Actions:
  config get        Read one service setting by dotted path

Use 'tilegw <noun> help' for action flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// --- project noun ---

func runProjectNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printProjectNounHelp(os.Stdout)
		return 0
	}
	action, rest := args[0], args[1:]
	if hasHelpFlag(rest) {
		printProjectNounHelp(os.Stdout)
		return 0
	}
	switch action {
	case "check":
		return runProjectCheck(rest)
	case "show":
		return runProjectShow(rest)
	case "get":
		return runProjectGet(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown project action: %s\n\n", action)
		printProjectNounHelp(os.Stderr)
		return 1
	}
}

func printProjectNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: tilegw project <action> [flags]

Actions:
  check [--config PATH] [--json]         Validate tilegw.yaml and project.yaml
  show  [--config PATH] [--json]         Print the resolved project configuration
  get   <path> [--config PATH]           Read a project setting, e.g. layers.0.id
`)
}

func runProjectCheck(args []string) int {
	fs := flag.NewFlagSet("project check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output result as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	proj, projErr := config.LoadProject(cfg.Project.Root)
	result := doctor.New(cfg, proj).Validate()
	if projErr != nil {
		result.Errors = append(result.Errors, doctor.Issue{Category: "project", Field: "project.root", Message: projErr.Error()})
		result.Valid = false
	}

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}
	if !result.Valid {
		return 1
	}
	return 0
}

func runProjectShow(args []string) int {
	fs := flag.NewFlagSet("project show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, proj, err := loadProjectForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load project: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(struct {
			*config.Project
			Mount string `json:"mount"`
		}{proj, "/projects/" + mountName(cfg) + "/"}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("# %s\n", filepath.Join(proj.Root, config.ProjectFile))
	fmt.Printf("# mount: /projects/%s/  fingerprint: %s\n", mountName(cfg), proj.Fingerprint)
	data, err := yaml.Marshal(proj)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render YAML: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	return 0
}

func runProjectGet(args []string) int {
	fs := flag.NewFlagSet("project get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	path, ok := parsePositional(fs, args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Usage: tilegw project get <path> [--config PATH]")
		return 1
	}

	_, proj, err := loadProjectForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load project: %v\n", err)
		return 1
	}
	v, err := proj.GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return printValue(v)
}

// --- config noun ---

func runConfigNoun(args []string) int {
	if len(args) == 0 || isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}
	action, rest := args[0], args[1:]
	if hasHelpFlag(rest) {
		printConfigNounHelp(os.Stdout)
		return 0
	}
	switch action {
	case "get":
		return runConfigGet(rest)
	case "check":
		return runProjectCheck(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n\n", action)
		printConfigNounHelp(os.Stderr)
		return 1
	}
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprint(w, `Usage: tilegw config <action> [flags]

Actions:
  get   <path> [--config PATH]           Read a service setting, e.g. api.listen
  check [--config PATH] [--json]         Alias for 'project check'
`)
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("config get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	path, ok := parsePositional(fs, args)
	if !ok {
		fmt.Fprintln(os.Stderr, "Usage: tilegw config get <path> [--config PATH]")
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	v, err := cfg.GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return printValue(v)
}

// parsePositional parses flags that may appear before or after a single
// positional argument.
func parsePositional(fs *flag.FlagSet, args []string) (string, bool) {
	var positional []string
	for len(args) > 0 {
		if err := fs.Parse(args); err != nil {
			return "", false
		}
		args = fs.Args()
		if len(args) > 0 {
			positional = append(positional, args[0])
			args = args[1:]
		}
	}
	if len(positional) != 1 {
		return "", false
	}
	return positional[0], true
}

func printValue(v any) int {
	switch val := v.(type) {
	case map[string]any, []any:
		data, err := yaml.Marshal(val)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render value: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
	default:
		fmt.Println(val)
	}
	return 0
}

func loadConfigForTool(configPath string) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}

func loadProjectForTool(configPath string) (*config.Config, *config.Project, error) {
	cfg, err := loadConfigForTool(configPath)
	if err != nil {
		return nil, nil, err
	}
	proj, err := config.LoadProject(cfg.Project.Root)
	if err != nil {
		return nil, nil, err
	}
	return cfg, proj, nil
}

// mountName is the {name} the project is served under. It derives from the
// project directory so it survives renames in project.yaml.
func mountName(cfg *config.Config) string {
	return config.Slug(filepath.Base(cfg.Project.Root))
}

// stateFiles are written by the running service and must not be reported
// as project edits when state.path sits inside the project root.
func stateFiles(cfg *config.Config) []string {
	return []string{cfg.State.Path, lock.PathFor(cfg.State.Path)}
}

func newProject(cfg *config.Config, hub *events.Hub, opts ...project.Option) *project.Project {
	name := mountName(cfg)
	base := []project.Option{
		project.WithPoolSizes(cfg.Project.RasterPoolSize, cfg.Project.VectorPoolSize),
		project.WithEvents(hub),
		project.WithURL("/projects/" + name + "/"),
		project.WithLogger(log.WithProject(name)),
		project.WithWatcher(fswatch.NewFS(fswatch.WithIgnore(stateFiles(cfg)...))),
	}
	return project.New(cfg.Project.Root, append(base, opts...)...)
}

// --- serve ---

func printServeHelp() {
	fmt.Print(`Usage: tilegw serve [--config PATH]

Loads tilegw.yaml, serves the configured project under /projects/<name>/ and
reloads it on /projects/<name>/reload/.
`)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if *configPath == "" {
		discovered, err := config.DiscoverConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		*configPath = discovered
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", *configPath)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("tilegw starting", "version", version, "config", cfg.SourcePath)

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock", "path", pidLockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	hub := events.NewHub(256)
	recorder := history.NewRecorder(history.NewStore(db))
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		recorder.Run(ctx, hub)
	}()

	name := mountName(cfg)
	proj := newProject(cfg, hub)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		if err := m.WatchPools(name, proj.PoolStats, proj.Notifications().Len); err != nil {
			logger.Error("failed to register pool metrics", "error", err)
			return 1
		}
	}

	if err := proj.Load(ctx); err != nil {
		logger.Error("failed to start project load", "root", cfg.Project.Root, "error", err)
		return 1
	}

	apiConfig := api.Config{
		Listen:              cfg.API.Listen,
		ProjectName:         name,
		CORSOrigins:         cfg.API.CORSOrigins,
		LoadWait:            cfg.API.LoadWait,
		ExportRatePerMinute: cfg.Export.RatePerMinute,
		ExportBurst:         cfg.Export.Burst,
		MetricsPath:         cfg.Metrics.Path,
	}
	apiServer := api.New(apiConfig, proj, hub, m, log.WithComponent("api"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := apiServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("api: %w", err)
		}
	}()

	logger.Info("tilegw running (press Ctrl+C to stop)", "project_url", apiServer.ProjectURL())

	exit := 0
	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		exit = 1
	}
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer closeCancel()
	if err := proj.Close(closeCtx); err != nil {
		logger.Warn("project did not drain before shutdown", "error", err)
	}
	<-recorderDone

	logger.Info("tilegw stopped")
	return exit
}

// --- history ---

func runHistory(args []string) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", history.DefaultLimit, "Maximum rows per table")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfigForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	store := history.NewStore(db)
	reloads, err := store.RecentReloads(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read reloads: %v\n", err)
		return 1
	}
	exports, err := store.RecentExports(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read exports: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(map[string]any{"reloads": reloads, "exports": exports}, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	printHistory(reloads, exports, time.Now())
	return 0
}

func printHistory(reloads []history.Reload, exports []history.Export, now time.Time) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "RELOADS")
	if len(reloads) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		fmt.Fprintln(w, "  WHEN\tKIND\tPROJECT\tFINGERPRINT\tDURATION\tRESULT")
		for _, r := range reloads {
			result := "ok"
			switch {
			case r.Error != "":
				result = "failed: " + r.Error
			case r.Unchanged:
				result = "unchanged"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
				humanize.RelTime(r.CreatedAt, now, "ago", "from now"), r.Kind, r.Project,
				shortenCommit(r.Fingerprint), r.Duration, result)
		}
	}

	fmt.Fprintln(w, "\nEXPORTS")
	if len(exports) == 0 {
		fmt.Fprintln(w, "  (none)")
	} else {
		fmt.Fprintln(w, "  WHEN\tPROJECT\tFORMAT\tSIZE\tDURATION\tRESULT")
		for _, e := range exports {
			result := "ok"
			if e.Error != "" {
				result = "failed: " + e.Error
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
				humanize.RelTime(e.CreatedAt, now, "ago", "from now"), e.Project, e.Format,
				humanize.Bytes(uint64(e.Bytes)), e.Duration, result)
		}
	}
	_ = w.Flush()
}

// --- watch ---

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	url := fs.String("url", "", "tilegw base URL (default: from api.listen)")
	name := fs.String("project", "", "Mounted project name (default: from project.root)")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	if *url == "" || *name == "" {
		cfg, err := loadConfigForTool(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: --url and --project are required without a config: %v\n", err)
			return 1
		}
		if *url == "" {
			*url = "http://" + cfg.API.Listen
		}
		if *name == "" {
			*name = mountName(cfg)
		}
	}

	m := watch.New(strings.TrimSuffix(*url, "/"), *name)
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

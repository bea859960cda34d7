package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vaultmind/vaultmind/config"
	"github.com/vaultmind/vaultmind/daemon"
	"github.com/vaultmind/vaultmind/dedup"
	"github.com/vaultmind/vaultmind/graph"
	"github.com/vaultmind/vaultmind/index"
	"github.com/vaultmind/vaultmind/pipeline"
	"github.com/vaultmind/vaultmind/suggest"
	"github.com/vaultmind/vaultmind/vault"
)

var (
	watchBackground bool
	watchLogDir     string
	watchStatus     bool
	watchStop       bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start the real-time vault watcher",
	Long: `Start a process that monitors note changes and keeps the index fresh.

The watcher will:
- Perform an initial scan comparing disk state with the existing index
- Skip unchanged notes by comparing modification times for faster launches
- Monitor filesystem events (create, modify, delete, rename)
- Debounce editor write bursts and verify content stability before indexing
- Schedule knowledge graph re-extraction in batches
- Re-check duplicate candidates as notes settle
- Refresh link suggestions for each settled note

Background mode:
  vaultmind watch --background              Run in background with default log directory
  vaultmind watch --background --log-dir /custom/path  Run with custom log directory
  vaultmind watch --status                  Check if background watcher is running
  vaultmind watch --stop                    Stop the background watcher

Each vault runs at most one watcher; its PID and ready files live in the
vault's .vaultmind directory.

Default log directories:
  Linux:   ~/.local/state/vaultmind/logs/vaultmind-watch.log (or $XDG_STATE_HOME)
  macOS:   ~/Library/Logs/vaultmind/vaultmind-watch.log
  Windows: %LOCALAPPDATA%\vaultmind\logs\vaultmind-watch.log

Logs are not rotated automatically; truncate or archive the log file
periodically if disk usage matters.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchBackground, "background", false, "Run in background mode")
	watchCmd.Flags().StringVar(&watchLogDir, "log-dir", "", "Directory for log files (default: OS-specific)")
	watchCmd.Flags().BoolVar(&watchStatus, "status", false, "Show background watcher status")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "Stop the background watcher")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	// Validate mutually exclusive flags
	activeFlags := 0
	if watchBackground {
		activeFlags++
	}
	if watchStatus {
		activeFlags++
	}
	if watchStop {
		activeFlags++
	}
	if activeFlags > 1 {
		return fmt.Errorf("flags --background, --status, and --stop are mutually exclusive")
	}

	// Daemon state is keyed by vault, so every mode resolves the vault
	// root before touching PID or ready files.
	vaultRoot, err := config.FindVaultRoot()
	if err != nil {
		return err
	}
	stateDir := config.GetConfigDir(vaultRoot)

	// Determine log directory
	logDir := watchLogDir
	if logDir == "" {
		logDir, err = daemon.GetDefaultLogDir()
		if err != nil {
			return fmt.Errorf("failed to get default log directory: %w", err)
		}
	}

	if watchStatus {
		return showWatchStatus(vaultRoot, stateDir, logDir)
	}

	if watchStop {
		return stopWatchDaemon(stateDir, logDir)
	}

	if watchBackground {
		return startBackgroundWatch(stateDir, logDir)
	}

	// Check if already running in background (automatically cleans up stale PIDs)
	pid, err := daemon.GetRunningPID(stateDir)
	if err != nil {
		return fmt.Errorf("failed to check running status: %w", err)
	}
	if pid > 0 {
		return fmt.Errorf("watcher is already running in background (PID %d)\nUse 'vaultmind watch --stop' to stop it", pid)
	}

	return runWatchForeground(vaultRoot, stateDir)
}

func showWatchStatus(vaultRoot, stateDir, logDir string) error {
	// Get running PID (automatically cleans up stale PIDs)
	pid, err := daemon.GetRunningPID(stateDir)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	if pid == 0 {
		fmt.Println("Status: not running")
		fmt.Printf("Vault: %s\n", vaultRoot)
		fmt.Printf("Log directory: %s\n", logDir)
		return nil
	}

	fmt.Println("Status: running")
	fmt.Printf("PID: %d\n", pid)
	fmt.Printf("Vault: %s\n", vaultRoot)
	fmt.Printf("Log directory: %s\n", logDir)
	fmt.Printf("Log file: %s\n", filepath.Join(logDir, "vaultmind-watch.log"))
	return nil
}

func stopWatchDaemon(stateDir, logDir string) error {
	pid, err := daemon.GetRunningPID(stateDir)
	if err != nil {
		return fmt.Errorf("failed to read PID file: %w", err)
	}

	if pid == 0 {
		fmt.Println("No background watcher is running")
		return nil
	}

	fmt.Printf("Stopping background watcher (PID %d)...\n", pid)
	if err := daemon.StopProcess(stateDir, pid); err != nil {
		return fmt.Errorf("failed to stop process: %w", err)
	}

	// Wait for process to stop with timeout
	const shutdownTimeout = 30 * time.Second
	const shutdownPollInterval = 500 * time.Millisecond
	deadline := time.Now().Add(shutdownTimeout)
	lastProgress := time.Now()

	for time.Now().Before(deadline) {
		if !daemon.IsProcessRunning(pid) {
			break
		}

		if time.Since(lastProgress) >= 5*time.Second {
			fmt.Println("Waiting for graceful shutdown...")
			lastProgress = time.Now()
		}

		time.Sleep(shutdownPollInterval)
	}

	if daemon.IsProcessRunning(pid) {
		return fmt.Errorf("process did not stop within %v\nStill running? Try: kill -9 %d\nOr check logs at: %s",
			shutdownTimeout, pid, filepath.Join(logDir, "vaultmind-watch.log"))
	}

	if err := daemon.RemovePIDFile(stateDir); err != nil {
		return fmt.Errorf("failed to remove PID file: %w", err)
	}

	fmt.Println("Background watcher stopped")
	return nil
}

func startBackgroundWatch(stateDir, logDir string) error {
	// Check if already running (automatically cleans up stale PIDs)
	pid, err := daemon.GetRunningPID(stateDir)
	if err != nil {
		return fmt.Errorf("failed to check running status: %w", err)
	}
	if pid > 0 {
		return fmt.Errorf("watcher is already running (PID %d)", pid)
	}

	// Build args for background process (exclude --background flag)
	args := []string{"watch"}
	if watchLogDir != "" {
		args = append(args, "--log-dir", watchLogDir)
	}

	childPID, exitCh, err := daemon.SpawnBackground(logDir, args)
	if err != nil {
		return fmt.Errorf("failed to start background process: %w", err)
	}

	logFile := filepath.Join(logDir, "vaultmind-watch.log")

	// Poll for the ready file with a timeout, also checking for early child
	// exit. Child exit is detected through exitCh rather than kill(0), which
	// reports zombies as alive.
	const startupTimeout = 30 * time.Second
	const pollInterval = 250 * time.Millisecond
	deadline := time.Now().Add(startupTimeout)

	for time.Now().Before(deadline) {
		if daemon.IsReady(stateDir) {
			fmt.Printf("Background watcher started (PID %d)\n", childPID)
			fmt.Printf("Logs: %s\n", logFile)
			fmt.Printf("\nUse 'vaultmind watch --status' to check status\n")
			fmt.Printf("Use 'vaultmind watch --stop' to stop the watcher\n")
			return nil
		}

		select {
		case <-exitCh:
			return fmt.Errorf("background process failed to start (check logs at %s)", logFile)
		default:
		}

		time.Sleep(pollInterval)
	}

	return fmt.Errorf("timeout waiting for process to become ready after %v (check logs at %s)", startupTimeout, logFile)
}

func runWatchForeground(vaultRoot, stateDir string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Detect if running as background child process
	isBackgroundChild := os.Getenv("VAULTMIND_BACKGROUND") == "1"

	if isBackgroundChild {
		// Configure structured logging with timestamps for daemon mode
		log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
		log.SetPrefix("[vaultmind-watch] ")

		if err := daemon.WritePIDFile(stateDir); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() {
			if err := daemon.RemovePIDFile(stateDir); err != nil {
				log.Printf("Warning: failed to remove PID file on exit: %v", err)
			}
		}()
	}

	// Load configuration
	cfg, err := config.Load(vaultRoot)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logf := func(format string, args ...interface{}) {
		if isBackgroundChild {
			log.Printf(format, args...)
		} else {
			fmt.Printf(format+"\n", args...)
		}
	}

	logf("Starting vaultmind watch in %s", vaultRoot)
	logf("Provider: %s (%s)", cfg.Embedder.Provider, cfg.Embedder.Model)
	logf("Backend: %s", cfg.Store.Backend)
	if cfg.Watch.ReextractGraph {
		logf("Graph re-extraction: enabled (llm: %s/%s, batch interval: %ds)",
			cfg.Graph.LLMProvider, cfg.Graph.LLMModel, cfg.Watch.BatchGraphIntervalSeconds)
	} else {
		logf("Graph re-extraction: disabled")
	}

	// Initialize embedder
	emb, err := initializeEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer emb.Close()

	// Initialize store
	st, err := initializeStore(ctx, cfg, vaultRoot)
	if err != nil {
		return err
	}
	defer st.Close()

	// Initialize parser, chunker, indexer
	parser := vault.NewParser(vaultRoot, cfg.Vault.ExcludedFolders)
	chunker := index.NewChunker(cfg.Chunking.MaxTokens)
	idx := index.NewIndexer(parser, st, emb, chunker)

	// Initialize knowledge graph and extractor
	kg := graph.NewKnowledgeGraph(config.GetGraphPath(vaultRoot))
	if err := kg.Load(); err != nil {
		log.Printf("Warning: failed to load knowledge graph: %v", err)
	}
	extractor := graph.NewExtractor(graph.ExtractorConfig{
		Model:         cfg.Graph.LLMModel,
		Endpoint:      cfg.Graph.LLMEndpoint,
		APIKey:        cfg.Graph.LLMAPIKey,
		Timeout:       time.Duration(cfg.Graph.LLMTimeoutMs) * time.Millisecond,
		MinConfidence: cfg.Graph.MinConfidence,
	}, kg)

	// Wire up the change pipeline: event bus, graph batcher, watch handler
	bus := pipeline.NewEventBus()
	batcher := pipeline.NewGraphBatcher(
		time.Duration(cfg.Watch.BatchGraphIntervalSeconds)*time.Second,
		parser, extractor)
	defer batcher.Close()

	handler := pipeline.NewWatchHandler(pipeline.HandlerConfig{
		DebounceInterval: time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
		StabilityCheck:   cfg.Watch.StabilityCheckEnabled(),
		ReextractGraph:   cfg.Watch.ReextractGraph,
	}, parser, idx, bus, batcher)
	defer handler.Close()

	// Duplicate detection reacts to settled note changes
	if cfg.Dedup.IsEnabled() {
		detector := dedup.NewDetector(dedup.Config{
			MinContentLength:   cfg.Dedup.MinContentLength,
			DuplicateThreshold: cfg.Dedup.DuplicateThreshold,
			MergeThreshold:     cfg.Dedup.MergeThreshold,
		}, st)
		for _, kind := range []pipeline.EventKind{pipeline.EventNoteCreated, pipeline.EventNoteModified, pipeline.EventNoteDeleted} {
			bus.Subscribe(kind, detector.OnNoteChanged)
		}
	}

	// Link suggestions refresh for each note as it settles
	if cfg.Suggest.IsEnabled() {
		suggester := suggest.NewSuggester(suggest.Config{
			MinContentLength: cfg.Suggest.MinContentLength,
			MinSimilarity:    cfg.Suggest.MinSimilarity,
			MaxSimilarity:    cfg.Suggest.MaxSimilarity,
			EntityWeight:     cfg.Suggest.EntityWeight,
			GraphWeight:      cfg.Suggest.GraphWeight,
			MaxResults:       cfg.Suggest.MaxResults,
		}, st, kg)
		for _, kind := range []pipeline.EventKind{pipeline.EventNoteCreated, pipeline.EventNoteModified, pipeline.EventNoteDeleted} {
			bus.Subscribe(kind, suggester.OnNoteChanged)
		}
	}

	// Initialize watcher
	w, err := vault.NewWatcher(parser, handler.HandleChange)
	if err != nil {
		return fmt.Errorf("failed to initialize watcher: %w", err)
	}
	defer w.Close()

	// Initial scan
	logf("Performing initial scan...")
	stats, err := idx.IndexAll(ctx)
	if err != nil {
		return fmt.Errorf("initial indexing failed: %w", err)
	}
	logf("Initial scan complete: %d notes indexed, %d chunks created, %d notes removed, %d skipped (took %s)",
		stats.NotesIndexed, stats.ChunksCreated, stats.NotesRemoved, stats.NotesSkipped, stats.Duration.Round(time.Millisecond))

	if err := st.Persist(ctx); err != nil {
		log.Printf("Warning: failed to persist index: %v", err)
	}

	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	// Handle signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	stopCh := daemon.StopChannel(stateDir)

	// Signal readiness to the parent process
	if isBackgroundChild {
		if err := daemon.WriteReadyFile(stateDir); err != nil {
			log.Printf("Warning: failed to write ready file: %v", err)
		}
		defer func() {
			if err := daemon.RemoveReadyFile(stateDir); err != nil {
				log.Printf("Warning: failed to remove ready file on exit: %v", err)
			}
		}()
		log.Println("Watching for changes...")
	} else {
		fmt.Println("\nWatching for changes... (Press Ctrl+C to stop)")
	}

	// Periodic persist ticker
	persistTicker := time.NewTicker(30 * time.Second)
	defer persistTicker.Stop()

	persistAll := func() {
		if err := st.Persist(ctx); err != nil {
			log.Printf("Warning: failed to persist index: %v", err)
		}
		if err := kg.Save(); err != nil {
			log.Printf("Warning: failed to persist knowledge graph: %v", err)
		}
	}

	for {
		select {
		case <-sigChan:
			if isBackgroundChild {
				log.Println("Shutting down...")
			} else {
				fmt.Println("\nShutting down...")
			}
			persistAll()
			return nil

		case <-stopCh:
			log.Println("Stop file detected, shutting down...")
			persistAll()
			return nil

		case <-persistTicker.C:
			persistAll()
		}
	}
}

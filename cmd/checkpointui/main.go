package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"strconv"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/samsartor/checkpointui/pkg/analysis"
	"github.com/samsartor/checkpointui/pkg/config"
	"github.com/samsartor/checkpointui/pkg/debug"
	"github.com/samsartor/checkpointui/pkg/reclaim"
	"github.com/samsartor/checkpointui/pkg/safetensors"
	"github.com/samsartor/checkpointui/pkg/ui"
	"github.com/samsartor/checkpointui/pkg/version"
	"github.com/samsartor/checkpointui/pkg/watcher"
)

func main() {
	cpuProfile := flag.String("cpu-profile", "", "Write CPU profile to file")
	help := flag.Bool("help", false, "Show help")
	versionFlag := flag.Bool("version", false, "Show version")
	bins := flag.Int("bins", 0, "Histogram resolution (default: terminal width)")
	delimiter := flag.String("delimiter", "", "Tensor name delimiter (default: '.')")
	noFlatten := flag.Bool("no-flatten", false, "Keep single-child module chains as separate rows")
	noWatch := flag.Bool("no-watch", false, "Disable live reload on file changes")
	poll := flag.Duration("poll", 0, "Polling interval for the watcher fallback")
	debugFlag := flag.Bool("debug", false, "Enable debug logging to stderr (also CPTUI_DEBUG=1)")
	flag.Parse()

	if *debugFlag {
		debug.SetEnabled(true)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	if *help {
		fmt.Println("Usage: checkpointui [options] <checkpoint.safetensors | model.safetensors.index.json>")
		fmt.Println("\nA terminal viewer for safetensors checkpoints.")
		flag.PrintDefaults()
		os.Exit(0)
	}

	if *versionFlag {
		fmt.Printf("checkpointui %s\n", version.Version)
		os.Exit(0)
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: checkpointui [options] <checkpoint.safetensors>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed, using defaults: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if *bins > 0 {
		cfg.UI.MaxBins = *bins
	}
	if *delimiter != "" {
		cfg.Delimiter = *delimiter
	}
	if *noFlatten {
		flatten := false
		cfg.UI.FlattenTree = &flatten
	}
	if *noWatch {
		enabled := false
		cfg.Watch.Enabled = &enabled
	}
	if *poll > 0 {
		cfg.Watch.PollInterval = *poll
	}
	debug.Dump("config", cfg)

	source, err := safetensors.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", path, err)
		os.Exit(1)
	}
	defer source.Close()

	maxBins := cfg.UI.MaxBins
	if maxBins <= 0 {
		maxBins = 256
	}
	session := analysis.NewSession(reclaim.NewCollector(), source, maxBins)
	defer session.Close()

	var w *watcher.Watcher
	if cfg.WatchEnabled() {
		w, err = watcher.New(path,
			watcher.WithPollInterval(cfg.Watch.PollInterval),
			watcher.WithDebounce(cfg.Watch.Debounce),
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file watching unavailable: %v\n", err)
		} else if err := w.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: file watching unavailable: %v\n", err)
			w = nil
		} else {
			defer w.Stop()
		}
	}

	m, err := ui.New(path, cfg, source, session, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
		os.Exit(1)
	}

	cfg.AddRecent(path)
	if err := config.Save(cfg); err != nil {
		debug.Log("saving config: %v", err)
	}

	if err := runTUIProgram(m); err != nil {
		fmt.Fprintf(os.Stderr, "Error running checkpoint viewer: %v\n", err)
		os.Exit(1)
	}
}

func runTUIProgram(m *ui.Model) error {
	p := tea.NewProgram(
		m,
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	runDone := make(chan struct{})
	defer close(runDone)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runDone:
			return
		case <-sigCh:
		}

		p.Quit()

		select {
		case <-runDone:
			return
		case <-sigCh:
		case <-time.After(5 * time.Second):
		}

		p.Kill()
	}()

	// Optional auto-quit for automated tests: set CPTUI_TUI_AUTOCLOSE_MS.
	if v := os.Getenv("CPTUI_TUI_AUTOCLOSE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			go func() {
				timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
				defer timer.Stop()

				select {
				case <-runDone:
					return
				case <-timer.C:
				}

				p.Quit()

				select {
				case <-runDone:
					return
				case <-time.After(2 * time.Second):
				}

				p.Kill()
			}()
		}
	}

	_, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || errors.Is(err, tea.ErrInterrupted) {
			return nil
		}
		return err
	}
	return nil
}

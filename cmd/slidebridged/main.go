// slidebridged - background automation bridge between a slide editor and
// a screen-reading host.
//
//	slidebridged init       Write the default configuration file
//	slidebridged run        Run the bridge daemon
//	slidebridged status     Query a running daemon over the control socket
//	slidebridged version    Print the daemon version
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"slidebridge/internal/automation"
	"slidebridge/internal/cache"
	"slidebridge/internal/config"
	"slidebridge/internal/focusnav"
	"slidebridge/internal/host"
	"slidebridge/internal/identity"
	"slidebridge/internal/ipc"
	"slidebridge/internal/journal"
	"slidebridge/internal/logging"
	"slidebridge/internal/resolution"
	"slidebridge/internal/worker"
)

const version = "0.4.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "version":
		fmt.Printf("slidebridged %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`slidebridged - Slide editor bridge for screen-reading hosts

USAGE:
    slidebridged <command> [options]

COMMANDS:
    init        Write the default configuration file
    run         Run the bridge daemon
    status      Query a running daemon over the control socket
    version     Print the daemon version
    help        Show this help message

RUN OPTIONS:
    -config <path>      Configuration file (default: platform data dir)
    -simulate           Drive a simulated editor instead of a live one
    -log-level <level>  Override the configured log level

The daemon attaches to the running editor, follows slide changes and
slide shows, reads comment and speaker-notes state, and announces what
changed. Use slidectl to talk to a running daemon.`)
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "configuration file to write")
	fs.Parse(os.Args[2:])

	if _, err := os.Stat(*configPath); err == nil {
		fmt.Fprintf(os.Stderr, "Config already exists: %s\n", *configPath)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := cfg.Save(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote default configuration to %s\n", *configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review the [application] section (prog_id must match your editor)")
	fmt.Println("  2. Start the daemon with 'slidebridged run'")
	fmt.Println("  3. Check it with 'slidectl status'")
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "configuration file")
	simulate := fs.Bool("simulate", false, "drive a simulated editor")
	logLevel := fs.String("log-level", "", "override the configured log level")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, err := buildLogger(cfg, *logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	defer logger.Close()
	log := logger.Logger

	log.Info("starting slidebridged", "version", version, "simulate", *simulate)

	// Automation connector.
	var (
		conn automation.Connector
		nav  *focusnav.Navigator
	)
	if *simulate {
		fake := automation.NewFake()
		deck := buildSimDeck(fake)
		conn = fake
		nav = focusnav.New(newSimTreeProvider(deck), log)
	} else {
		conn, err = automation.NewLive(cfg.Application.ProgID, log)
		if err != nil {
			log.Error("automation unavailable", "error", err)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Saved-file resolution, both tiers config-gated.
	var resolver *resolution.Resolver
	var saveWatcher *resolution.SaveWatcher
	if cfg.Resolution.Enabled {
		resolver = resolution.New(resolution.Options{
			LiveRead:      true,
			RetryAttempts: cfg.Resolution.RetryAttempts,
			RetryBackoff:  time.Duration(cfg.Resolution.RetryBackoffMs) * time.Millisecond,
			Log:           log,
		})
		if cfg.Resolution.WatchSaves {
			saveWatcher, err = resolution.NewSaveWatcher(time.Duration(cfg.Resolution.DebounceMs) * time.Millisecond)
			if err != nil {
				log.Warn("save watcher unavailable, falling back to on-demand reads", "error", err)
			} else {
				saveWatcher.Start()
				defer saveWatcher.Close()
			}
		}
	}

	// Announcement path: platform backend behind a never-blocking queue.
	backend, closeBackend := newPlatformAnnouncer(log)
	announcer := host.NewAsyncAnnouncer(backend, cfg.Worker.AnnounceQueueSize, log)
	defer func() {
		announcer.Close()
		closeBackend()
	}()

	// Diagnostics journal.
	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0750); err != nil {
			log.Warn("journal directory not created, journaling disabled", "error", err)
		} else if jrnl, err = journal.Open(cfg.Journal.Path, cfg.Journal.MaxEvents); err != nil {
			log.Warn("journal not opened, journaling disabled", "error", err)
			jrnl = nil
		} else {
			defer jrnl.Close()
		}
	}

	// Mention roster, optional.
	var roster *identity.Roster
	if cfg.Mentions.RosterPath != "" {
		roster, err = identity.Load(cfg.Mentions.RosterPath)
		if err != nil {
			log.Info("mention roster not loaded, mention announcements disabled",
				"path", cfg.Mentions.RosterPath, "error", err)
			roster = nil
		}
	}

	w, err := worker.New(worker.Options{
		Config:    cfg,
		Connector: conn,
		Cache:     cache.New(),
		Resolver:  resolver,
		Watcher:   saveWatcher,
		Navigator: nav,
		Roster:    roster,
		Announcer: announcer,
		Journal:   jrnl,
		Log:       log,
	})
	if err != nil {
		log.Error("worker setup failed", "error", err)
		os.Exit(1)
	}
	w.Start()

	// Control socket.
	shutdownReq := make(chan struct{})
	var shutdownOnce sync.Once
	bridge := ipc.NewBridge(ipc.BridgeOptions{
		Worker:  w,
		Journal: jrnl,
		Version: version,
		OnShutdown: func() {
			shutdownOnce.Do(func() { close(shutdownReq) })
		},
		Log: log,
	})
	go func() {
		for resp := range w.Responses() {
			bridge.Observe(resp)
		}
	}()

	server := ipc.NewServer(cfg.IPC, bridge, log)
	if err := server.Start(); err != nil {
		log.Error("control socket not started", "error", err)
		w.Stop()
		os.Exit(1)
	}
	log.Info("control socket listening", "addr", server.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigChan:
		log.Info("signal received, shutting down", "signal", sig.String())
	case <-shutdownReq:
		log.Info("shutdown requested over control socket")
	}

	if err := server.Stop(); err != nil {
		log.Warn("control socket stop", "error", err)
	}
	if err := w.Stop(); err != nil {
		log.Warn("worker stop", "error", err)
	}
	log.Info("slidebridged stopped")
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", config.DefaultPath(), "configuration file")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	client, err := ipc.Dial(cfg.IPC, 3*time.Second)
	if err != nil {
		fmt.Println("Daemon: NOT RUNNING")
		os.Exit(1)
	}
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error querying daemon: %v\n", err)
		os.Exit(1)
	}
	printStatus(st)
}

func printStatus(st ipc.StatusPayload) {
	fmt.Printf("Daemon:       RUNNING (version %s, up %s)\n", st.Version, (time.Duration(st.UptimeSec) * time.Second).String())
	if !st.Attached {
		fmt.Println("Editor:       not attached")
		return
	}
	fmt.Printf("Editor:       attached\n")
	fmt.Printf("Presentation: %s\n", st.Presentation)
	fmt.Printf("Slide:        %d\n", st.SlideIndex)
	fmt.Printf("Comments:     %d (%d active, %d resolved, %d closed, %d unknown; %s)\n",
		st.CommentCount, st.Active, st.Resolved, st.Closed, st.Unknown, st.Freshness)
	if st.NotesPresent {
		fmt.Println("Notes:        present")
	} else {
		fmt.Println("Notes:        none")
	}
}

func buildLogger(cfg *config.Config, levelOverride string) (*logging.Logger, error) {
	lc := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		lc.Level = lvl
	}
	if levelOverride != "" {
		lvl, err := logging.ParseLevel(levelOverride)
		if err != nil {
			return nil, err
		}
		lc.Level = lvl
	}
	if cfg.Logging.Format == "json" {
		lc.Format = logging.FormatJSON
	}
	if cfg.Logging.Output != "" {
		lc.Output = cfg.Logging.Output
	}
	if cfg.Logging.FilePath != "" {
		lc.FilePath = cfg.Logging.FilePath
	}
	if cfg.Logging.MaxSizeMB > 0 {
		lc.MaxSize = cfg.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxBackups > 0 {
		lc.MaxBackups = cfg.Logging.MaxBackups
	}
	return logging.New(lc)
}

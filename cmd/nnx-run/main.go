// nnx-run executes a command on many VPSes through the NodeNexus panel and
// streams the aggregated output to stdout.
//
//	nnx-run -targets 1,2,3 -- uptime
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/moonheart/nodenexus-go/internal/api"
	"github.com/moonheart/nodenexus-go/internal/auth"
	"github.com/moonheart/nodenexus-go/internal/batch"
	"github.com/moonheart/nodenexus-go/internal/client"
	"github.com/moonheart/nodenexus-go/internal/config"
	"github.com/moonheart/nodenexus-go/internal/event"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (built-in defaults when empty)")
	envPath := flag.String("env", ".env", "Path to .env file providing the token env var")
	token := flag.String("token", "", "Bearer token (overrides the token env var)")
	server := flag.String("server", "", "Override server base URL")
	targets := flag.String("targets", "", "Comma-separated VPS ids to run on")
	workdir := flag.String("workdir", "", "Working directory for the command")
	scripts := flag.Bool("scripts", false, "List saved scripts and exit")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *server != "" {
		cfg.Server.URL = *server
	}
	if *workdir == "" {
		*workdir = cfg.Run.WorkingDirectory
	}

	var provider auth.Provider
	if *token != "" {
		provider = auth.NewStaticProvider(*token)
	} else {
		if err := auth.LoadDotenv(*envPath); err != nil {
			log.Fatalf("Failed to load %s: %v", *envPath, err)
		}
		provider = auth.NewEnvProvider(cfg.Server.TokenEnv)
	}

	if *scripts {
		listScripts(cfg.Server.URL, provider)
		return
	}

	ids, err := parseTargets(*targets)
	if err != nil {
		log.Fatalf("Invalid -targets: %v", err)
	}
	command := strings.Join(flag.Args(), " ")
	if command == "" || len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "usage: nnx-run -targets 1,2,3 [flags] command...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	bus := event.NewBus()
	manager := client.NewManager(client.Options{
		BaseURL: cfg.Server.URL,
		WSPath:  cfg.Server.WSPath,
		Auth:    provider,
		Bus:     bus,
		Policy: client.Policy{
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			BaseDelay:   cfg.Reconnect.BaseDelay,
			CapDelay:    cfg.Reconnect.CapDelay,
		},
		ListWindow: cfg.Throttle.ServerListWindow,
	})

	session := batch.NewSession(manager, command, *workdir, ids)
	session.OnEntry = printEntry
	session.Attach(bus)

	done := make(chan int, 1)
	var startOnce sync.Once
	bus.Subscribe(client.EventOpen, func(any) {
		// A reconnect re-fires EventOpen; the run is only started once.
		startOnce.Do(func() {
			if err := session.Start(); err != nil {
				log.Printf("Failed to start run: %v", err)
				done <- 1
			}
		})
	})
	bus.Subscribe(client.EventClosed, func(p any) {
		log.Printf("Connection lost, retrying: %v", p)
	})
	bus.Subscribe(client.EventPermanentFailure, func(p any) {
		log.Printf("Connection permanently failed: %v", p)
		done <- 1
	})
	bus.Subscribe(client.EventError, func(p any) {
		log.Printf("Connection error: %v", p)
		done <- 1
	})
	// Registered after session.Attach, so the session has already consumed
	// the completion frame when this fires.
	bus.Subscribe(batch.KindCompleted, func(any) {
		if session.Finished() {
			done <- 0
		}
	})

	manager.Connect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	terminated := false
	for {
		select {
		case code := <-done:
			manager.Disconnect()
			if code == 0 && session.FailedCount() > 0 {
				code = 1
			}
			os.Exit(code)
		case <-sigCh:
			if !terminated {
				terminated = true
				log.Println("Terminating run (interrupt again to quit)...")
				if err := session.Terminate(); err != nil {
					log.Printf("Terminate: %v", err)
				}
				continue
			}
			manager.Disconnect()
			os.Exit(130)
		}
	}
}

func printEntry(e batch.TimelineEntry) {
	if e.RunLevel {
		fmt.Printf("[run] %s\n", e.Line)
		return
	}
	fmt.Printf("[%d] %s\n", e.VPSID, e.Line)
}

func listScripts(baseURL string, provider auth.Provider) {
	c := api.NewClient(baseURL, provider)
	scripts, err := c.ListScripts()
	if err != nil {
		log.Fatalf("Failed to list scripts: %v", err)
	}
	for _, s := range scripts {
		fmt.Printf("%d\t%s\t%s\n", s.ID, s.Name, s.Content)
	}
}

func parseTargets(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("%q is not a VPS id", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

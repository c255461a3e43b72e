// Command supervisor is the fleet-manager process: it loads configuration,
// forks one worker process per configured bot token, and runs an admin
// ControlBot until the process is signalled.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ptyrelay/ptyrelay/internal/config"
	"github.com/ptyrelay/ptyrelay/internal/discord"
	"github.com/ptyrelay/ptyrelay/internal/mcp"
	"github.com/ptyrelay/ptyrelay/internal/supervisor"
	"github.com/ptyrelay/ptyrelay/internal/telegram"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("[supervisor] ")

	var envPath, workerPath string
	flag.StringVar(&envPath, "env", ".env", "path to the persisted environment file for admin edits")
	flag.StringVar(&workerPath, "worker", defaultWorkerPath(), "path to the compiled worker binary")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store := config.NewStore(envPath)
	sup := supervisor.New(cfg, workerPath, store)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if cfg.DiscordToken != "" {
		sink, err := discord.New(cfg.DiscordToken, cfg.DiscordChannelID)
		if err != nil {
			log.Printf("discord sink disabled: %v", err)
		} else {
			defer sink.Close()
			sup.OnAlert(func(msg string) {
				if err := sink.Notify(msg); err != nil {
					log.Printf("discord notify: %v", err)
				}
			})
		}
	}

	if cfg.MCPSocketPath != "" {
		mcpServer := mcp.NewServer(sup, cfg.MCPSocketPath)
		go func() {
			if err := mcpServer.Serve(ctx); err != nil && ctx.Err() == nil {
				log.Printf("mcp server stopped: %v", err)
			}
		}()
	}

	sup.StartAll(ctx)

	if cfg.ControlBotToken == "" {
		log.Printf("CONTROL_BOT_TOKEN not set; running without an admin bot")
		<-ctx.Done()
		sup.Shutdown(context.Background())
		return
	}

	chat, err := telegram.New(cfg.ControlBotToken, filepath.Join(cfg.MediaRoot, "control"))
	if err != nil {
		log.Fatalf("creating control bot chat client: %v", err)
	}
	control := supervisor.NewControlBot(sup, chat, cfg.ControlAdminIDs, store)

	if err := control.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("control bot stopped: %v", err)
	}

	sup.Shutdown(context.Background())
}

func defaultWorkerPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "./worker"
	}
	return filepath.Join(filepath.Dir(exe), "worker")
}

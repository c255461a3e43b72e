// Command worker is the per-bot child process the supervisor forks: it reads
// its credentials from the environment the supervisor set at fork time and
// runs until SHUTDOWN arrives over IPC or the process is signalled.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ptyrelay/ptyrelay/internal/config"
	"github.com/ptyrelay/ptyrelay/internal/worker"
)

func main() {
	log.SetFlags(0)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[worker] config: %v", err)
	}

	token := os.Getenv("BOT_TOKEN")
	if token == "" {
		log.Fatalf("[worker] BOT_TOKEN is required")
	}
	index, err := strconv.Atoi(os.Getenv("BOT_INDEX"))
	if err != nil {
		log.Fatalf("[worker] BOT_INDEX is required and must be an integer: %v", err)
	}

	botID := config.BotID(index)
	log.SetPrefix("[worker " + botID + "] ")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	w, err := worker.New(worker.Options{Cfg: cfg, BotToken: token, BotIndex: index})
	if err != nil {
		log.Fatalf("assembling worker: %v", err)
	}

	if err := w.Run(ctx); err != nil {
		log.Printf("exiting: %v", err)
		os.Exit(1)
	}
}

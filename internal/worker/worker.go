// Package worker assembles one bot's runtime: the chat-API client, the PTY
// session manager, the renderer, the media watcher, and the command
// dispatcher, then bridges the whole thing to the supervisor over the IPC
// session built from this process's own stdio. The single-process wiring
// of one main assembling every subsystem is split here into the
// supervisor/worker pair §4.8-4.9 calls for.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/ptyrelay/ptyrelay/internal/access"
	"github.com/ptyrelay/ptyrelay/internal/chatapi"
	"github.com/ptyrelay/ptyrelay/internal/config"
	"github.com/ptyrelay/ptyrelay/internal/dispatcher"
	"github.com/ptyrelay/ptyrelay/internal/ipc"
	"github.com/ptyrelay/ptyrelay/internal/mediawatcher"
	"github.com/ptyrelay/ptyrelay/internal/ptysession"
	"github.com/ptyrelay/ptyrelay/internal/renderer"
	"github.com/ptyrelay/ptyrelay/internal/telegram"
	"github.com/ptyrelay/ptyrelay/internal/whisper"
)

// Options configures one worker process.
type Options struct {
	Cfg      *config.Config
	BotToken string
	BotIndex int
}

// Worker owns one bot's whole runtime for the process's lifetime.
type Worker struct {
	botID     string
	cfg       *config.Config
	startedAt time.Time

	chat     chatapi.API
	sessions *ptysession.Manager
	render   *renderer.Renderer
	watcher  *mediawatcher.Watcher
	dispatch *dispatcher.Dispatcher

	ipcSession *ipc.Session
	enc        *ipc.Encoder
	dec        *ipc.Decoder
}

// New assembles a Worker. It does not start receiving updates or IPC
// messages until Run is called.
func New(opts Options) (*Worker, error) {
	botID := config.BotID(opts.BotIndex)
	cfg := opts.Cfg

	if cfg.CleanMediaOnStart {
		if err := os.RemoveAll(cfg.MediaDir(botID)); err != nil {
			return nil, fmt.Errorf("worker %s: cleaning media dir: %w", botID, err)
		}
	}

	chat, err := telegram.New(opts.BotToken, cfg.MediaDir(botID))
	if err != nil {
		return nil, fmt.Errorf("worker %s: creating chat client: %w", botID, err)
	}

	w := &Worker{
		botID:     botID,
		cfg:       cfg,
		startedAt: time.Now(),
		chat:      chat,
		sessions:  ptysession.NewManager(ptysession.Options{
			ShellPath:      cfg.ShellPath,
			Rows:           cfg.Rows,
			Cols:           cfg.Cols,
			MaxOutputLines: cfg.MaxOutputLines,
			SessionTimeout: time.Duration(cfg.SessionTimeoutMs) * time.Millisecond,
		}),
		render: renderer.NewRenderer(""),
	}

	gate := access.New(cfg.AllowedUserIDs, cfg.AutoKill, func(chatID int64, text string) error {
		_, err := chat.SendMessage(context.Background(), chatID, text)
		return err
	}, func(code int) {
		w.sendIPC(ipc.KindError, ipc.ErrorPayload{Message: ipc.AutoKillReason})
		time.Sleep(50 * time.Millisecond) // let the IPC write land before the pipe closes
		os.Exit(code)
	})

	transcriber := whisper.New(cfg.TTSApiKey)

	w.dispatch = dispatcher.New(cfg, botID, w.sessions, w.render, chat, gate, transcriber)

	watcher, err := mediawatcher.New(mediawatcher.Options{
		Root:           cfg.MediaDir(botID),
		AllowedUserIDs: cfg.AllowedUserIDs,
		Send:           w.sendMedia,
	})
	if err != nil {
		return nil, fmt.Errorf("worker %s: starting media watcher: %w", botID, err)
	}
	w.watcher = watcher

	rwc := ipc.NewStdioPair(os.Stdin, os.Stdout)
	sess, err := ipc.NewWorkerSession(rwc, cfg.VerboseLogging)
	if err != nil {
		return nil, fmt.Errorf("worker %s: opening IPC session: %w", botID, err)
	}
	w.ipcSession = sess
	w.enc = ipc.NewEncoder(sess.Control)
	w.dec = ipc.NewDecoder(sess.Control)

	return w, nil
}

func (w *Worker) sendMedia(userID int64, path, caption string, kind mediawatcher.Kind) error {
	ctx := context.Background()
	switch kind {
	case mediawatcher.KindPhoto:
		_, err := w.chat.SendPhoto(ctx, userID, path, caption)
		return err
	case mediawatcher.KindAnimation:
		return w.chat.SendAnimation(ctx, userID, path, caption)
	case mediawatcher.KindVideo:
		return w.chat.SendVideo(ctx, userID, path, caption)
	case mediawatcher.KindVoice:
		return w.chat.SendVoice(ctx, userID, path, caption)
	case mediawatcher.KindAudio:
		return w.chat.SendAudio(ctx, userID, path, caption)
	default:
		return w.chat.SendDocument(ctx, userID, path, caption)
	}
}

// Run blocks until ctx is cancelled or a SHUTDOWN IPC message arrives,
// running the chat update loop, the IPC control loop, and (indirectly) the
// media watcher and idle sweeper in the background.
func (w *Worker) Run(ctx context.Context) error {
	defer w.shutdownComponents()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go w.ipcLoop(cancel)
	go w.updateLoop(ctx)

	info, err := w.chat.GetMe(ctx)
	if err != nil {
		w.sendIPC(ipc.KindError, ipc.ErrorPayload{Message: err.Error()})
		return fmt.Errorf("worker %s: get-me: %w", w.botID, err)
	}
	w.sendIPC(ipc.KindBotInfo, ipc.BotInfoPayload{FullName: info.FullName, Username: info.Username})
	w.sendIPC(ipc.KindReady, nil)

	if err := w.chat.Start(ctx); err != nil && ctx.Err() == nil {
		w.sendIPC(ipc.KindError, ipc.ErrorPayload{Message: err.Error()})
		return fmt.Errorf("worker %s: chat client stopped: %w", w.botID, err)
	}
	return nil
}

func (w *Worker) updateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-w.chat.Updates():
			if !ok {
				return
			}
			go w.dispatch.Dispatch(ctx, u)
		}
	}
}

// ipcLoop handles supervisor-originated control messages (§6 direction
// matrix: supervisor -> worker is SHUTDOWN and HEALTH_CHECK only).
func (w *Worker) ipcLoop(cancel context.CancelFunc) {
	for {
		msg, err := w.dec.Decode()
		if err != nil {
			return
		}
		switch msg.Kind {
		case ipc.KindShutdown:
			cancel()
			return
		case ipc.KindHealthCheck:
			w.sendIPC(ipc.KindHealthResponse, ipc.HealthResponsePayload{
				UptimeSeconds: int64(time.Since(w.startedAt).Seconds()),
				MemRSSBytes:   currentRSS(),
			})
		}
	}
}

func (w *Worker) sendIPC(kind ipc.Kind, payload any) {
	if err := w.enc.Encode(ipc.New(kind, w.botID, payload)); err != nil {
		log.Printf("[worker %s] ipc send %s: %v", w.botID, kind, err)
	}
}

func (w *Worker) shutdownComponents() {
	w.watcher.Stop()
	w.sessions.Shutdown()
	w.render.Close()
	_ = w.ipcSession.Close()
}

func currentRSS() int64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int64(m.Sys)
}

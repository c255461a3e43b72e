// Package mediawatcher fans files dropped into a bot's media directory out to
// every authorised chat user, then moves them into sent/. Grounded on
// Hyper-Int-OrcaBot's internal/drivesync/watcher.go (fsnotify wrapper with an
// in-flight dedup set), generalised from a debounced-event-channel consumer
// into a self-contained fan-out-and-move pipeline.
package mediawatcher

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Kind classifies a dropped file for the chat-API send method to use.
type Kind int

const (
	KindDocument Kind = iota
	KindPhoto
	KindAnimation
	KindVideo
	KindVoice
	KindAudio
)

var extKinds = map[string]Kind{
	".jpg":  KindPhoto,
	".jpeg": KindPhoto,
	".png":  KindPhoto,
	".gif":  KindAnimation,
	".mp4":  KindVideo,
	".mov":  KindVideo,
	".ogg":  KindVoice,
	".oga":  KindVoice,
	".mp3":  KindAudio,
	".wav":  KindAudio,
	".flac": KindAudio,
	".webp": KindDocument,
}

// Classify returns the Kind for path based on its extension, defaulting to
// KindDocument for anything unrecognised (including .webp, which the chat
// API can't send as a sticker/photo reliably and so travels as a document).
func Classify(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	if k, ok := extKinds[ext]; ok {
		return k
	}
	return KindDocument
}

// SendFunc delivers one file to one user; the caller supplies an
// implementation bound to the chat API.
type SendFunc func(userID int64, path, caption string, kind Kind) error

// Options configures a Watcher.
type Options struct {
	Root           string
	AllowedUserIDs []int64
	Send           SendFunc
	Grace          time.Duration // default 100ms
}

// Watcher watches Root non-recursively and fans newly-created regular files
// out to every allowed user, then moves them into Root/sent/.
type Watcher struct {
	root           string
	sentDir        string
	allowedUserIDs []int64
	send           SendFunc
	grace          time.Duration

	fsw *fsnotify.Watcher

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}

	stop    chan struct{}
	stopped chan struct{}
}

// New constructs a Watcher bound to opts.Root. The directory (and its sent/
// and received/ subdirectories) are created if absent.
func New(opts Options) (*Watcher, error) {
	if opts.Grace <= 0 {
		opts.Grace = 100 * time.Millisecond
	}

	for _, dir := range []string{opts.Root, filepath.Join(opts.Root, "sent"), filepath.Join(opts.Root, "received")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mediawatcher: creating %s: %w", dir, err)
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("mediawatcher: creating fsnotify watcher: %w", err)
	}
	if err := fsw.Add(opts.Root); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("mediawatcher: watching %s: %w", opts.Root, err)
	}

	w := &Watcher{
		root:           opts.Root,
		sentDir:        filepath.Join(opts.Root, "sent"),
		allowedUserIDs: opts.AllowedUserIDs,
		send:           opts.Send,
		grace:          opts.Grace,
		fsw:            fsw,
		inFlight:       make(map[string]struct{}),
		stop:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Stop closes the underlying fsnotify watcher and waits for the event loop
// to exit.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return
	default:
	}
	close(w.stop)
	w.fsw.Close()
	<-w.stopped
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[mediawatcher] %s: %v", w.root, err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	name := filepath.Base(event.Name)
	if name == "sent" || name == "received" {
		return
	}
	if filepath.Dir(event.Name) != w.root {
		return
	}

	w.inFlightMu.Lock()
	if _, busy := w.inFlight[event.Name]; busy {
		w.inFlightMu.Unlock()
		return
	}
	w.inFlight[event.Name] = struct{}{}
	w.inFlightMu.Unlock()

	go w.process(event.Name)
}

func (w *Watcher) process(path string) {
	defer func() {
		w.inFlightMu.Lock()
		delete(w.inFlight, path)
		w.inFlightMu.Unlock()
	}()

	time.Sleep(w.grace)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	kind := Classify(path)
	caption := filepath.Base(path)

	sentOK := false
	for _, userID := range w.allowedUserIDs {
		if err := w.send(userID, path, caption, kind); err != nil {
			log.Printf("[mediawatcher] send %s to %d: %v", caption, userID, err)
			continue
		}
		sentOK = true
	}
	if !sentOK {
		return
	}

	if err := w.moveToSent(path); err != nil {
		log.Printf("[mediawatcher] move %s to sent/: %v", caption, err)
	}
}

func (w *Watcher) moveToSent(path string) error {
	dest := filepath.Join(w.sentDir, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(dest)
		base := dest[:len(dest)-len(ext)]
		dest = fmt.Sprintf("%s_%d%s", base, time.Now().UnixMilli(), ext)
	}
	return os.Rename(path, dest)
}

// Package dispatcher routes inbound chat updates to PTY session operations.
// Built around a default handler demultiplexing on command name, over a
// chatapi.API-shaped update and a session-keyed extras map to support many
// concurrent per-user sessions instead of a single-user assumption.
package dispatcher

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ptyrelay/ptyrelay/internal/access"
	"github.com/ptyrelay/ptyrelay/internal/analyser"
	"github.com/ptyrelay/ptyrelay/internal/autorefresh"
	"github.com/ptyrelay/ptyrelay/internal/chatapi"
	"github.com/ptyrelay/ptyrelay/internal/config"
	"github.com/ptyrelay/ptyrelay/internal/ptysession"
	"github.com/ptyrelay/ptyrelay/internal/renderer"
	"github.com/ptyrelay/ptyrelay/internal/whisper"
)

// assistantCommands maps a session-open command to the literal it writes to
// the freshly spawned PTY; /xterm opens a bare shell with nothing written.
var assistantCommands = map[string]string{
	"/copilot": "copilot",
	"/claude":  "claude",
	"/gemini":  "gemini",
}

// noSessionCommands and sessionCommands are registered with the chat API on
// session close/open respectively (§6 "Startup menus").
var noSessionCommands = []chatapi.Command{
	{Name: "copilot", Description: "Start a GitHub Copilot CLI session"},
	{Name: "claude", Description: "Start a Claude Code session"},
	{Name: "gemini", Description: "Start a Gemini CLI session"},
	{Name: "xterm", Description: "Start a plain shell session"},
}

var sessionCommands = []chatapi.Command{
	{Name: "close", Description: "Close the current session"},
	{Name: "screen", Description: "Take a screenshot"},
	{Name: "urls", Description: "List discovered URLs"},
	{Name: "tab", Description: "Send Tab"},
	{Name: "enter", Description: "Send Enter"},
	{Name: "space", Description: "Send Space"},
	{Name: "delete", Description: "Send Delete"},
	{Name: "esc", Description: "Send Escape"},
	{Name: "arrowup", Description: "Send Up arrow"},
	{Name: "arrowdown", Description: "Send Down arrow"},
	{Name: "ctrlc", Description: "Send Ctrl+C"},
	{Name: "ctrlx", Description: "Send Ctrl+X"},
	{Name: "audiomode", Description: "Toggle voice input mode"},
}

// extras holds the per-session state the dispatcher layers on top of
// ptysession.Session: the analyser, the emulated screen, the auto-refresh
// controller, and the user's audio-input preference.
type extras struct {
	analyser  *analyser.Analyser
	screen    *renderer.Screen
	refresh   *autorefresh.Controller
	audioMode bool // true: write transcript to PTY; false (default): echo it back
}

// Dispatcher routes chat updates to PTY session operations. It is stateless
// per invocation beyond the extras map; never blocks on a PTY lock while
// awaiting chat-API I/O.
type Dispatcher struct {
	cfg      *config.Config
	sessions *ptysession.Manager
	render   *renderer.Renderer
	chat     chatapi.API
	gate     *access.Gate
	whisper  whisper.Transcriber
	botID    string

	mu     sync.Mutex
	extras map[ptysession.Key]*extras
}

// New constructs a Dispatcher bound to one worker's bot.
func New(cfg *config.Config, botID string, sessions *ptysession.Manager, render *renderer.Renderer, chat chatapi.API, gate *access.Gate, transcriber whisper.Transcriber) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		botID:    botID,
		sessions: sessions,
		render:   render,
		chat:     chat,
		gate:     gate,
		whisper:  transcriber,
		extras:   make(map[ptysession.Key]*extras),
	}
}

// Dispatch applies the access gate then routes u to the appropriate handler.
// Dispatch never blocks on a PTY lock while it itself performs chat-API I/O;
// each handler acquires only what it needs for the duration of one call.
func (d *Dispatcher) Dispatch(ctx context.Context, u chatapi.Update) {
	if !d.gate.Allow(u.ChatID, u.UserID) {
		return
	}

	switch u.Kind {
	case chatapi.UpdateCallback:
		d.handleCallback(ctx, u)
	case chatapi.UpdateVoice:
		d.handleVoice(ctx, u)
	default:
		d.handleText(ctx, u)
	}
}

func (d *Dispatcher) key(u chatapi.Update) ptysession.Key {
	return ptysession.Key{BotID: d.botID, UserID: *u.UserID}
}

func (d *Dispatcher) handleText(ctx context.Context, u chatapi.Update) {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		d.handlePlainText(ctx, u, text)
		return
	}

	fields := strings.Fields(text)
	cmd := fields[0]
	arg := ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	if assistant, ok := assistantCommands[cmd]; ok {
		d.openSession(ctx, u, assistant, arg)
		return
	}

	switch cmd {
	case "/xterm":
		d.openSession(ctx, u, "", arg)
	case "/close":
		d.closeSession(ctx, u)
	case "/screen":
		d.sendScreen(ctx, u)
	case "/urls":
		d.sendURLs(ctx, u)
	case "/killbot":
		d.killBot(ctx, u)
	case "/audiomode":
		d.toggleAudioMode(ctx, u)
	case "/tab":
		d.writeRaw(ctx, u, keyTab)
	case "/enter":
		d.writeRaw(ctx, u, keyEnter)
	case "/space":
		d.writeRaw(ctx, u, keySpace)
	case "/delete":
		d.writeRaw(ctx, u, keyDelete)
	case "/esc":
		d.writeRaw(ctx, u, keyEsc)
	case "/arrowup":
		d.writeRaw(ctx, u, keyArrowUp)
	case "/arrowdown":
		d.writeRaw(ctx, u, keyArrowDown)
	case "/ctrlc":
		d.writeRaw(ctx, u, keyCtrlC)
	case "/ctrlx":
		d.writeRaw(ctx, u, keyCtrlX)
	case "/ctrl":
		d.handleCtrl(ctx, u, arg)
	case "/1", "/2", "/3", "/4", "/5":
		d.writeRaw(ctx, u, []byte(cmd[1:]))
	default:
		// Unknown command: ignored silently.
	}
}

func (d *Dispatcher) handlePlainText(ctx context.Context, u chatapi.Update, text string) {
	key := d.key(u)
	if !d.sessions.Has(key) {
		d.reply(ctx, u.ChatID, "No active session. Open one with /copilot, /claude, /gemini, or /xterm.")
		return
	}

	text = strings.TrimPrefix(text, ".")
	text = analyser.Substitute(text, d.cfg.Placeholders, d.cfg.MediaDir(d.botID))

	if err := d.sessions.WriteRaw(key, []byte(text)); err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}
	time.Sleep(50 * time.Millisecond)
	if err := d.sessions.WriteRaw(key, []byte("\r")); err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}
	d.requestRefresh(ctx, key)
}

// sanitizeDir validates an optional working directory argument per §4.5: no
// shell metacharacters, and it must name an existing directory.
func sanitizeDir(dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if strings.ContainsAny(dir, ";&|`$()") {
		return "", fmt.Errorf("directory argument contains disallowed characters")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("directory %q does not exist", dir)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%q is not a directory", dir)
	}
	return dir, nil
}

func (d *Dispatcher) openSession(ctx context.Context, u chatapi.Update, assistantLiteral, dirArg string) {
	key := d.key(u)
	if d.sessions.Has(key) {
		d.reply(ctx, u.ChatID, "A session is already open. Use /close first.")
		return
	}

	dir, err := sanitizeDir(dirArg)
	if err != nil {
		d.reply(ctx, u.ChatID, fmt.Sprintf("Invalid directory: %v", err))
		return
	}

	ex := &extras{
		screen: renderer.NewScreen(d.cfg.Rows, d.cfg.Cols),
	}
	ex.analyser = analyser.New(nil, nil, analyser.Callbacks{
		OnBell:               func() { d.requestRefresh(ctx, key) },
		OnConfirmationPrompt: func() { d.notifyConfirmation(ctx, u.ChatID) },
		OnURLDiscovered:      func(url string) { d.notifyURL(ctx, u.ChatID, url) },
	})
	ex.refresh = autorefresh.New(time.Duration(d.cfg.ScreenRefreshIntervalMs)*time.Millisecond, d.cfg.ScreenRefreshMaxCount)

	d.mu.Lock()
	d.extras[key] = ex
	d.mu.Unlock()

	_, err = d.sessions.CreateSession(key, u.ChatID, dir, func(k ptysession.Key, chunk []byte) {
		d.onPTYData(k, chunk)
	})
	if err != nil {
		d.mu.Lock()
		delete(d.extras, key)
		d.mu.Unlock()
		d.reportError(ctx, u.ChatID, err)
		return
	}

	if sess, err := d.sessions.Get(key); err == nil {
		sess.SetRefreshCanceller(ex.refresh.Cancel)
	}

	if assistantLiteral != "" {
		if err := d.sessions.Write(key, assistantLiteral, true); err != nil {
			d.reportError(ctx, u.ChatID, err)
			return
		}
	}

	if err := d.chat.SetCommands(ctx, sessionCommands); err != nil {
		log.Printf("[dispatcher %s] set session commands: %v", d.botID, err)
	}

	// Short warm-up so the shell/assistant has produced its first prompt
	// before the opening screenshot is taken.
	time.Sleep(500 * time.Millisecond)
	d.sendScreen(ctx, u)

	if assistantLiteral == "copilot" {
		go d.writeStartupPromptAfterDelay(key, u.ChatID)
	}
}

func (d *Dispatcher) writeStartupPromptAfterDelay(key ptysession.Key, chatID int64) {
	time.Sleep(3 * time.Second)
	path := d.cfg.StartupPromptPath("copilot", d.botID)
	data, err := os.ReadFile(path)
	if err != nil {
		return // no persisted startup prompt; nothing to do
	}
	if err := d.sessions.Write(key, string(data), true); err != nil {
		log.Printf("[dispatcher %s] writing startup prompt: %v", d.botID, err)
	}
}

func (d *Dispatcher) closeSession(ctx context.Context, u chatapi.Update) {
	key := d.key(u)
	if err := d.sessions.Close(key); err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}

	d.mu.Lock()
	delete(d.extras, key)
	d.mu.Unlock()

	if err := d.chat.SetCommands(ctx, noSessionCommands); err != nil {
		log.Printf("[dispatcher %s] set no-session commands: %v", d.botID, err)
	}
	d.reply(ctx, u.ChatID, "Session closed.")
}

func (d *Dispatcher) writeRaw(ctx context.Context, u chatapi.Update, data []byte) {
	key := d.key(u)
	if !d.sessions.Has(key) {
		d.reply(ctx, u.ChatID, "No active session.")
		return
	}
	if err := d.sessions.WriteRaw(key, data); err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}
	d.requestRefresh(ctx, key)
}

func (d *Dispatcher) handleCtrl(ctx context.Context, u chatapi.Update, arg string) {
	arg = strings.TrimSpace(arg)
	if len(arg) != 1 {
		d.reply(ctx, u.ChatID, "Usage: /ctrl <single character>")
		return
	}
	b, ok := ctrlByte(arg[0])
	if !ok {
		d.reply(ctx, u.ChatID, fmt.Sprintf("No Ctrl mapping for %q", arg))
		return
	}
	d.writeRaw(ctx, u, []byte{b})
}

// screenKeyboard is the inline keyboard attached to every screenshot
// message, exercising the refresh_screen/num_1..3/key_esc callback branches
// in handleCallback (§4.5 "inline-keyboard callbacks").
func screenKeyboard() [][]chatapi.Button {
	return [][]chatapi.Button{
		{{Text: "↻", Data: "refresh_screen"}},
		{
			{Text: "1", Data: "num_1"},
			{Text: "2", Data: "num_2"},
			{Text: "3", Data: "num_3"},
		},
		{{Text: "Esc", Data: "key_esc"}},
	}
}

func (d *Dispatcher) sendScreen(ctx context.Context, u chatapi.Update) {
	key := d.key(u)
	snap, err := d.sessions.Snapshot(key)
	if err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}

	d.mu.Lock()
	ex := d.extras[key]
	d.mu.Unlock()
	if ex == nil {
		d.reply(ctx, u.ChatID, "No active session.")
		return
	}
	ex.screen.Process(snap.Data)

	png, err := d.render.Render(ctx, ex.screen, d.cfg.FontSize)
	if err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}

	path, err := writeTempPNG(d.cfg.MediaDir(d.botID), png)
	if err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}
	defer os.Remove(path)

	msgID, err := d.chat.SendPhotoWithKeyboard(ctx, u.ChatID, path, "", screenKeyboard())
	if err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}

	if sess, err := d.sessions.Get(key); err == nil {
		hash := fmt.Sprintf("%x", ex.screen.Hash())
		sess.SetLastScreenshot(msgID, hash)
	}
}

func (d *Dispatcher) sendURLs(ctx context.Context, u chatapi.Update) {
	key := d.key(u)
	d.mu.Lock()
	ex := d.extras[key]
	d.mu.Unlock()
	if ex == nil {
		d.reply(ctx, u.ChatID, "No active session.")
		return
	}
	urls := ex.analyser.URLs()
	if len(urls) == 0 {
		d.reply(ctx, u.ChatID, "No URLs discovered yet.")
		return
	}
	d.reply(ctx, u.ChatID, strings.Join(urls, "\n"))
}

func (d *Dispatcher) killBot(ctx context.Context, u chatapi.Update) {
	d.reply(ctx, u.ChatID, "Shutting down.")
	go func() {
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()
}

func (d *Dispatcher) toggleAudioMode(ctx context.Context, u chatapi.Update) {
	key := d.key(u)
	d.mu.Lock()
	ex := d.extras[key]
	if ex != nil {
		ex.audioMode = !ex.audioMode
	}
	d.mu.Unlock()
	if ex == nil {
		d.reply(ctx, u.ChatID, "No active session.")
		return
	}
	if ex.audioMode {
		d.reply(ctx, u.ChatID, "Audio mode: voice messages are written to the session.")
	} else {
		d.reply(ctx, u.ChatID, "Audio mode: voice messages are echoed back as text.")
	}
}

func (d *Dispatcher) handleVoice(ctx context.Context, u chatapi.Update) {
	if u.Voice == nil {
		return
	}

	dir := d.cfg.AudioTmpDir(d.botID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}
	path := fmt.Sprintf("%s/%s.ogg", dir, u.Voice.FileID)
	if err := d.chat.DownloadFile(ctx, u.Voice.FileID, path); err != nil {
		d.reportError(ctx, u.ChatID, err)
		return
	}
	defer os.Remove(path)

	text, err := d.whisper.Transcribe(path)
	if err != nil {
		d.reply(ctx, u.ChatID, transcriptionErrorMessage(whisper.KindOf(err)))
		return
	}

	key := d.key(u)
	d.mu.Lock()
	ex := d.extras[key]
	d.mu.Unlock()

	if ex != nil && ex.audioMode && d.sessions.Has(key) {
		if err := d.sessions.Write(key, text, true); err != nil {
			d.reportError(ctx, u.ChatID, err)
			return
		}
		d.requestRefresh(ctx, key)
		return
	}
	d.reply(ctx, u.ChatID, text)
}

func transcriptionErrorMessage(kind whisper.ErrorKind) string {
	switch kind {
	case whisper.ErrKindNoKey:
		return "Voice transcription is not configured."
	case whisper.ErrKindInvalidKey:
		return "Voice transcription failed: invalid API key."
	case whisper.ErrKindUnsupportedFormat:
		return "Voice transcription failed: unsupported audio format."
	case whisper.ErrKindFileTooLarge:
		return "Voice transcription failed: file too large."
	case whisper.ErrKindRateLimited:
		return "Voice transcription failed: rate limited, try again shortly."
	case whisper.ErrKindQuotaExceeded:
		return "Voice transcription failed: quota exceeded."
	case whisper.ErrKindDownloadFailed:
		return "Voice transcription failed: could not download the audio."
	default:
		return "Voice transcription failed."
	}
}

func (d *Dispatcher) handleCallback(ctx context.Context, u chatapi.Update) {
	defer func() {
		if err := d.chat.AnswerCallbackQuery(ctx, u.CallbackID); err != nil {
			log.Printf("[dispatcher %s] answer callback: %v", d.botID, err)
		}
	}()

	key := d.key(u)
	switch u.CallbackData {
	case "refresh_screen":
		d.refreshClickedMessage(ctx, u)
	case "num_1":
		d.writeRawNoReply(ctx, key, []byte("1"))
	case "num_2":
		d.writeRawNoReply(ctx, key, []byte("2"))
	case "num_3":
		d.writeRawNoReply(ctx, key, []byte("3"))
	case "key_esc":
		d.writeRawNoReply(ctx, key, keyEsc)
	}
}

func (d *Dispatcher) writeRawNoReply(ctx context.Context, key ptysession.Key, data []byte) {
	if !d.sessions.Has(key) {
		return
	}
	if err := d.sessions.WriteRaw(key, data); err != nil {
		log.Printf("[dispatcher %s] write: %v", d.botID, err)
		return
	}
	d.requestRefresh(ctx, key)
}

// refreshClickedMessage re-renders and edits the message the callback was
// attached to, independent of whichever message id the session currently has
// stored as "under edit".
func (d *Dispatcher) refreshClickedMessage(ctx context.Context, u chatapi.Update) {
	key := d.key(u)
	snap, err := d.sessions.Snapshot(key)
	if err != nil {
		return
	}
	d.mu.Lock()
	ex := d.extras[key]
	d.mu.Unlock()
	if ex == nil {
		return
	}
	ex.screen.Process(snap.Data)

	png, err := d.render.Render(ctx, ex.screen, d.cfg.FontSize)
	if err != nil {
		return
	}
	path, err := writeTempPNG(d.cfg.MediaDir(d.botID), png)
	if err != nil {
		return
	}
	defer os.Remove(path)

	_ = d.chat.EditMessageMedia(ctx, u.ChatID, u.CallbackMessageID, path, screenKeyboard())
}

// requestRefresh wires the auto-refresh controller's hooks to this session's
// screen, renderer, and chat-API edit call, then asks it to run.
func (d *Dispatcher) requestRefresh(ctx context.Context, key ptysession.Key) {
	d.mu.Lock()
	ex := d.extras[key]
	d.mu.Unlock()
	if ex == nil {
		return
	}
	sess, err := d.sessions.Get(key)
	if err != nil {
		return
	}

	ex.refresh.RequestRefresh(ctx, autorefresh.Hooks{
		Hash: func() string {
			snap, err := d.sessions.Snapshot(key)
			if err != nil {
				return ""
			}
			ex.screen.Process(snap.Data)
			return fmt.Sprintf("%x", ex.screen.Hash())
		},
		LastHash: func() string {
			return sess.LastScreenshotBufferHash
		},
		SetLastHash: func(hash string) {
			sess.SetLastScreenshot(sess.LastScreenshotMsgID, hash)
		},
		Render: func(ctx context.Context) ([]byte, error) {
			return d.render.Render(ctx, ex.screen, d.cfg.FontSize)
		},
		Edit: func(ctx context.Context, png []byte) error {
			path, err := writeTempPNG(d.cfg.MediaDir(d.botID), png)
			if err != nil {
				return err
			}
			defer os.Remove(path)
			return d.chat.EditMessageMedia(ctx, sess.ChatID, sess.LastScreenshotMsgID, path, screenKeyboard())
		},
	})
}

// onPTYData is the Manager's DataFunc: it feeds every chunk to the session's
// analyser. The emulator's own Screen is fed lazily from Snapshot() instead,
// since render calls always want the full retained buffer, not an
// incremental diff.
func (d *Dispatcher) onPTYData(key ptysession.Key, chunk []byte) {
	d.mu.Lock()
	ex := d.extras[key]
	d.mu.Unlock()
	if ex == nil {
		return
	}
	ex.analyser.Feed(chunk)
}

func (d *Dispatcher) notifyConfirmation(ctx context.Context, chatID int64) {
	d.reply(ctx, chatID, "Confirmation prompt detected.")
}

func (d *Dispatcher) notifyURL(ctx context.Context, chatID int64, url string) {
	d.reply(ctx, chatID, fmt.Sprintf("Discovered URL: %s", url))
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string) {
	msgID, err := d.chat.SendMessage(ctx, chatID, text)
	if err != nil {
		log.Printf("[dispatcher %s] send message: %v", d.botID, err)
		return
	}
	d.autoDelete(ctx, chatID, msgID)
}

func (d *Dispatcher) reportError(ctx context.Context, chatID int64, err error) {
	log.Printf("[dispatcher %s] %v", d.botID, err)
	d.reply(ctx, chatID, "Something went wrong. Please try again.")
}

// autoDelete removes a transient confirmation message after
// messageDeleteTimeoutMs, when non-zero (§4.5 "Transient confirmation
// messages are auto-deleted").
func (d *Dispatcher) autoDelete(ctx context.Context, chatID int64, msgID int) {
	if d.cfg.MessageDeleteTimeoutMs <= 0 {
		return
	}
	delay := time.Duration(d.cfg.MessageDeleteTimeoutMs) * time.Millisecond
	go func() {
		time.Sleep(delay)
		_ = d.chat.DeleteMessage(context.Background(), chatID, msgID)
	}()
}

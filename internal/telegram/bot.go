// Package telegram implements chatapi.API against the Telegram Bot API via
// github.com/go-telegram/bot: the long-poll wiring, the per-token
// cross-process flock (so two worker processes never fight over one
// token), and the HTML-escaping/formatting helpers in internal/format are
// kept; the conversation-state machinery (active sessions, pending
// AskUser promises, remote-fallback routing) is dropped because this
// system routes updates through the dispatcher, not a single-shot
// question/answer loop.
package telegram

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/gofrs/flock"

	"github.com/ptyrelay/ptyrelay/internal/chatapi"
	"github.com/ptyrelay/ptyrelay/internal/format"
)

// Client wraps a go-telegram/bot instance and satisfies chatapi.API.
type Client struct {
	bot   *bot.Bot
	token string

	updates chan chatapi.Update

	tmpDir string
}

// New constructs a Client for token. The underlying bot.New checks the token
// against Telegram; updates are not received until Start is called.
func New(token, tmpDir string) (*Client, error) {
	c := &Client{
		token:   token,
		updates: make(chan chatapi.Update, 256),
		tmpDir:  tmpDir,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(c.handleUpdate),
		bot.WithErrorsHandler(func(err error) {
			if err == nil {
				return
			}
			log.Printf("[telegram] error: %v", err)
		}),
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram: creating bot: %w", err)
	}
	c.bot = b
	return c, nil
}

// Updates implements chatapi.API.
func (c *Client) Updates() <-chan chatapi.Update { return c.updates }

// lockPath returns a per-token cross-process lock file, so two processes
// (e.g. a restarted worker racing its predecessor's slow shutdown) never long-
// poll the same token simultaneously and trigger a Telegram 409 conflict.
func lockPath(token string) string {
	sum := sha256.Sum256([]byte(token))
	id := hex.EncodeToString(sum[:8])
	return filepath.Join(os.TempDir(), "ptyrelay", fmt.Sprintf("tg-bot-%s.lock", id))
}

// Start acquires the per-token lock and runs the long-poll loop until ctx is
// cancelled.
func (c *Client) Start(ctx context.Context) error {
	lp := lockPath(c.token)
	if err := os.MkdirAll(filepath.Dir(lp), 0o755); err != nil {
		return fmt.Errorf("telegram: creating lock dir: %w", err)
	}

	fl := flock.New(lp)
	var locked bool
	var err error
	for i := 0; i < 10; i++ {
		locked, err = fl.TryLock()
		if locked || err != nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("telegram: acquiring lock %s: %w", lp, err)
	}
	if !locked {
		return fmt.Errorf("telegram: token already in use by another process (lock %s held)", lp)
	}
	defer fl.Unlock()

	c.bot.Start(ctx)
	return nil
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		c.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.Voice != nil:
		c.handleVoice(update.Message)
	case update.Message != nil:
		c.handleMessage(update.Message)
	}
}

func (c *Client) handleMessage(m *models.Message) {
	u := chatapi.Update{
		Kind:      chatapi.UpdateText,
		ChatID:    m.Chat.ID,
		Text:      m.Text,
		MessageID: m.ID,
	}
	if m.From != nil {
		id := m.From.ID
		u.UserID = &id
		u.Username = m.From.Username
	}
	c.updates <- u
}

func (c *Client) handleVoice(m *models.Message) {
	u := chatapi.Update{
		Kind:      chatapi.UpdateVoice,
		ChatID:    m.Chat.ID,
		MessageID: m.ID,
		Voice: &chatapi.Voice{
			FileID:   m.Voice.FileID,
			Duration: m.Voice.Duration,
		},
	}
	if m.From != nil {
		id := m.From.ID
		u.UserID = &id
		u.Username = m.From.Username
	}
	c.updates <- u
}

func (c *Client) handleCallback(cb *models.CallbackQuery) {
	u := chatapi.Update{
		Kind:         chatapi.UpdateCallback,
		CallbackID:   cb.ID,
		CallbackData: cb.Data,
	}
	id := cb.From.ID
	u.UserID = &id
	u.Username = cb.From.Username
	if cb.Message.Message != nil {
		u.ChatID = cb.Message.Message.Chat.ID
		u.CallbackMessageID = cb.Message.Message.ID
	}
	c.updates <- u
}

// SendMessage implements chatapi.API.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// buildKeyboard converts a chatapi keyboard into the models type the
// underlying library's Params structs expect, or nil if keyboard is empty
// (the library treats a nil ReplyMarkup as "no keyboard").
func buildKeyboard(keyboard [][]chatapi.Button) *models.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]models.InlineKeyboardButton, len(keyboard))
	for i, row := range keyboard {
		btns := make([]models.InlineKeyboardButton, len(row))
		for j, b := range row {
			btns[j] = models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data}
		}
		rows[i] = btns
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// SendMessageWithKeyboard implements chatapi.API.
func (c *Client) SendMessageWithKeyboard(ctx context.Context, chatID int64, text string, keyboard [][]chatapi.Button) (int, error) {
	msg, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        format.ToTelegramHTML(text),
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: buildKeyboard(keyboard),
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendPhoto implements chatapi.API.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, path, caption string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("telegram: opening %s: %w", path, err)
	}
	defer f.Close()

	msg, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:    chatID,
		Photo:     &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption:   caption,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendPhotoWithKeyboard implements chatapi.API.
func (c *Client) SendPhotoWithKeyboard(ctx context.Context, chatID int64, path, caption string, keyboard [][]chatapi.Button) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("telegram: opening %s: %w", path, err)
	}
	defer f.Close()

	msg, err := c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:      chatID,
		Photo:       &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption:     caption,
		ParseMode:   models.ParseModeHTML,
		ReplyMarkup: buildKeyboard(keyboard),
	})
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// SendDocument implements chatapi.API.
func (c *Client) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: opening %s: %w", path, err)
	}
	defer f.Close()
	_, err = c.bot.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption:  caption,
	})
	return err
}

// SendAnimation implements chatapi.API.
func (c *Client) SendAnimation(ctx context.Context, chatID int64, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: opening %s: %w", path, err)
	}
	defer f.Close()
	_, err = c.bot.SendAnimation(ctx, &bot.SendAnimationParams{
		ChatID:    chatID,
		Animation: &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption:   caption,
	})
	return err
}

// SendVideo implements chatapi.API.
func (c *Client) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: opening %s: %w", path, err)
	}
	defer f.Close()
	_, err = c.bot.SendVideo(ctx, &bot.SendVideoParams{
		ChatID:  chatID,
		Video:   &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption: caption,
	})
	return err
}

// SendVoice implements chatapi.API.
func (c *Client) SendVoice(ctx context.Context, chatID int64, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: opening %s: %w", path, err)
	}
	defer f.Close()
	_, err = c.bot.SendVoice(ctx, &bot.SendVoiceParams{
		ChatID:  chatID,
		Voice:   &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption: caption,
	})
	return err
}

// SendAudio implements chatapi.API.
func (c *Client) SendAudio(ctx context.Context, chatID int64, path, caption string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("telegram: opening %s: %w", path, err)
	}
	defer f.Close()
	_, err = c.bot.SendAudio(ctx, &bot.SendAudioParams{
		ChatID:  chatID,
		Audio:   &models.InputFileUpload{Filename: filepath.Base(path), Data: f},
		Caption: caption,
	})
	return err
}

// EditMessageMedia implements chatapi.API. Used by the auto-refresh controller
// to push a fresh screenshot into the message it owns.
func (c *Client) EditMessageMedia(ctx context.Context, chatID int64, messageID int, photoPath string, keyboard [][]chatapi.Button) error {
	f, err := os.Open(photoPath)
	if err != nil {
		return fmt.Errorf("telegram: opening %s: %w", photoPath, err)
	}
	defer f.Close()

	_, err = c.bot.EditMessageMedia(ctx, &bot.EditMessageMediaParams{
		ChatID:    chatID,
		MessageID: messageID,
		Media: &models.InputMediaPhoto{
			Media: &models.InputFileUpload{Filename: filepath.Base(photoPath), Data: f},
		},
		ReplyMarkup: buildKeyboard(keyboard),
	})
	return err
}

// EditMessageText implements chatapi.API.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := c.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      format.ToTelegramHTML(text),
		ParseMode: models.ParseModeHTML,
	})
	return err
}

// DeleteMessage implements chatapi.API. A "message to delete not found" error
// (the message was already gone, e.g. deleted by the user) is swallowed per
// the error-handling design's "message-delete 404 is silent" rule.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	_, err := c.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{ChatID: chatID, MessageID: messageID})
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "not found") {
		return nil
	}
	return err
}

// AnswerCallbackQuery implements chatapi.API.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	_, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: callbackID})
	return err
}

// GetFileURL implements chatapi.API.
func (c *Client) GetFileURL(ctx context.Context, fileID string) (string, error) {
	file, err := c.bot.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("telegram: get file: %w", err)
	}
	return fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.token, file.FilePath), nil
}

// DownloadFile implements chatapi.API, saving fileID's content to destPath.
func (c *Client) DownloadFile(ctx context.Context, fileID, destPath string) error {
	url, err := c.GetFileURL(ctx, fileID)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: downloading file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram: download failed: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(destPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, resp.Body)
	return err
}

// SetCommands implements chatapi.API.
func (c *Client) SetCommands(ctx context.Context, commands []chatapi.Command) error {
	cmds := make([]models.BotCommand, len(commands))
	for i, cmd := range commands {
		cmds[i] = models.BotCommand{Command: strings.TrimPrefix(cmd.Name, "/"), Description: cmd.Description}
	}
	_, err := c.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: cmds})
	return err
}

// GetMe implements chatapi.API.
func (c *Client) GetMe(ctx context.Context) (chatapi.BotInfo, error) {
	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return chatapi.BotInfo{}, err
	}
	return chatapi.BotInfo{
		FullName: strings.TrimSpace(me.FirstName + " " + me.LastName),
		Username: me.Username,
	}, nil
}

package supervisor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ptyrelay/ptyrelay/internal/access"
	"github.com/ptyrelay/ptyrelay/internal/chatapi"
	"github.com/ptyrelay/ptyrelay/internal/config"
	"github.com/ptyrelay/ptyrelay/internal/telegram"
)

// validateToken probes the chat API with token before the supervisor commits
// to persisting and forking a worker for it (§4.8 "/addbot must validate the
// token against the chat API before persisting").
func validateToken(ctx context.Context, token string) bool {
	client, err := telegram.New(token, "")
	if err != nil {
		return false
	}
	_, err = client.GetMe(ctx)
	return err == nil
}

var controlCommands = []chatapi.Command{
	{Name: "status", Description: "Show every bot's status"},
	{Name: "start", Description: "Start a bot: /start bot-0"},
	{Name: "stop", Description: "Stop a bot: /stop bot-0"},
	{Name: "restart", Description: "Restart a bot: /restart bot-0"},
	{Name: "stopall", Description: "Stop every bot"},
	{Name: "startall", Description: "Start every bot"},
	{Name: "restartall", Description: "Restart every bot"},
	{Name: "addbot", Description: "Add a bot: /addbot <token>"},
	{Name: "removebot", Description: "Remove a bot: /removebot bot-0"},
	{Name: "reload", Description: "Reload persisted configuration"},
	{Name: "logs", Description: "Show a bot's recent log lines: /logs bot-0"},
	{Name: "health", Description: "Health-check a bot: /health bot-0"},
	{Name: "uptime", Description: "Show every bot's uptime"},
	{Name: "shutdown", Description: "Shut down the supervisor"},
	{Name: "help", Description: "List commands"},
}

// ControlBot is the admin-facing chat interface onto a Supervisor (§4.8).
type ControlBot struct {
	sup   *Supervisor
	chat  chatapi.API
	gate  *access.Gate
	store *config.Store
}

// NewControlBot constructs a ControlBot bound to chat, gated by
// controlAdminIDs. store persists /addbot and /removebot edits to the same
// environment file the supervisor loaded (§4.9).
func NewControlBot(sup *Supervisor, chat chatapi.API, controlAdminIDs []int64, store *config.Store) *ControlBot {
	gate := access.New(controlAdminIDs, false, func(chatID int64, text string) error {
		_, err := chat.SendMessage(context.Background(), chatID, text)
		return err
	}, func(int) {})
	return &ControlBot{sup: sup, chat: chat, gate: gate, store: store}
}

// Run starts receiving and dispatching admin commands until ctx is cancelled.
func (c *ControlBot) Run(ctx context.Context) error {
	if err := c.chat.SetCommands(ctx, controlCommands); err != nil {
		log.Printf("[controlbot] set commands: %v", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-c.chat.Updates():
				if !ok {
					return
				}
				go c.handle(ctx, u)
			}
		}
	}()

	return c.chat.Start(ctx)
}

func (c *ControlBot) handle(ctx context.Context, u chatapi.Update) {
	if u.Kind == chatapi.UpdateCallback {
		c.handleCallback(ctx, u)
		return
	}
	if u.Kind != chatapi.UpdateText {
		return
	}
	if !c.gate.Allow(u.ChatID, u.UserID) {
		return
	}

	fields := strings.Fields(strings.TrimSpace(u.Text))
	if len(fields) == 0 {
		return
	}
	cmd, arg := fields[0], ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/status":
		c.sendStatus(ctx, u.ChatID)
	case "/start":
		c.replyErr(ctx, u.ChatID, c.sup.StartBot(ctx, arg))
	case "/stop":
		c.replyErr(ctx, u.ChatID, c.sup.StopBot(ctx, arg))
	case "/restart":
		c.replyErr(ctx, u.ChatID, c.sup.RestartBot(ctx, arg))
	case "/stopall":
		c.forEachBot(ctx, u.ChatID, c.sup.StopBot)
	case "/startall":
		c.forEachBot(ctx, u.ChatID, c.sup.StartBot)
	case "/restartall":
		c.forEachBot(ctx, u.ChatID, c.sup.RestartBot)
	case "/addbot":
		c.addBot(ctx, u.ChatID, arg)
	case "/removebot":
		c.removeBot(ctx, u.ChatID, arg)
	case "/reload":
		c.reply(ctx, u.ChatID, "No action taken. Token changes are picked up by the reconciliation loop, which runs only when BOT_TOKEN_MONITOR_INTERVAL is set.")
	case "/logs":
		c.logs(ctx, u.ChatID, arg)
	case "/health":
		ok := c.sup.HealthCheck(ctx, arg)
		c.reply(ctx, u.ChatID, fmt.Sprintf("%s: healthy=%v", arg, ok))
	case "/uptime":
		c.reply(ctx, u.ChatID, c.uptimeText())
	case "/shutdown":
		c.reply(ctx, u.ChatID, "Shutting down every bot.")
		c.sup.Shutdown(ctx)
	case "/help":
		c.reply(ctx, u.ChatID, helpText())
	}
}

func (c *ControlBot) handleCallback(ctx context.Context, u chatapi.Update) {
	defer func() { _ = c.chat.AnswerCallbackQuery(ctx, u.CallbackID) }()
	if !c.gate.Allow(u.ChatID, u.UserID) {
		return
	}
	parts := strings.SplitN(u.CallbackData, ":", 2)
	if len(parts) != 2 {
		return
	}
	action, botID := parts[0], parts[1]
	switch action {
	case "start":
		c.replyErr(ctx, u.ChatID, c.sup.StartBot(ctx, botID))
	case "stop":
		c.replyErr(ctx, u.ChatID, c.sup.StopBot(ctx, botID))
	case "restart":
		c.replyErr(ctx, u.ChatID, c.sup.RestartBot(ctx, botID))
	}
}

func (c *ControlBot) forEachBot(ctx context.Context, chatID int64, op func(context.Context, string) error) {
	for _, wp := range c.sup.List() {
		if err := op(ctx, wp.BotID); err != nil {
			c.reply(ctx, chatID, fmt.Sprintf("%s: %v", wp.BotID, err))
		}
	}
}

func (c *ControlBot) addBot(ctx context.Context, chatID int64, token string) {
	if token == "" {
		c.reply(ctx, chatID, "Usage: /addbot <token>")
		return
	}
	if !validateToken(ctx, token) {
		c.reply(ctx, chatID, "That token was rejected by the chat API.")
		return
	}
	if err := c.store.AddBotToken(token); err != nil {
		c.reply(ctx, chatID, fmt.Sprintf("Could not persist token: %v", err))
		return
	}
	wp := c.sup.AddBot(ctx, token)
	c.reply(ctx, chatID, fmt.Sprintf("Added %s.", wp.BotID))
}

func (c *ControlBot) removeBot(ctx context.Context, chatID int64, botID string) {
	var index = -1
	for _, wp := range c.sup.List() {
		if wp.BotID == botID {
			index = wp.Index
			break
		}
	}
	if index < 0 {
		c.reply(ctx, chatID, fmt.Sprintf("No such bot %s.", botID))
		return
	}
	if err := c.sup.RemoveBot(ctx, botID); err != nil {
		c.reply(ctx, chatID, err.Error())
		return
	}
	if err := c.store.RemoveBotToken(index); err != nil {
		c.reply(ctx, chatID, fmt.Sprintf("Removed from the fleet but could not persist: %v", err))
		return
	}
	c.reply(ctx, chatID, fmt.Sprintf("Removed %s.", botID))
}

func (c *ControlBot) logs(ctx context.Context, chatID int64, botID string) {
	for _, wp := range c.sup.List() {
		if wp.BotID != botID {
			continue
		}
		snap := wp.Snapshot()
		if len(snap.Log) == 0 {
			c.reply(ctx, chatID, fmt.Sprintf("%s: no log lines yet.", botID))
			return
		}
		c.reply(ctx, chatID, strings.Join(snap.Log, "\n"))
		return
	}
	c.reply(ctx, chatID, fmt.Sprintf("No such bot %s.", botID))
}

// sendStatus sends one inline-keyboard message per worker, each carrying its
// current status, pid, and uptime plus start/stop/restart buttons (§8
// scenario 8, §4.8 ControlBot).
func (c *ControlBot) sendStatus(ctx context.Context, chatID int64) {
	workers := c.sup.List()
	if len(workers) == 0 {
		c.reply(ctx, chatID, "No bots configured.")
		return
	}
	now := time.Now()
	for _, wp := range workers {
		snap := wp.Snapshot()
		uptime := "not running"
		if snap.StartTime != nil {
			uptime = now.Sub(*snap.StartTime).Round(time.Second).String()
		}
		text := fmt.Sprintf("%s [%s]\npid=%d token=%s\nuptime=%s",
			snap.BotID, snap.Status, snap.PID, snap.MaskedToken, uptime)
		keyboard := [][]chatapi.Button{
			{
				{Text: "Start", Data: "start:" + snap.BotID},
				{Text: "Stop", Data: "stop:" + snap.BotID},
				{Text: "Restart", Data: "restart:" + snap.BotID},
			},
		}
		if _, err := c.chat.SendMessageWithKeyboard(ctx, chatID, text, keyboard); err != nil {
			log.Printf("[controlbot] send status for %s: %v", snap.BotID, err)
		}
	}
}

func (c *ControlBot) uptimeText() string {
	var sb strings.Builder
	now := time.Now()
	for _, wp := range c.sup.List() {
		snap := wp.Snapshot()
		if snap.StartTime == nil {
			sb.WriteString(fmt.Sprintf("%s: not running\n", snap.BotID))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: up %s\n", snap.BotID, now.Sub(*snap.StartTime).Round(time.Second)))
	}
	return sb.String()
}

func (c *ControlBot) reply(ctx context.Context, chatID int64, text string) {
	if _, err := c.chat.SendMessage(ctx, chatID, text); err != nil {
		log.Printf("[controlbot] send message: %v", err)
	}
}

func (c *ControlBot) replyErr(ctx context.Context, chatID int64, err error) {
	if err != nil {
		c.reply(ctx, chatID, err.Error())
		return
	}
	c.reply(ctx, chatID, "OK.")
}

func helpText() string {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, cmd := range controlCommands {
		sb.WriteString(fmt.Sprintf("/%s — %s\n", cmd.Name, cmd.Description))
	}
	return sb.String()
}

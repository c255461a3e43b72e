// Package access implements the pre-handler authorisation check shared by
// the worker's command dispatcher and the supervisor's control bot: reject
// updates from unrecognised users, and optionally kill the process on an
// unauthorised attempt. Grounded on the teacher's conflict/authorisation
// branches in core/internal/telegram/bot.go, generalised into a standalone,
// reusable predicate instead of an inline check in the update handler.
package access

import (
	"fmt"
	"time"
)

// ReplyFunc sends text back to chatID; implementations bind this to the chat
// API's send-message call.
type ReplyFunc func(chatID int64, text string) error

// ExitFunc terminates the process with the given code.
type ExitFunc func(code int)

// Gate enforces an allow-list of user ids, with an optional "kill the
// process" response to unauthorised access instead of merely denying it.
type Gate struct {
	allowed   map[int64]struct{}
	autoKill  bool
	reply     ReplyFunc
	exit      ExitFunc
	exitDelay time.Duration
}

// New constructs a Gate. exit is only ever invoked if autoKill is true.
func New(allowedUserIDs []int64, autoKill bool, reply ReplyFunc, exit ExitFunc) *Gate {
	allowed := make(map[int64]struct{}, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = struct{}{}
	}
	return &Gate{
		allowed:   allowed,
		autoKill:  autoKill,
		reply:     reply,
		exit:      exit,
		exitDelay: time.Second,
	}
}

// Allow reports whether the update should be handled. userID is nil when the
// update carries no identifiable sender.
func (g *Gate) Allow(chatID int64, userID *int64) bool {
	if userID == nil {
		g.reply(chatID, "Unable to identify you. This command requires a known user id.")
		return false
	}

	if _, ok := g.allowed[*userID]; ok {
		return true
	}

	if g.autoKill {
		g.reply(chatID, "Unauthorised access detected. Shutting down.")
		go func(id int64) {
			time.Sleep(g.exitDelay)
			g.exit(1)
		}(*userID)
		return false
	}

	g.reply(chatID, fmt.Sprintf("Access denied. User id %d is not authorised.", *userID))
	return false
}

// IsAllowed reports whether userID is in the allow-list, without sending any
// reply or triggering autoKill. Useful for admin-only branches inside an
// already-authorised handler.
func (g *Gate) IsAllowed(userID int64) bool {
	_, ok := g.allowed[userID]
	return ok
}

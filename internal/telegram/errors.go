package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/go-telegram/bot"
)

// Cause classifies a failed delivery
type Cause string

const (
	// CauseBlocked means the chat blocked the bot or no longer exists.
	CauseBlocked Cause = "blocked"
	// CauseTransient covers rate limits, timeouts and network errors.
	CauseTransient Cause = "transient"
	CauseOther     Cause = "other"
)

// SendError is returned by Send and ReplyTo when a message was not delivered
type SendError struct {
	Cause Cause
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("telegram send (%s): %v", e.Cause, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// IsBlocked reports whether err is a delivery failure caused by an
// unreachable recipient.
func IsBlocked(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Cause == CauseBlocked
}

func newSendError(err error) *SendError {
	return &SendError{Cause: classify(err), Err: err}
}

// classify maps a delivery error to its cause. Apart from ErrorForbidden the
// bot library reports API failures as
// "error response from telegram for method <m>, <code> <description>".
func classify(err error) Cause {
	if errors.Is(err, bot.ErrorForbidden) {
		return CauseBlocked
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, " 400 ") {
		if strings.Contains(msg, "chat not found") || strings.Contains(msg, "user is deactivated") {
			return CauseBlocked
		}
		return CauseOther
	}

	if strings.Contains(msg, " 429 ") || strings.Contains(msg, "too many requests") {
		return CauseTransient
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CauseTransient
	}

	return CauseOther
}

package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Message is a one-shot notice shown on the next rendered page.
type Message struct {
	Level Level  `json:"level"`
	Text  string `json:"text"`
}

const (
	flashCookie     = "flash"
	pendingFlashKey = "web.flash.pending"
)

// AddFlash queues a message for the next page the client renders, which is
// either the page rendered by this request or the target of a redirect.
func AddFlash(c echo.Context, level Level, text string) {
	pending, _ := c.Get(pendingFlashKey).([]Message)
	pending = append(pending, Message{Level: level, Text: text})
	c.Set(pendingFlashKey, pending)

	all := append(incomingFlashes(c), pending...)
	data, err := json.Marshal(all)
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString(data),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// PopFlashes returns every queued message and clears the flash cookie.
func PopFlashes(c echo.Context) []Message {
	pending, _ := c.Get(pendingFlashKey).([]Message)
	msgs := append(incomingFlashes(c), pending...)
	c.Set(pendingFlashKey, nil)

	if len(msgs) > 0 {
		c.SetCookie(&http.Cookie{
			Name:     flashCookie,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs
}

func incomingFlashes(c echo.Context) []Message {
	cookie, err := c.Cookie(flashCookie)
	if err != nil || cookie.Value == "" {
		return nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}

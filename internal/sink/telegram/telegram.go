// Package telegram delivers planned combinations to their Telegram chats.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"groupcast/internal/planner"
	logx "groupcast/pkg/logx"
)

type Config struct {
	Token      string        `json:"token"`
	RatePerSec int           `json:"rate_per_sec,omitempty"`
	Timeout    time.Duration `json:"-"`
	// Offline skips the getMe handshake; used by tests.
	Offline bool `json:"offline,omitempty"`
}

// Sink posts combinations through one bot account. Telegram rate-limits
// bots aggressively, so every send passes a limiter first.
type Sink struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     logx.Logger
	timeout time.Duration
}

func New(cfg Config, log logx.Logger) (*Sink, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Offline: cfg.Offline,
	})
	if err != nil {
		return nil, err
	}

	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Sink{
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
		timeout: timeout,
	}, nil
}

func (s *Sink) Close() error { return nil }

// Deliver sends one combination to its chat: a media album with the text as
// caption when media is attached, a plain message otherwise.
func (s *Sink) Deliver(ctx context.Context, c planner.Combination) error {
	// The limiter wait is the only context-aware part; telebot sends are
	// bounded by its own HTTP client timeout.
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.limiter.Wait(wctx); err != nil {
		return err
	}

	to := tele.ChatID(c.ChatID)

	var err error
	if len(c.MediaRefs) > 0 {
		album := make(tele.Album, 0, len(c.MediaRefs))
		for i, ref := range c.MediaRefs {
			photo := &tele.Photo{File: mediaFile(ref)}
			if i == 0 {
				photo.Caption = c.Text
			}
			album = append(album, photo)
		}
		_, err = s.bot.SendAlbum(to, album)
	} else {
		_, err = s.bot.Send(to, c.Text)
	}

	if err != nil {
		s.log.Warn("telegram send failed",
			logx.String("group", c.GroupID),
			logx.Int64("chat_id", c.ChatID),
			logx.Err(err))
		return err
	}
	s.log.Debug("posted",
		logx.String("group", c.GroupID),
		logx.String("account", c.AccountID),
		logx.String("variant", c.TextVariantID),
		logx.Int("media", len(c.MediaRefs)))
	return nil
}

func mediaFile(ref string) tele.File {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return tele.FromURL(ref)
	}
	return tele.File{FileID: ref}
}

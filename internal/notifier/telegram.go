package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"DipSentinel/internal/logging"
	"DipSentinel/internal/model"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/phuslu/log"
)

const telegramAPI = "https://api.telegram.org"

// telegramMessageLimit is the Bot API cap on message text length.
const telegramMessageLimit = 4096

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	BotToken   string
	ChatID     string
	BaseURL    string
	Client     *resty.Client
	MaxRetries uint64
	Logger     *log.Logger

	newBackOff func() backoff.BackOff
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string, maxRetries int, logger *log.Logger) *TelegramNotifier {
	client := resty.New().SetTimeout(30 * time.Second)
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &TelegramNotifier{
		BotToken:   botToken,
		ChatID:     chatID,
		BaseURL:    telegramAPI,
		Client:     client,
		MaxRetries: uint64(maxRetries),
		Logger:     logger,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			b.MaxElapsedTime = 2 * time.Minute
			return b
		},
	}
}

func (t *TelegramNotifier) Name() string { return "telegram" }

// Send delivers the report to the configured chat.
func (t *TelegramNotifier) Send(ctx context.Context, report *model.Report) error {
	if err := t.SendText(ctx, FormatTelegram(report)); err != nil {
		return &SendError{Sink: t.Name(), Err: err}
	}
	return nil
}

// SendText sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendText(ctx context.Context, text string) error {
	text = truncateHTML(text, telegramMessageLimit)
	attempt := 0
	op := func() error {
		attempt++
		return t.post(ctx, text)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(t.newBackOff(), t.MaxRetries), ctx)
	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		t.Logger.Warn().Err(err).Int("attempt", attempt).Uint64("max_retries", t.MaxRetries).
			Dur("retry_in", wait).Msg("telegram send failed")
	})
	if err != nil {
		return fmt.Errorf("after %d attempts: %w", attempt, err)
	}
	return nil
}

// truncateHTML shortens text to at most limit runes. It cuts at a line break
// when there is one and closes any tags left open, since the Bot API rejects
// broken markup.
func truncateHTML(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	// Room for the ellipsis and closing tags.
	cut := max(limit-64, 0)
	head := string(r[:cut])
	if i := strings.LastIndexByte(head, '\n'); i > 0 {
		head = head[:i]
	} else {
		head = trimPartialMarkup(head)
	}
	return head + "\n…" + closeOpenTags(head)
}

// trimPartialMarkup drops a trailing tag or entity that was cut in half.
func trimPartialMarkup(s string) string {
	if i := strings.LastIndexByte(s, '<'); i >= 0 && !strings.Contains(s[i:], ">") {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '&'); i >= 0 && !strings.Contains(s[i:], ";") {
		s = s[:i]
	}
	return s
}

func closeOpenTags(s string) string {
	var open []string
	for {
		i := strings.IndexByte(s, '<')
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], '>')
		if j < 0 {
			break
		}
		tag := s[i+1 : i+j]
		s = s[i+j+1:]
		if name, ok := strings.CutPrefix(tag, "/"); ok {
			if n := len(open); n > 0 && open[n-1] == name {
				open = open[:n-1]
			}
			continue
		}
		if k := strings.IndexByte(tag, ' '); k >= 0 {
			tag = tag[:k]
		}
		open = append(open, tag)
	}
	var b strings.Builder
	for i := len(open) - 1; i >= 0; i-- {
		b.WriteString("</" + open[i] + ">")
	}
	return b.String()
}

func (t *TelegramNotifier) post(ctx context.Context, text string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	resp, err := t.Client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.ChatID,
			"text":       text,
			"parse_mode": "HTML",
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", t.BaseURL, t.BotToken))
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if resp.IsError() || !result.OK {
		err := fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode(), result.Description)
		// 4xx other than rate limiting will not succeed on retry.
		if resp.StatusCode() >= 400 && resp.StatusCode() < 500 && resp.StatusCode() != 429 {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}

package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"DipSentinel/internal/logging"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTelegram(srv *httptest.Server, maxRetries int) *TelegramNotifier {
	tg := NewTelegramNotifier("TOKEN", "42", "", maxRetries, logging.Discard())
	tg.BaseURL = srv.URL
	tg.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return tg
}

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := testTelegram(srv, 0)
	require.NoError(t, tg.Send(context.Background(), sampleReport()))

	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, FormatTelegram(sampleReport()), got["text"])
}

func TestTelegramRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"ok":false,"description":"bad gateway"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	require.NoError(t, testTelegram(srv, 2).SendText(context.Background(), "hello"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTelegramClientErrorIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	defer srv.Close()

	err := testTelegram(srv, 3).Send(context.Background(), sampleReport())
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "telegram", sendErr.Sink)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramPolling(t *testing.T) {
	var (
		mu      sync.Mutex
		served  bool
		replies []string
	)
	replied := make(chan struct{}, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/botTOKEN/getUpdates":
			mu.Lock()
			first := !served
			served = true
			mu.Unlock()
			if !first {
				assert.Equal(t, "12", r.URL.Query().Get("offset"))
				select {
				case <-r.Context().Done():
				case <-time.After(50 * time.Millisecond):
				}
				_, _ = w.Write([]byte(`{"ok":true,"result":[]}`))
				return
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":[
				{"update_id":10,"message":{"text":"/run","chat":{"id":99}}},
				{"update_id":11,"message":{"text":" /status ","chat":{"id":42}}}
			]}`))
		case "/botTOKEN/sendMessage":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			replies = append(replies, body["text"])
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true}`))
			select {
			case replied <- struct{}{}:
			default:
			}
		}
	}))
	defer srv.Close()

	tg := testTelegram(srv, 0)
	var commands []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		tg.StartPolling(ctx, func(ctx context.Context, cmd string) string {
			commands = append(commands, cmd)
			return "ok: " + cmd
		})
	}()

	select {
	case <-replied:
	case <-time.After(5 * time.Second):
		t.Fatal("no reply sent")
	}
	cancel()
	<-done

	assert.Equal(t, []string{"/status"}, commands)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ok: /status"}, replies)
}

func TestTruncateHTMLKeepsMarkupBalanced(t *testing.T) {
	var pre strings.Builder
	pre.WriteString("<pre>")
	for i := 0; i < 400; i++ {
		pre.WriteString("2025-03-12 21:05:00  1  2  1  0  a1b2c3 &amp; more\n")
	}
	pre.WriteString("</pre>")

	var bold strings.Builder
	for i := 0; i < 400; i++ {
		bold.WriteString("<b>S&amp;P 500</b>\nATH: 6,144.15 (2025-02-19)\n")
	}

	for name, text := range map[string]string{"pre": pre.String(), "bold": bold.String()} {
		t.Run(name, func(t *testing.T) {
			got := truncateHTML(text, telegramMessageLimit)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), telegramMessageLimit)
			assert.Equal(t, strings.Count(got, "<pre>"), strings.Count(got, "</pre>"))
			assert.Equal(t, strings.Count(got, "<b>"), strings.Count(got, "</b>"))
			assert.Contains(t, got, "\n…")

			// Everything before the ellipsis is whole lines of the original.
			head := got[:strings.LastIndex(got, "\n…")]
			assert.True(t, strings.HasPrefix(text, head+"\n"))
		})
	}
}

func TestTruncateHTMLSingleLine(t *testing.T) {
	text := "<b>" + strings.Repeat("&amp;", 1000) + "</b>"
	got := truncateHTML(text, 100)

	assert.LessOrEqual(t, utf8.RuneCountInString(got), 100)
	assert.True(t, strings.HasSuffix(got, "\n…</b>"), got)
	body := strings.TrimSuffix(strings.TrimPrefix(got, "<b>"), "\n…</b>")
	assert.Equal(t, strings.Repeat("&amp;", len(body)/5), body, "no entity cut in half")
}

func TestTruncateHTMLShortTextUnchanged(t *testing.T) {
	text := "<pre>ok</pre>"
	assert.Equal(t, text, truncateHTML(text, telegramMessageLimit))
}

func TestTelegramSendTruncatesLongMessages(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	long := "<pre>" + strings.Repeat("row &lt;x&gt;\n", 1000) + "</pre>"
	require.NoError(t, testTelegram(srv, 0).SendText(context.Background(), long))
	assert.LessOrEqual(t, utf8.RuneCountInString(got["text"]), telegramMessageLimit)
	assert.True(t, strings.HasSuffix(got["text"], "\n…</pre>"))
}

package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"DipSentinel/internal/config"
	"DipSentinel/internal/cycle"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// quoteServer serves /api/v1/quote from a fixed price table; unknown
// symbols get a 500.
func quoteServer(t *testing.T, prices map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		price, ok := prices[r.URL.Query().Get("symbol")]
		if r.URL.Path != "/api/v1/quote" || !ok {
			http.Error(w, "no data", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"price": %s, "timestamp": 1741813200}`, price)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	dir    string
	config string
	ath    string
}

func setup(t *testing.T, baseURL string, extra string) env {
	t.Helper()
	for _, k := range []string{"HTTPS_PROXY", "CONFIG_PATH", "DCA_MARKET_BASE_URL", "DCA_MARKET_SOURCE", "DCA_ATH_STORAGE_PATH", "DCA_SQLITE_PATH"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	dir := t.TempDir()
	e := env{dir: dir, config: filepath.Join(dir, "config.yaml"), ath: filepath.Join(dir, "data", "ath.json")}
	body := fmt.Sprintf(`indices:
  - symbol: "^GSPC"
    name: "S&P 500"
  - symbol: "^NDX"
    name: "NASDAQ 100"
storage:
  ath_path: %s
  sqlite_path: %s
analysis:
  seed_from_history: false
market:
  base_url: %s
  retries: 0
logging:
  level: ERROR
%s`, e.ath, filepath.Join(dir, "data", "history.db"), baseURL, extra)
	require.NoError(t, os.WriteFile(e.config, []byte(body), 0o644))
	return e
}

func execute(args ...string) (string, error) {
	exitCode = 0
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunOnceAndStatus(t *testing.T) {
	srv := quoteServer(t, map[string]string{"^GSPC": "5614.56", "^NDX": "19500"})
	e := setup(t, srv.URL, "")

	_, err := execute("-c", e.config, "--no-color")
	require.NoError(t, err)
	assert.Equal(t, cycle.ExitSuccess, exitCode)
	assert.FileExists(t, e.ath)

	out, err := execute("status", "-c", e.config)
	require.NoError(t, err)
	assert.Equal(t, cycle.ExitSuccess, exitCode)
	assert.Contains(t, out, "S&P 500")
	assert.Contains(t, out, "5,614.56")
	assert.Contains(t, out, "NASDAQ 100")

	out, err = execute("history", "-c", e.config, "-n", "5")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "0", strings.Fields(lines[1])[2], "exit code column")
}

func TestRunOncePartialFailure(t *testing.T) {
	srv := quoteServer(t, map[string]string{"^GSPC": "5614.56"})
	e := setup(t, srv.URL, "")

	_, err := execute("-c", e.config, "--no-color")
	require.NoError(t, err)
	assert.Equal(t, cycle.ExitPartial, exitCode)
}

func TestRunOnceTotalFailure(t *testing.T) {
	srv := quoteServer(t, nil)
	e := setup(t, srv.URL, "")

	_, err := execute("-c", e.config, "--no-color")
	require.NoError(t, err)
	assert.Equal(t, cycle.ExitFailure, exitCode)
	assert.NoFileExists(t, e.ath)
}

func TestCorruptStateExitsTwo(t *testing.T) {
	srv := quoteServer(t, map[string]string{"^GSPC": "5614.56", "^NDX": "19500"})
	e := setup(t, srv.URL, "")
	require.NoError(t, os.MkdirAll(filepath.Dir(e.ath), 0o755))
	require.NoError(t, os.WriteFile(e.ath, []byte(`{"^GSPC": {"ath_value": `), 0o644))

	_, err := execute("-c", e.config, "--no-color")
	require.NoError(t, err)
	assert.Equal(t, cycle.ExitFailure, exitCode)

	_, err = execute("status", "-c", e.config)
	require.NoError(t, err)
	assert.Equal(t, cycle.ExitFailure, exitCode)

	data, err := os.ReadFile(e.ath)
	require.NoError(t, err)
	assert.Equal(t, `{"^GSPC": {"ath_value": `, string(data), "corrupt file left untouched")
}

func TestRunOnceStaticSource(t *testing.T) {
	e := setup(t, "", "")
	body := fmt.Sprintf(`indices:
  - symbol: "^GSPC"
    name: "S&P 500"
storage:
  ath_path: %s
  sqlite_path: ""
analysis:
  seed_from_history: false
market:
  source: static
  static_prices:
    "^GSPC": 5614.56
logging:
  level: ERROR
`, e.ath)
	require.NoError(t, os.WriteFile(e.config, []byte(body), 0o644))

	_, err := execute("-c", e.config, "--no-color")
	require.NoError(t, err)
	assert.Equal(t, cycle.ExitSuccess, exitCode)

	out, err := execute("status", "-c", e.config)
	require.NoError(t, err)
	assert.Contains(t, out, "5,614.56")
}

func TestNewFetcher(t *testing.T) {
	now := time.Date(2025, 3, 12, 21, 5, 0, 0, time.UTC)

	cfg := config.Default()
	assert.Equal(t, "yahoo", newFetcher(cfg, now).Name())

	cfg.Market.BaseURL = "http://quotes.internal"
	assert.Equal(t, "rest", newFetcher(cfg, now).Name())

	cfg.Market.Source = "static"
	cfg.Market.StaticPrices = map[string]float64{"^GSPC": 5614.56}
	f := newFetcher(cfg, now)
	require.Equal(t, "static", f.Name())
	q, err := f.FetchQuote(context.Background(), "^GSPC")
	require.NoError(t, err)
	assert.Equal(t, "5614.56", q.Price.String())
	assert.Equal(t, civil.Date{Year: 2025, Month: 3, Day: 12}, q.MarketDate)
	_, err = f.FetchQuote(context.Background(), "^NDX")
	assert.Error(t, err)
}

func TestInvalidConfig(t *testing.T) {
	e := setup(t, "http://127.0.0.1:1", "schedule:\n  cron: \"whenever\"\n")

	_, err := execute("-c", e.config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule.cron")
}

func TestVersion(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Equal(t, "DipSentinel version dev\n", out)
}

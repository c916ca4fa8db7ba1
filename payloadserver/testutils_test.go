package main

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/protectedauction/clock"
	"github.com/cloudx-io/protectedauction/config"
)

var fixtureNow = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

const testFixture = `
candidates:
  - buyer: buyer-a.example
    owner: buyer-a.example
    name: shoes
    priority: 2
    last_updated: 2026-01-10T00:00:00Z
    user_bidding_signals: '{"size":42}'
    trusted_bidding_keys: [shoes, running]
    ads:
      - render_id: ad-1
        render_uri: https://buyer-a.example/ad-1
        ad_counter_keys: [1, 2]
  - buyer: buyer-a.example
    owner: buyer-a.example
    name: stale
    priority: 1
    last_updated: 2025-06-01T00:00:00Z
  - buyer: buyer-b.example
    owner: buyer-b.example
    name: hats
    priority: 5
    last_updated: 2026-01-09T00:00:00Z
    ads:
      - render_id: ad-9
        render_uri: https://buyer-b.example/ad-9
  - buyer: buyer-b.example
    owner: buyer-b.example
    name: expired
    expiration_time: 2026-01-01T00:00:00Z
    last_updated: 2026-01-09T00:00:00Z
  - buyer: buyer-c.example
    owner: buyer-c.example
    name: future
    activation_time: 2026-02-01T00:00:00Z
    last_updated: 2026-01-09T00:00:00Z
signals:
  - buyer: buyer-b.example
    version: 2
    payload_base64: AQIDBA==
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// newTestServer builds a server over testFixture with a fake clock.
func newTestServer(t *testing.T, mutate func(*config.Config)) *PayloadServer {
	t.Helper()
	quietLogs(t)

	cfg := config.Default()
	cfg.Server.FixturePath = writeFile(t, "candidates.yaml", testFixture)
	cfg.Server.SigningKeyID = "test-key"
	cfg.BuyerInput.Freshness = 7 * 24 * time.Hour
	if mutate != nil {
		mutate(cfg)
	}

	server, cleanup, err := NewPayloadServer(cfg, clock.Fake(fixtureNow), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.NoError(t, err)
	t.Cleanup(cleanup)
	return server
}

func quietLogs(t *testing.T) {
	t.Helper()
	previous := log.Writer()
	log.SetOutput(io.Discard)
	t.Cleanup(func() { log.SetOutput(previous) })
}

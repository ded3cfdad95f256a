package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stickerlab/stickerlab/internal/app"
	"github.com/stickerlab/stickerlab/pkg/config"
	"github.com/stickerlab/stickerlab/pkg/kvstore/memory"
)

type cliHarness struct {
	dir   string
	build Builder
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 20, G: 120, B: 220, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	cutout := encodePNG(t, 50, 50)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(cutout)
	}))
	t.Cleanup(upstream.Close)

	dir := t.TempDir()
	cfg := &config.Config{
		App:   config.AppConfig{Env: config.AppEnvDev},
		Store: config.StoreConfig{Driver: config.StoreDriverMemory},
		RemoveBG: config.RemoveBGConfig{
			APIKey:      "test-key",
			BaseURL:     upstream.URL,
			MaxAttempts: 1,
			Timeout:     5 * time.Second,
		},
		Media: config.MediaConfig{
			DataDir:          dir,
			CacheDir:         filepath.Join(dir, "cache"),
			ExportDir:        filepath.Join(dir, "exports"),
			StickerSize:      32,
			WatermarkOpacity: 0.6,
		},
		Credits:  config.CreditsConfig{InitialGrant: 3},
		Stickers: config.StickersConfig{RecoverCorrupt: true},
		Metrics:  config.MetricsConfig{Enabled: true},
	}
	store := memory.New()
	return &cliHarness{
		dir: dir,
		build: func(ctx context.Context) (*app.Container, error) {
			return app.New(ctx, cfg, nil, app.Options{
				Store:      store,
				HTTPClient: upstream.Client(),
				Registry:   prometheus.NewRegistry(),
			})
		},
	}
}

func (h *cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	root := NewRootCommand(Options{Out: out, Build: h.build})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLoginBuyAndBalance(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run(t, "login", "0801-234-5678")
	require.NoError(t, err)
	assert.Equal(t, "Signed in as 08012345678. You have 3 credits.\n", out)

	out, err = h.run(t, "buy", "2")
	require.NoError(t, err)
	assert.Equal(t, "Added 3 credits for ₦100. Balance: 6\n", out)

	out, err = h.run(t, "balance", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"balance":6}`, out)

	_, err = h.run(t, "buy", "zero")
	require.Error(t, err)
	assert.Equal(t, "package id must be a positive number", describe(err))
}

func TestCreateListAndExport(t *testing.T) {
	h := newCLIHarness(t)
	_, err := h.run(t, "login", "08012345678")
	require.NoError(t, err)

	photo := filepath.Join(h.dir, "dog.png")
	require.NoError(t, os.WriteFile(photo, encodePNG(t, 64, 48), 0o600))

	out, err := h.run(t, "create", photo, "--json")
	require.NoError(t, err)
	var sticker struct {
		ID           string `json:"id"`
		HasWatermark bool   `json:"hasWatermark"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sticker))
	require.NotEmpty(t, sticker.ID)
	assert.True(t, sticker.HasWatermark)

	out, err = h.run(t, "stickers")
	require.NoError(t, err)
	assert.Contains(t, out, sticker.ID)

	out, err = h.run(t, "export", sticker.ID)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(h.dir, "exports"))

	out, err = h.run(t, "balance")
	require.NoError(t, err)
	assert.Equal(t, "2 credits\n", out)
}

func TestCreateWithoutCreditsExplainsNextStep(t *testing.T) {
	h := newCLIHarness(t)
	photo := filepath.Join(h.dir, "dog.png")
	require.NoError(t, os.WriteFile(photo, encodePNG(t, 10, 10), 0o600))

	_, err := h.run(t, "create", photo)
	require.Error(t, err)
	assert.Contains(t, describe(err), "stickerlab buy")
}

func TestPacksAndClaim(t *testing.T) {
	h := newCLIHarness(t)

	out, err := h.run(t, "claim", "1")
	require.NoError(t, err)
	assert.Equal(t, "Pack 1 claimed.\n", out)

	out, err = h.run(t, "claim", "1")
	require.NoError(t, err)
	assert.Equal(t, "Pack 1 was already claimed.\n", out)

	_, err = h.run(t, "claim", "2")
	require.Error(t, err)
	assert.Contains(t, describe(err), "Naija Vibes")

	out, err = h.run(t, "packs")
	require.NoError(t, err)
	assert.Contains(t, out, "Love & Romance")
	assert.Contains(t, out, "claimed")
	assert.Contains(t, out, "FREE")
}

func TestPackagesTable(t *testing.T) {
	h := newCLIHarness(t)
	out, err := h.run(t, "packages")
	require.NoError(t, err)
	assert.Contains(t, out, "3 Stickers (popular)")
	assert.Contains(t, out, "30 Stickers (best value)")
	assert.Contains(t, out, "₦50")
}

func TestNoStickersYet(t *testing.T) {
	h := newCLIHarness(t)
	out, err := h.run(t, "stickers")
	require.NoError(t, err)
	assert.Equal(t, "No stickers yet.\n", out)
}

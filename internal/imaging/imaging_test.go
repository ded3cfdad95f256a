package imaging

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/storage/localfs"
)

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, dir string, name string, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	img, err := Decode(data)
	require.NoError(t, err)
	return img
}

func newProcessor(t *testing.T, opts Options) (*Processor, string) {
	t.Helper()
	dir := t.TempDir()
	out, err := localfs.New(dir)
	require.NoError(t, err)
	p, err := NewProcessor(out, opts, nil)
	require.NoError(t, err)
	return p, out.Root()
}

func TestFitSquareKeepsAspectRatioAndCenters(t *testing.T) {
	src := solid(400, 200, color.NRGBA{R: 255, A: 255})

	got, err := FitSquare(src, 100)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 100), got.Bounds())

	// 400x200 scales to 100x50, placed at y 25..75.
	assert.Equal(t, uint8(0), got.NRGBAAt(50, 10).A)
	assert.Equal(t, uint8(0), got.NRGBAAt(50, 90).A)
	center := got.NRGBAAt(50, 50)
	assert.Equal(t, uint8(255), center.A)
	assert.Equal(t, uint8(255), center.R)
}

func TestFitSquareUpscalesSmallImages(t *testing.T) {
	got, err := FitSquare(solid(10, 20, color.NRGBA{G: 255, A: 255}), 64)
	require.NoError(t, err)
	assert.Equal(t, 64, got.Bounds().Dx())
	assert.Equal(t, uint8(255), got.NRGBAAt(32, 2).A)
	assert.Equal(t, uint8(0), got.NRGBAAt(2, 32).A)
}

func TestFitSquareRejectsBadInput(t *testing.T) {
	_, err := FitSquare(solid(10, 10, color.NRGBA{A: 255}), 0)
	require.Error(t, err)

	_, err = FitSquare(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 10)
	require.Error(t, err)
}

func TestDrawWatermarkMarksBottomRightOnly(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 300, 300))

	got := DrawWatermark(src, "Sticker Lab", 0.6, 0.35)
	assert.Equal(t, src.Bounds(), got.Bounds())

	var cornerInk, elsewhereInk int
	for y := 0; y < 300; y++ {
		for x := 0; x < 300; x++ {
			if got.NRGBAAt(x, y).A == 0 {
				continue
			}
			if x >= 150 && y >= 250 {
				cornerInk++
			} else {
				elsewhereInk++
			}
		}
	}
	assert.Positive(t, cornerInk)
	assert.Zero(t, elsewhereInk)

	// the source is untouched
	assert.Equal(t, uint8(0), src.NRGBAAt(290, 290).A)
}

func TestDrawWatermarkRespectsOpacity(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 200, 200))
	got := DrawWatermark(src, "Sticker Lab", 0.5, 0.35)

	var peak uint8
	for _, a := range alphaValues(got) {
		if a > peak {
			peak = a
		}
	}
	assert.Positive(t, peak)
	assert.LessOrEqual(t, int(peak), 200)
}

func alphaValues(img *image.NRGBA) []uint8 {
	out := make([]uint8, 0, len(img.Pix)/4)
	for i := 3; i < len(img.Pix); i += 4 {
		out = append(out, img.Pix[i])
	}
	return out
}

func TestProcessorNormalizeWritesSizedPNG(t *testing.T) {
	p, dir := newProcessor(t, Options{StickerSize: 128})
	src := writePNG(t, t.TempDir(), "sticker_1.png", solid(300, 150, color.NRGBA{B: 255, A: 255}))

	out, err := p.Normalize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sticker_1_128.png"), out)

	img := decodeFile(t, out)
	assert.Equal(t, image.Rect(0, 0, 128, 128), img.Bounds())
}

func TestProcessorNormalizeAcceptsJPEG(t *testing.T) {
	p, _ := newProcessor(t, Options{StickerSize: 32})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solid(64, 64, color.NRGBA{R: 200, A: 255}), nil))
	src := filepath.Join(t.TempDir(), "photo.jpg")
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0o600))

	out, err := p.Normalize(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "photo_32.png", filepath.Base(out))
}

func TestProcessorWatermarkWritesSuffixedFile(t *testing.T) {
	p, dir := newProcessor(t, Options{})
	src := writePNG(t, dir, "sticker_1_512.png", image.NewNRGBA(image.Rect(0, 0, 512, 512)))

	out, err := p.Watermark(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sticker_1_512_wm.png"), out)
	assert.Equal(t, image.Rect(0, 0, 512, 512), decodeFile(t, out).Bounds())
}

func TestProcessorErrors(t *testing.T) {
	p, dir := newProcessor(t, Options{})
	ctx := context.Background()

	_, err := p.Normalize(ctx, filepath.Join(dir, "missing.png"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIO))

	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("not an image at all"), 0o600))
	_, err = p.Watermark(ctx, text)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Normalize(canceled, text)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSniff(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, solid(2, 2, color.NRGBA{A: 255})))

	mime, err := Sniff(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = Sniff(nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Sniff([]byte("%PDF-1.4 fake"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, []string{"image/png", "image/jpeg", "image/webp"}, SupportedTypes())
}

// Package imaging holds the local image transforms applied to a background
// removal result: fitting it to the sticker square and stamping the free-tier
// watermark.
package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"

	pkgerrors "github.com/stickerlab/stickerlab/pkg/errors"
	"github.com/stickerlab/stickerlab/pkg/logger"
	"github.com/stickerlab/stickerlab/pkg/storage/localfs"
)

const (
	DefaultStickerSize   = 512
	DefaultWatermark     = "Sticker Lab"
	DefaultOpacity       = 0.6
	DefaultWidthRatio    = 0.35
	minWatermarkMargin   = 4
	watermarkMarginRatio = 0.02
)

type Options struct {
	StickerSize   int
	WatermarkText string
	Opacity       float64
	WidthRatio    float64
	// MaxSourceBytes caps how much of an input file is read; 0 disables it.
	MaxSourceBytes int64
}

func (o Options) withDefaults() Options {
	if o.StickerSize <= 0 {
		o.StickerSize = DefaultStickerSize
	}
	if strings.TrimSpace(o.WatermarkText) == "" {
		o.WatermarkText = DefaultWatermark
	}
	if o.Opacity <= 0 || o.Opacity > 1 {
		o.Opacity = DefaultOpacity
	}
	if o.WidthRatio <= 0 || o.WidthRatio > 1 {
		o.WidthRatio = DefaultWidthRatio
	}
	return o
}

// Processor reads images from disk, transforms them and writes PNG results
// into its output directory.
type Processor struct {
	opts Options
	out  *localfs.Dir
	logg *logger.Logger
}

func NewProcessor(out *localfs.Dir, opts Options, logg *logger.Logger) (*Processor, error) {
	if out == nil {
		return nil, fmt.Errorf("output directory required")
	}
	return &Processor{opts: opts.withDefaults(), out: out, logg: logg}, nil
}

func (p *Processor) Options() Options { return p.opts }

// Normalize fits the image at path into the sticker square and writes
// <name>_<size>.png.
func (p *Processor) Normalize(ctx context.Context, path string) (string, error) {
	src, err := p.load(ctx, path)
	if err != nil {
		return "", err
	}
	fitted, err := FitSquare(src, p.opts.StickerSize)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeIO, err, "normalize image")
	}
	out, err := p.save(ctx, fmt.Sprintf("%s_%d.png", baseName(path), p.opts.StickerSize), fitted)
	if err != nil {
		return "", err
	}
	p.logg.Debug(p.logg.WithFields(ctx, map[string]any{"source": path, "output": out}), "image normalized")
	return out, nil
}

// Watermark stamps the configured text on the image at path and writes
// <name>_wm.png.
func (p *Processor) Watermark(ctx context.Context, path string) (string, error) {
	src, err := p.load(ctx, path)
	if err != nil {
		return "", err
	}
	marked := DrawWatermark(src, p.opts.WatermarkText, p.opts.Opacity, p.opts.WidthRatio)
	out, err := p.save(ctx, baseName(path)+"_wm.png", marked)
	if err != nil {
		return "", err
	}
	p.logg.Debug(p.logg.WithFields(ctx, map[string]any{"source": path, "output": out}), "watermark applied")
	return out, nil
}

func (p *Processor) load(ctx context.Context, path string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := localfs.ReadFile(path, p.opts.MaxSourceBytes)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIO, err, "read image")
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (p *Processor) save(ctx context.Context, name string, img image.Image) (string, error) {
	out, err := p.out.WriteFile(ctx, name, func(w io.Writer) error {
		return EncodePNG(w, img)
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeIO, err, "write image")
	}
	return out, nil
}

// Decode sniffs and decodes PNG, JPEG or WebP data.
func Decode(data []byte) (image.Image, error) {
	if _, err := Sniff(data); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeIO, err, "decode image")
	}
	return img, nil
}

func EncodePNG(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	return enc.Encode(w, img)
}

// FitSquare scales src to fit a size×size square keeping its aspect ratio
// and centers it on a transparent canvas.
func FitSquare(src image.Image, size int) (*image.NRGBA, error) {
	if size <= 0 {
		return nil, fmt.Errorf("sticker size must be positive, got %d", size)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	scale := math.Min(float64(size)/float64(w), float64(size)/float64(h))
	dw := max(1, int(math.Round(float64(w)*scale)))
	dh := max(1, int(math.Round(float64(h)*scale)))
	x0 := (size - dw) / 2
	y0 := (size - dh) / 2

	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+dw, y0+dh), src, b, draw.Src, nil)
	return dst, nil
}

// DrawWatermark returns a copy of src with text rendered in the bottom-right
// corner, scaled to widthRatio of the image width at the given opacity.
func DrawWatermark(src image.Image, text string, opacity, widthRatio float64) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)

	mask := textMask(text)
	if mask == nil {
		return dst
	}

	width := dst.Bounds().Dx()
	tw := max(1, int(math.Round(float64(width)*widthRatio)))
	th := max(1, int(math.Round(float64(mask.Bounds().Dy())*float64(tw)/float64(mask.Bounds().Dx()))))
	scaled := image.NewAlpha(image.Rect(0, 0, tw, th))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), mask, mask.Bounds(), draw.Src, nil)
	for i, a := range scaled.Pix {
		scaled.Pix[i] = uint8(math.Round(float64(a) * opacity))
	}

	margin := max(minWatermarkMargin, int(math.Round(float64(width)*watermarkMarginRatio)))
	corner := dst.Bounds().Max
	r := image.Rect(corner.X-margin-tw, corner.Y-margin-th, corner.X-margin, corner.Y-margin)

	shadow := r.Add(image.Pt(1, 1))
	draw.DrawMask(dst, shadow, image.NewUniform(color.NRGBA{A: 0x80}), image.Point{}, scaled, image.Point{}, draw.Over)
	draw.DrawMask(dst, r, image.NewUniform(color.White), image.Point{}, scaled, image.Point{}, draw.Over)
	return dst
}

// textMask renders text with the built-in bitmap face into an alpha mask.
func textMask(text string) *image.Alpha {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	advance := d.MeasureString(text).Ceil()
	if advance <= 0 {
		return nil
	}
	m := face.Metrics()
	ascent := m.Ascent.Ceil()
	mask := image.NewAlpha(image.Rect(0, 0, advance, ascent+m.Descent.Ceil()))
	d.Dst = mask
	d.Src = image.Opaque
	d.Dot = fixed.P(0, ascent)
	d.DrawString(text)
	return mask
}

func baseName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

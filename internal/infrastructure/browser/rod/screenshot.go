package rod

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"browser-observer/internal/domain/entity"

	"github.com/disintegration/imaging"
)

type imageOptions struct {
	// Scale converts CSS pixels to image pixels.
	Scale    float64
	MaxWidth int
	Quality  int
}

// processScreenshot paints redaction boxes, downsizes wide captures and
// re-encodes as JPEG.
func processScreenshot(raw []byte, redact []entity.Rect, opts imageOptions) (*entity.Screenshot, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if len(redact) > 0 {
		img = paintBoxes(img, redact, opts.Scale)
	}

	if opts.MaxWidth > 0 && img.Bounds().Dx() > opts.MaxWidth {
		img = imaging.Resize(img, opts.MaxWidth, 0, imaging.Lanczos)
	}
	return encode(img, opts.Quality)
}

// cropScreenshot cuts the region around r, padded and clipped to the image.
func cropScreenshot(raw []byte, r entity.Rect, padding float64, opts imageOptions) (*entity.Screenshot, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	region := toPixels(entity.Rect{
		X:      r.X - padding,
		Y:      r.Y - padding,
		Width:  r.Width + 2*padding,
		Height: r.Height + 2*padding,
	}, opts.Scale).Intersect(img.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("crop region %v outside image %v", region, img.Bounds())
	}

	cropped := imaging.Crop(img, region)
	if opts.MaxWidth > 0 && cropped.Bounds().Dx() > opts.MaxWidth {
		cropped = imaging.Resize(cropped, opts.MaxWidth, 0, imaging.Lanczos)
	}
	return encode(cropped, opts.Quality)
}

func paintBoxes(img image.Image, boxes []entity.Rect, scale float64) image.Image {
	out := imaging.Clone(img)
	for _, b := range boxes {
		region := toPixels(b, scale).Intersect(out.Bounds())
		if region.Empty() {
			continue
		}
		patch := imaging.New(region.Dx(), region.Dy(), color.Black)
		out = imaging.Paste(out, patch, region.Min)
	}
	return out
}

func toPixels(r entity.Rect, scale float64) image.Rectangle {
	if scale <= 0 {
		scale = 1
	}
	return image.Rect(
		int(math.Floor(r.X*scale)),
		int(math.Floor(r.Y*scale)),
		int(math.Ceil((r.X+r.Width)*scale)),
		int(math.Ceil((r.Y+r.Height)*scale)),
	)
}

func imageWidth(raw []byte) int {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return 0
	}
	return cfg.Width
}

func encode(img image.Image, quality int) (*entity.Screenshot, error) {
	if quality <= 0 {
		quality = 75
	}
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}
	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

// Package thumbnail produces small deterministic WebP previews of uploaded
// images. Generation is pure CPU work with no ordering dependency on the
// alt-text pipeline; a failure here never fails the overall upload.
package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"alt-text-server/internal/utils/apperrors"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	maxHeightPx      = 100
	maxWidthPx       = 200
	maxImagePixels   = 80_000_000
	webpQuality      = 80
	sharpenRadius    = 1.0
	sharpenPercent   = 100
	sharpenThreshold = 3
)

// Thumbnail is an encoded preview with its pixel dimensions.
type Thumbnail struct {
	Bytes  []byte
	Width  int
	Height int
}

// Generate decodes src and produces a WebP preview at most 200x100 px.
//
// The transform is deterministic for identical inputs: first frame only,
// EXIF orientation applied, Lanczos downscale to height 100 with
// floor-rounded width, crop to the leftmost 200 px if still wider, an
// unsharp pass when a resize occurred, then lossy WebP at quality 80.
// Transparency is preserved; opaque sources flatten to RGB.
func Generate(src []byte) (*Thumbnail, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindThumbnail, "unreadable image data", err)
	}
	if cfg.Width*cfg.Height > maxImagePixels {
		return nil, apperrors.Newf(apperrors.KindThumbnail,
			"image of %dx%d px exceeds the %d pixel ceiling", cfg.Width, cfg.Height, maxImagePixels)
	}
	hasAlpha := alphaCapable(cfg)

	// Animated sources decode to their first frame here.
	img, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindThumbnail, "decode image", err)
	}

	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()

	working := imaging.Clone(img)
	resized := false
	if srcH > maxHeightPx {
		newW := int(math.Floor(float64(srcW) * float64(maxHeightPx) / float64(srcH)))
		if newW < 1 {
			newW = 1
		}
		working = imaging.Resize(working, newW, maxHeightPx, imaging.Lanczos)
		resized = true
	}

	// Width cap takes priority over preserving the full scene: crop, do not
	// rescale further.
	if working.Bounds().Dx() > maxWidthPx {
		working = imaging.Crop(working, image.Rect(0, 0, maxWidthPx, working.Bounds().Dy()))
	}

	if resized {
		working = unsharpMask(working, sharpenRadius, sharpenPercent, sharpenThreshold)
	}

	var encoded []byte
	if hasAlpha {
		encoded, err = webp.EncodeRGBA(working, webpQuality)
	} else {
		encoded, err = webp.EncodeRGB(working, webpQuality)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindThumbnail, "encode webp", err)
	}

	out := working.Bounds()
	return &Thumbnail{Bytes: encoded, Width: out.Dx(), Height: out.Dy()}, nil
}

// alphaCapable reports whether the source carries an alpha channel or a
// transparent palette entry. Decided from the decode config because the
// orientation pass converts everything to NRGBA.
func alphaCapable(cfg image.Config) bool {
	if palette, ok := cfg.ColorModel.(color.Palette); ok {
		for _, c := range palette {
			if _, _, _, a := c.RGBA(); a < 0xffff {
				return true
			}
		}
		return false
	}
	// The PNG decoder reports RGBAModel for truecolor sources without an
	// alpha channel; alpha-carrying truecolor decodes to the NRGBA models.
	switch cfg.ColorModel {
	case color.NRGBAModel, color.NRGBA64Model, color.NYCbCrAModel:
		return true
	}
	return false
}

// unsharpMask applies a thresholded unsharp pass to counteract resampling
// softness: pixels whose blurred delta exceeds the threshold are pushed by
// percent/100 of that delta. Alpha is left untouched.
func unsharpMask(img *image.NRGBA, radius float64, percent, threshold int) *image.NRGBA {
	blurred := imaging.Blur(img, radius)
	out := imaging.Clone(img)
	for i := 0; i < len(out.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			orig := int(img.Pix[i+c])
			diff := orig - int(blurred.Pix[i+c])
			if diff > threshold || diff < -threshold {
				v := orig + diff*percent/100
				if v < 0 {
					v = 0
				} else if v > 255 {
					v = 255
				}
				out.Pix[i+c] = uint8(v)
			}
		}
	}
	return out
}

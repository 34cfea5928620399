package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/gif" // format registration for image.DecodeConfig's no-vips fallback
	_ "image/png" // format registration for image.DecodeConfig's no-vips fallback
	"os"

	"github.com/davidbyttow/govips/v2/vips"
	_ "golang.org/x/image/webp" // format registration for image.DecodeConfig's no-vips fallback
)

// encodeResult carries an encoded thumbnail plus the extension it should be
// written with. Image thumbnails prefer webp; encodeImage falls back to
// jpeg when libvips (the only webp encoder this module links — the
// teacher's golang.org/x/image/webp registration is decode-only) isn't
// available.
type encodeResult struct {
	Bytes []byte
	Ext   string
}

// encodeImage resizes srcPath to targetWidth and encodes it at quality,
// preferring libvips' native webp encoder and falling back to the pure-Go
// decode path plus a jpeg encode when vips is unavailable or fails.
func encodeImage(srcPath string, targetWidth, quality int, opts decodeOpts) (encodeResult, error) {
	if vipsStarted {
		res, err := encodeWebpWithVips(srcPath, targetWidth, quality)
		if err == nil {
			return res, nil
		}
		if !opts.safeMode {
			return encodeResult{}, err
		}
	}
	return encodeFallbackJpeg(srcPath, targetWidth, quality)
}

func encodeWebpWithVips(srcPath string, targetWidth, quality int) (encodeResult, error) {
	ref, err := vips.LoadImageFromFile(srcPath, vips.NewImportParams())
	if err != nil {
		return encodeResult{}, fmt.Errorf("vips load: %w", err)
	}
	defer ref.Close()

	targetHeight := int(float64(targetWidth) / float64(ref.Width()) * float64(ref.Height()))
	if targetHeight < 1 {
		targetHeight = 1
	}
	if err := ref.Thumbnail(targetWidth, targetHeight, vips.InterestingNone); err != nil {
		return encodeResult{}, fmt.Errorf("vips thumbnail: %w", err)
	}

	webpBytes, _, err := ref.ExportWebp(&vips.WebpExportParams{
		Quality:        quality,
		ReductionEffort: 4,
	})
	if err != nil {
		return encodeResult{}, fmt.Errorf("vips export webp: %w", err)
	}
	return encodeResult{Bytes: webpBytes, Ext: ".webp"}, nil
}

// encodeFallbackJpeg is the safe-mode / no-vips path: the pure-Go decoders
// in decodeWithFallback can't write webp (golang.org/x/image/webp has no
// encoder), so the artifact is written as jpeg instead. runGenerateImage
// derives the on-disk extension from the returned encodeResult
// rather than assuming .webp.
func encodeFallbackJpeg(srcPath string, targetWidth, quality int) (encodeResult, error) {
	img, err := decodeWithFallback(srcPath, targetWidth)
	if err != nil {
		return encodeResult{}, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return encodeResult{}, fmt.Errorf("fallback jpeg encode: %w", err)
	}
	return encodeResult{Bytes: buf.Bytes(), Ext: ".jpg"}, nil
}

// sourcePixelCount opens srcPath just far enough to read its dimensions,
// used by the quality-tier selector and the SHARP_MAX_PIXELS guard before
// committing to a full decode.
func sourcePixelCount(srcPath string) (width, height int, err error) {
	if vipsStarted {
		ref, err := vips.LoadImageFromFile(srcPath, vips.NewImportParams())
		if err != nil {
			return 0, 0, fmt.Errorf("vips probe: %w", err)
		}
		defer ref.Close()
		return ref.Width(), ref.Height(), nil
	}
	cfg, err := decodeConfig(srcPath)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func decodeConfig(srcPath string) (image.Config, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return image.Config{}, fmt.Errorf("open for decode config: %w", err)
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, err
}

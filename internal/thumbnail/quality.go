package thumbnail

import (
	"fmt"

	"photonix-core/internal/config"
	"photonix-core/internal/errs"
)

// Limits bundles the numeric decisions for image thumbnail generation,
// loaded once from config.Config at engine construction.
type Limits struct {
	TargetWidth  int
	MaxPixels    int64
	ThresholdHi  int64
	ThresholdMed int64
	QualityLow   int
	QualityMed   int
	QualityHigh  int
	QualitySafe  int
}

// LimitsFromConfig derives Limits from the loaded Config.
func LimitsFromConfig(c *config.Config) Limits {
	return Limits{
		TargetWidth:  c.ThumbTargetWidth,
		MaxPixels:    c.SharpMaxPixels,
		ThresholdHi:  c.ThumbPixelThresholdHigh,
		ThresholdMed: c.ThumbPixelThresholdMed,
		QualityLow:   c.ThumbQualityLow,
		QualityMed:   c.ThumbQualityMedium,
		QualityHigh:  c.ThumbQualityHigh,
		QualitySafe:  c.ThumbQualitySafe,
	}
}

// qualityFor selects the webp quality tier for a source image by pixel
// count: sources at or above ThresholdHi get the lowest quality (they
// dominate output size at the same perceptual width), sources below
// ThresholdMed get the highest.
func (l Limits) qualityFor(pixels int64) int {
	switch {
	case pixels >= l.ThresholdHi:
		return l.QualityLow
	case pixels >= l.ThresholdMed:
		return l.QualityMed
	default:
		return l.QualityHigh
	}
}

// validatePixels refuses sources whose pixel count exceeds MaxPixels. The
// caller is expected to cache this as a permanent failure (errs.Validation)
// so a retry storm doesn't re-decode the same oversized source repeatedly.
func (l Limits) validatePixels(width, height int) error {
	pixels := int64(width) * int64(height)
	if pixels > l.MaxPixels {
		return errs.New(errs.Validation, "thumbnail.pixels_exceeded",
			fmt.Sprintf("source is %d megapixels, exceeds limit of %d", pixels/1_000_000, l.MaxPixels/1_000_000))
	}
	return nil
}

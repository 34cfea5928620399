package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"photonix-core/internal/errs"
)

const videoThumbTimeout = 60 * time.Second

// ffprobePath/ffmpegPath are package vars rather than constants so tests can
// point them at a stub binary; production always resolves the system PATH.
var (
	ffprobePath = "ffprobe"
	ffmpegPath  = "ffmpeg"
)

func (e *Engine) runGenerateVideo(absSrc, relPath string) (any, error) {
	ctx, cancel := context.WithTimeout(context.Background(), videoThumbTimeout)
	defer cancel()

	duration, err := errs.Retry(ctx, errs.DefaultRetryConfig(), "thumbnail.video_probe", func() (float64, error) {
		return probeDuration(ctx, absSrc)
	})
	if err != nil {
		return nil, err
	}

	seekSeconds := 3.0
	if duration > 0 {
		seekSeconds = math.Min(duration*0.1, 60)
	}

	outPath := e.derivedBasePath(relPath, kindVideo) + ".jpg"
	if _, err := errs.Retry(ctx, errs.DefaultRetryConfig(), "thumbnail.video_extract", func() (struct{}, error) {
		return struct{}{}, extractFrame(ctx, absSrc, outPath, seekSeconds)
	}); err != nil {
		return nil, err
	}
	return outPath, nil
}

// probeDuration runs ffprobe to read the container duration in seconds.
func probeDuration(ctx context.Context, absSrc string) (float64, error) {
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		absSrc,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	text := strings.TrimSpace(out.String())
	if text == "" || text == "N/A" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration parse: %w", err)
	}
	return d, nil
}

// extractFrame seeks to seekSeconds and writes one 320px-wide JPEG frame at
// quality 5 (ffmpeg's -q:v scale, lower is better) to a temp path, renamed
// into place atomically on success.
func extractFrame(ctx context.Context, absSrc, outPath string, seekSeconds float64) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	tmp := outPath + ".tmp"
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-y",
		"-ss", fmt.Sprintf("%.3f", seekSeconds),
		"-i", absSrc,
		"-frames:v", "1",
		"-vf", "scale=320:-1",
		"-q:v", "5",
		tmp,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, stderr.String())
	}
	return os.Rename(tmp, outPath)
}

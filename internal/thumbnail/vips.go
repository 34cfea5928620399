package thumbnail

import (
	"fmt"
	"image"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"photonix-core/internal/logging"
)

var (
	vipsInitMutex sync.Mutex
	vipsStarted   bool
)

// Each thumbnail worker enforces its own libvips cache ceiling (spec.md
// §4.4): 32MB memory, 100 cached operations, 0 cached files.
const (
	vipsCacheMemBytes = 32 * 1024 * 1024
	vipsCacheMaxItems = 100
	vipsCacheMaxFiles = 0
)

// InitVips starts libvips once per process with the concurrency and cache
// ceilings the thumbnail pool's per-worker isolation depends on.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsStarted {
		return nil
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[vips:%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[vips:%s] %s", domain, msg)
		default:
			logging.Debug("[vips:%s] %s", domain, msg)
		}
	}, vips.LogLevelWarning)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      vipsCacheMemBytes,
		MaxCacheSize:     vipsCacheMaxItems,
		MaxCacheFiles:    vipsCacheMaxFiles,
	})

	vipsStarted = true
	logging.Info("thumbnail: libvips started (version %s, cache %dMB/%d ops/%d files)",
		vips.Version, vipsCacheMemBytes/(1024*1024), vipsCacheMaxItems, vipsCacheMaxFiles)
	return nil
}

// ShutdownVips releases libvips resources at process exit.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	if vipsStarted {
		vips.Shutdown()
		vipsStarted = false
	}
}

// decodeOpts controls the "safe mode" retry: permissive decoding at a lower
// output quality after a first attempt fails.
type decodeOpts struct {
	safeMode bool
}

// decodeWithFallback uses the pure-Go imaging/webp decoders when vips is
// unavailable or failed, matching the teacher's fallback-decoder posture.
func decodeWithFallback(srcPath string, targetWidth int) (image.Image, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("fallback decode: %w", err)
	}
	return imaging.Resize(img, targetWidth, 0, imaging.Lanczos), nil
}

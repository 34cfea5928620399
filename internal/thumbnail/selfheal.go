package thumbnail

import (
	"context"

	"photonix-core/internal/catalog"
	"photonix-core/internal/filesystem"
	"photonix-core/internal/logging"
	"photonix-core/internal/metrics"
)

const (
	selfHealSampleSize  = 50
	selfHealExistsFloor = 100
	selfHealTopLevels   = 2
)

// SelfHeal runs at boot: if the artifact root looks "effectively empty" (no
// files in its top two directory levels) and a random sample of rows the
// catalog believes are 'exists' also turns up nothing on disk, while the
// catalog still holds more than selfHealExistsFloor such rows, something
// wiped the thumbs volume out from under the database. Resetting those rows
// to 'pending' lets the orchestrator's back-fill task rebuild them.
func (e *Engine) SelfHeal(ctx context.Context) error {
	// The quick top-two-levels check and the 50-row DB sample are both run
	// unconditionally — one known inconsistency in this area left two
	// copies of this check disagreeing on whether the quick check alone
	// could skip the DB sample; the stricter reading (always sample) wins.
	topLevelEmpty := isEffectivelyEmpty(e.thumbsDir)

	sample, err := e.catalog.SampleThumbsByStatus(ctx, catalog.StatusExists, selfHealSampleSize)
	if err != nil {
		return err
	}
	if len(sample) == 0 {
		return nil
	}

	sampleEmpty := true
	for _, relPath := range sample {
		if _, ok := e.existingArtifact(relPath, kindForSelfHeal(relPath)); ok {
			sampleEmpty = false
			break
		}
	}

	if !topLevelEmpty || !sampleEmpty {
		return nil
	}

	total, err := e.catalog.CountThumbStatus(ctx, catalog.StatusExists)
	if err != nil {
		return err
	}
	if total <= selfHealExistsFloor {
		return nil
	}

	allExists, err := e.catalog.ListThumbsByStatus(ctx, catalog.StatusExists)
	if err != nil {
		return err
	}
	reset, err := e.catalog.ResetThumbStatusToPending(ctx, allExists)
	if err != nil {
		return err
	}

	logging.Warn("thumbnail: self-heal reset %d exists rows to pending (artifact root %s looks empty)", reset, e.thumbsDir)
	metrics.ThumbnailSelfHealResets.Add(float64(reset))
	return nil
}

func kindForSelfHeal(relPath string) artifactKind {
	kind, ok := kindFor(relPath)
	if !ok {
		return kindImage
	}
	return kind
}

// isEffectivelyEmpty checks the top two directory levels of root for any
// file at all, tolerating NFS ESTALE via the retrying directory reader.
func isEffectivelyEmpty(root string) bool {
	return !hasAnyFile(root, selfHealTopLevels)
}

func hasAnyFile(dir string, depth int) bool {
	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			return true
		}
	}
	if depth == 0 {
		return false
	}
	for _, entry := range entries {
		if entry.IsDir() && hasAnyFile(dir+"/"+entry.Name(), depth-1) {
			return true
		}
	}
	return false
}

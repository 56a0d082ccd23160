package beepaudio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

// readMetadata fills title, artist and album from embedded tags, falling
// back to the file name when the file has none.
func readMetadata(filePath string) (*domain.TrackInfo, error) {
	if filePath == "" {
		return nil, domain.ErrInvalidFilePath
	}

	base := filepath.Base(filePath)
	info := &domain.TrackInfo{
		FilePath: filePath,
		Title:    strings.TrimSuffix(base, filepath.Ext(base)),
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, domain.NewAudioEngineError("metadata", filePath, "open failed", err)
	}
	defer file.Close()

	metadata, err := tag.ReadFrom(file)
	if err != nil || metadata == nil {
		// Untagged files are common for ads and adzan clips
		return info, nil
	}

	if title := strings.TrimSpace(metadata.Title()); title != "" {
		info.Title = title
	}
	info.Artist = strings.TrimSpace(metadata.Artist())
	info.Album = strings.TrimSpace(metadata.Album())

	return info, nil
}

// Package library maps local item identifiers onto files under the
// configured music and advertisement directories.
package library

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/samber/lo"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
	"github.com/tejashwikalptaru/adzantune/internal/ports"
)

// supportedExts lists the extensions the beep decoders can open.
var supportedExts = []string{".mp3", ".wav"}

// Resolver implements ports.PathResolver.
type Resolver struct {
	musicDir string
	adsDir   string
}

// NewResolver creates a resolver. Either directory may be empty; resolving
// an item under an empty directory fails with domain.ErrBasePathUnset.
func NewResolver(musicDir, adsDir string) *Resolver {
	return &Resolver{musicDir: musicDir, adsDir: adsDir}
}

// IsFormatSupported reports whether a file extension can be decoded.
func IsFormatSupported(path string) bool {
	return lo.Contains(supportedExts, strings.ToLower(filepath.Ext(path)))
}

// SupportedFormats returns a copy of the decodable extensions.
func SupportedFormats() []string {
	return append([]string(nil), supportedExts...)
}

// Resolve returns the absolute file path for a local:track: or local:ads: id.
func (r *Resolver) Resolve(itemID string) (string, error) {
	var base, rel string
	switch {
	case domain.IsLocalItem(itemID):
		base, rel = r.musicDir, strings.TrimPrefix(itemID, domain.LocalTrackPrefix)
	case domain.IsAdItem(itemID):
		base, rel = r.adsDir, strings.TrimPrefix(itemID, domain.LocalAdPrefix)
	default:
		return "", domain.NewValidationError("item", itemID, "not a local item")
	}

	if base == "" {
		return "", domain.ErrBasePathUnset
	}
	if rel == "" {
		return "", domain.NewValidationError("item", itemID, "empty path")
	}

	root, err := filepath.Abs(base)
	if err != nil {
		return "", domain.NewValidationError("base", base, err.Error())
	}

	// Reject absolute and parent-relative paths after cleaning
	full := filepath.Join(root, filepath.FromSlash(rel))
	inside, err := filepath.Rel(root, full)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", domain.NewValidationError("item", itemID, "path escapes base directory")
	}
	if !IsFormatSupported(full) {
		return "", domain.NewValidationError("item", itemID, domain.ErrUnsupportedFormat.Error())
	}
	return full, nil
}

// Tracks walks the music directory and returns the item ids of every
// playable file, in lexical order.
func (r *Resolver) Tracks(ctx context.Context) ([]string, error) {
	return scan(ctx, r.musicDir, domain.LocalTrackPrefix)
}

// Ads walks the advertisement directory the same way Tracks does.
func (r *Resolver) Ads(ctx context.Context) ([]string, error) {
	return scan(ctx, r.adsDir, domain.LocalAdPrefix)
}

func scan(ctx context.Context, base, prefix string) ([]string, error) {
	if base == "" {
		return nil, domain.ErrBasePathUnset
	}
	root, err := filepath.Abs(base)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// A missing library is empty; other unreadable roots fail
			if path == root {
				if errors.Is(err, fs.ErrNotExist) {
					return fs.SkipAll
				}
				return err
			}
			return nil
		}
		if d.IsDir() || !IsFormatSupported(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		ids = append(ids, prefix+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

var _ ports.PathResolver = (*Resolver)(nil)

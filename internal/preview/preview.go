package preview

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Handle is a releasable preview resource for one submitted image.
type Handle interface {
	// URI locates the renderable preview (a file path for local previews).
	URI() string
}

// Provider creates and releases preview resources. Create and Release must
// pair exactly once per handle; the session store owns that pairing.
type Provider interface {
	Create(name string, data []byte) (Handle, error)
	Release(h Handle) error
}

type fileHandle struct {
	path string
}

func (h *fileHandle) URI() string {
	return h.path
}

// TempFileProvider materializes previews as files in a private temp directory.
type TempFileProvider struct {
	dir string
}

// NewTempFileProvider creates the backing temp directory.
func NewTempFileProvider() (*TempFileProvider, error) {
	dir, err := os.MkdirTemp("", "visual-tagger-previews")
	if err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}
	return &TempFileProvider{dir: dir}, nil
}

// Create writes the image data to a preview file.
func (p *TempFileProvider) Create(name string, data []byte) (Handle, error) {
	f, err := os.CreateTemp(p.dir, "preview-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create preview file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to write preview file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("failed to close preview file: %w", err)
	}
	return &fileHandle{path: f.Name()}, nil
}

// Release removes the preview file. Releasing an already-removed file is
// reported but not an error for the caller.
func (p *TempFileProvider) Release(h Handle) error {
	fh, ok := h.(*fileHandle)
	if !ok {
		return fmt.Errorf("unknown preview handle type %T", h)
	}
	if err := os.Remove(fh.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove preview file: %w", err)
	}
	return nil
}

// Close removes the backing directory and any remaining previews.
func (p *TempFileProvider) Close() error {
	if err := os.RemoveAll(p.dir); err != nil {
		log.Warn().Err(err).Str("dir", p.dir).Msg("failed to remove preview directory")
		return err
	}
	return nil
}

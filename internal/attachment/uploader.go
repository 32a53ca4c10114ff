// Package attachment defines the attachment object-storage sink the
// sync engine hands parsed attachments to, and a local filesystem
// implementation for development and single-node deployments (§4.4,
// §6: "attachment object-storage upload" is an out-of-scope external
// collaborator behind a single upload(bytes) -> url interface).
package attachment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
	"unicode"
)

// Uploader is the contract the orchestrator depends on: hand it bytes,
// get back a URL the mirrored Attachment record can store. Production
// deployments back this with a real object-storage SDK; only the
// interface is in scope here.
type Uploader interface {
	Upload(ctx context.Context, contentType, filename string, data []byte) (url string, err error)
}

// LocalUploader implements Uploader against a local directory tree,
// one file per upload under baseDir/yyyy-mm-dd/<random>-<filename>.
// Suitable for development or single-node deployments; anything
// multi-node should back Uploader with real object storage instead.
type LocalUploader struct {
	baseDir string
}

// NewLocalUploader returns a LocalUploader rooted at baseDir, creating
// it if necessary.
func NewLocalUploader(baseDir string) (*LocalUploader, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating attachment base dir: %w", err)
	}
	return &LocalUploader{baseDir: baseDir}, nil
}

func (u *LocalUploader) Upload(ctx context.Context, contentType, filename string, data []byte) (string, error) {
	dayDir := filepath.Join(u.baseDir, time.Now().UTC().Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return "", fmt.Errorf("creating attachment day dir: %w", err)
	}

	token, err := randomToken()
	if err != nil {
		return "", err
	}

	name := token + "-" + sanitizeFilename(filename)
	path := filepath.Join(dayDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing attachment: %w", err)
	}

	rel, err := filepath.Rel(u.baseDir, path)
	if err != nil {
		rel = path
	}
	return "file://" + filepath.ToSlash(rel), nil
}

func randomToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating upload token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// sanitizeFilename strips path separators, control characters, and
// platform-forbidden characters so an upstream-supplied filename can't
// escape baseDir or trip up a Windows host sharing the same volume.
func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	for _, c := range invalidFilenameChars() {
		name = strings.ReplaceAll(name, c, "_")
	}
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.Trim(name, " .")
	if len(name) > 200 {
		name = name[:200]
	}
	if name == "" {
		name = "unnamed"
	}
	return name
}

func invalidFilenameChars() []string {
	if runtime.GOOS == "windows" {
		return []string{"<", ">", ":", "\"", "|", "?", "*", "\\", "/", "\x00"}
	}
	return []string{"/", "\x00"}
}

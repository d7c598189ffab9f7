// internal/artifacts/store.go - screenshot storage
package artifacts

import (
    "context"
    "fmt"
    "os"
    "path"
    "path/filepath"
    "regexp"
    "time"

    "github.com/google/uuid"
)

// Store persists binary artifacts and returns a reference callers can resolve.
type Store interface {
    Save(ctx context.Context, name string, data []byte) (string, error)
}

// FilesystemStore writes artifacts under Dir. References are URLPrefix/name.
type FilesystemStore struct {
    Dir       string
    URLPrefix string
}

func NewFilesystemStore(dir, urlPrefix string) (*FilesystemStore, error) {
    if err := os.MkdirAll(dir, 0755); err != nil {
        return nil, fmt.Errorf("failed to create artifact directory: %w", err)
    }
    return &FilesystemStore{Dir: dir, URLPrefix: urlPrefix}, nil
}

func (s *FilesystemStore) Save(ctx context.Context, name string, data []byte) (string, error) {
    if err := ctx.Err(); err != nil {
        return "", err
    }
    if name != filepath.Base(name) {
        return "", fmt.Errorf("invalid artifact name %q", name)
    }

    // write then rename so readers never see a partial file
    tmp := filepath.Join(s.Dir, "."+name+".tmp")
    if err := os.WriteFile(tmp, data, 0644); err != nil {
        return "", fmt.Errorf("failed to write artifact: %w", err)
    }
    if err := os.Rename(tmp, filepath.Join(s.Dir, name)); err != nil {
        os.Remove(tmp)
        return "", fmt.Errorf("failed to store artifact: %w", err)
    }

    if s.URLPrefix == "" {
        return filepath.Join(s.Dir, name), nil
    }
    return path.Join(s.URLPrefix, name), nil
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// ScreenshotName derives a file name from the capture time and URL. The random
// suffix keeps concurrent captures of the same URL apart.
func ScreenshotName(now time.Time, rawURL string) string {
    sanitized := unsafeChars.ReplaceAllString(rawURL, "_")
    if len(sanitized) > 80 {
        sanitized = sanitized[:80]
    }
    return fmt.Sprintf("%d-%s-%s.png", now.UnixMilli(), sanitized, uuid.New().String()[:8])
}

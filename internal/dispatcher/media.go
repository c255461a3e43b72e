package dispatcher

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// writeTempPNG writes png to a uniquely-named file under dir (created if
// absent) so SendPhoto/EditMessageMedia have a path to hand the chat API;
// callers are responsible for removing it once the call returns.
func writeTempPNG(dir string, png []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("dispatcher: creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("screen-%d.png", time.Now().UnixNano()))
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("dispatcher: writing %s: %w", path, err)
	}
	return path, nil
}

package instance

import "os"

// GetID names this process in logs: STICKERLAB_INSTANCE_ID, else the host
// name, else "local".
func GetID() string {
	if id := os.Getenv("STICKERLAB_INSTANCE_ID"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "local"
}

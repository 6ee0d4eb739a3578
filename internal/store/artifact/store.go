// Package artifact mirrors packaged project outputs to durable storage.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store persists project artifacts keyed by (projectID, path).
type Store interface {
	Put(ctx context.Context, projectID, path string, content []byte) error
	Get(ctx context.Context, projectID, path string) ([]byte, error)
	// GetURL returns a download URL, or "" when the backend has none.
	GetURL(ctx context.Context, projectID, path string) (string, error)
	List(ctx context.Context, projectID string) ([]string, error)
}

var ErrNotFound = errors.New("artifact not found")

func normalize(projectID, path string) (string, string, error) {
	projectID = strings.TrimSpace(projectID)
	path = strings.TrimLeft(strings.TrimSpace(path), "/")
	if projectID == "" {
		return "", "", fmt.Errorf("artifact: project_id is required")
	}
	if path == "" {
		return "", "", fmt.Errorf("artifact: path is required")
	}
	return projectID, path, nil
}

func objectKey(projectID, path string) string {
	return strings.TrimSpace(projectID) + "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
}

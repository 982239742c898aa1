package storage

import (
	"context"
	"io"
	"path"

	"github.com/yoockh/veriview/internal/models"
)

// Mirror keeps a remote copy of retained session recordings. Objects of one
// session share the prefix sessions/<kind>/<id>/ so RemoveSession can drop
// them together.
type Mirror interface {
	Upload(ctx context.Context, object, contentType string, r io.Reader) (uri string, err error)
	DeletePrefix(ctx context.Context, prefix string) (removed int, err error)
}

// SessionObject is the mirror key of file inside a session directory.
func SessionObject(kind models.SessionKind, sessionID, file string) string {
	return path.Join("sessions", string(kind), sessionID, file)
}

func sessionPrefix(kind models.SessionKind, sessionID string) string {
	return path.Join("sessions", string(kind), sessionID) + "/"
}

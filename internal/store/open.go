package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Open builds a Counter for the named backend ("json" or "sqlite")
func Open(ctx context.Context, backend, path string, log logrus.FieldLogger) (*Counter, error) {
	switch backend {
	case "json":
		return NewCounter(NewFileBackend(path, log)), nil
	case "sqlite":
		b, err := OpenSQLiteBackend(ctx, path, log)
		if err != nil {
			return nil, err
		}
		return NewCounter(b), nil
	default:
		return nil, fmt.Errorf("unknown store backend '%s'", backend)
	}
}

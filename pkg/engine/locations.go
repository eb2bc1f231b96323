package engine

import (
	"context"
	"fmt"

	"github.com/arcafs/arca/internal/logger"
	"github.com/arcafs/arca/pkg/models"
)

// CreateLocation registers a storage location. The backend name must be one
// of the configured backend instances so every file the location will hold
// can actually be served.
func (e *Engine) CreateLocation(ctx context.Context, name, uri, backendName string, isDefault bool) (*models.Location, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: location URI must not be empty", models.ErrInvalidLocation)
	}
	if _, err := e.backends.Get(backendName); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidLocation, err)
	}

	loc := &models.Location{
		Name:           name,
		URI:            uri,
		IsDefault:      isDefault,
		StorageBackend: backendName,
	}
	if err := e.store.CreateLocation(ctx, loc); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "location created",
		"location", loc.Name,
		"backend", loc.StorageBackend,
		"default", loc.IsDefault)
	return loc, nil
}

// SetDefaultLocation makes the named location the default for new buckets.
func (e *Engine) SetDefaultLocation(ctx context.Context, name string) error {
	if err := e.store.SetDefaultLocation(ctx, name); err != nil {
		return err
	}
	logger.InfoCtx(ctx, "default location changed", "location", name)
	return nil
}

// GetLocation returns a location by name.
func (e *Engine) GetLocation(ctx context.Context, name string) (*models.Location, error) {
	return e.store.GetLocation(ctx, name)
}

// ListLocations returns all locations ordered by name.
func (e *Engine) ListLocations(ctx context.Context) ([]*models.Location, error) {
	return e.store.ListLocations(ctx)
}

// resolveLocation picks the location for a new bucket: the named one, or
// the default when the name is empty.
func (e *Engine) resolveLocation(ctx context.Context, name string) (*models.Location, error) {
	if name == "" {
		return e.store.GetDefaultLocation(ctx)
	}
	return e.store.GetLocation(ctx, name)
}

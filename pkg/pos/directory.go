package pos

import (
	"context"
	"fmt"

	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/telemetry"
)

// Location is one entry of the store directory.
type Location struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	APIKey      string            `json:"apiKey"`
	IsActive    bool              `json:"isActive"`
	ExternalIDs ExternalIDs       `json:"externalIds"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// ExternalIDs maps a location onto other systems.
type ExternalIDs struct {
	Store             string `json:"store"`
	BackofficeAccount string `json:"backofficeAccount"`
}

// Usable reports whether the location is active and has an API key.
func (l Location) Usable() bool {
	return l.IsActive && l.APIKey != ""
}

// Config converts the directory entry into the engine's location config.
func (l Location) Config() engine.LocationConfig {
	meta := make(map[string]string, len(l.Attributes))
	for k, v := range l.Attributes {
		meta[k] = v
	}
	return engine.LocationConfig{
		LocationID:        l.ID,
		ExternalStoreID:   l.ExternalIDs.Store,
		Name:              l.Name,
		APIKey:            l.APIKey,
		BackofficeAccount: l.ExternalIDs.BackofficeAccount,
		Metadata:          meta,
	}
}

// DirectoryClient reads the store directory.
type DirectoryClient struct {
	http   *httpClient
	logger *telemetry.Logger
}

// NewDirectoryClient creates a directory client.
func NewDirectoryClient(cfg Config) *DirectoryClient {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &DirectoryClient{
		http:   newHTTPClient("directory", cfg),
		logger: logger.NewComponentLogger("directory"),
	}
}

// ListLocations returns every directory entry, usable or not.
func (d *DirectoryClient) ListLocations(ctx context.Context) ([]Location, error) {
	var locations []Location
	if err := d.http.get(ctx, "/locations", nil, "", &locations); err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

// Resolve returns the active, credentialed locations in directory order.
// An empty result is engine.ErrNoLocations.
func (d *DirectoryClient) Resolve(ctx context.Context) ([]engine.LocationConfig, error) {
	all, err := d.ListLocations(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]engine.LocationConfig, 0, len(all))
	for _, l := range all {
		if !l.Usable() {
			d.logger.WithLocation(l.ID, l.Name).
				WithField("active", l.IsActive).
				Debug("skipping location")
			continue
		}
		out = append(out, l.Config())
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("directory returned %d locations, none usable: %w", len(all), engine.ErrNoLocations)
	}
	d.logger.WithFields(map[string]interface{}{
		"total":  len(all),
		"usable": len(out),
	}).Info("locations resolved")
	return out, nil
}

package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/posbridge/posbridge/pkg/backoffice"
	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/export"
	"github.com/posbridge/posbridge/pkg/telemetry"
)

// Config is the posbridge configuration file.
type Config struct {
	Backoffice BackofficeConfig `yaml:"backoffice"`
	POS        POSConfig        `yaml:"pos"`
	Directory  DirectoryConfig  `yaml:"directory"`
	ERP        ERPConfig        `yaml:"erp"`
	Store      StoreConfig      `yaml:"store"`
	Sync       SyncConfig       `yaml:"sync"`
	Export     ExportConfig     `yaml:"export"`

	// Locations is the static location list, used when no directory is configured.
	Locations []LocationConfig `yaml:"locations" validate:"dive"`

	// AWSRegion is used for awssm:// secret references and the S3 export sink.
	AWSRegion string `yaml:"aws_region"`

	Telemetry *telemetry.Config `yaml:"telemetry" validate:"-"`
}

// BackofficeConfig configures the backoffice API and its accounts.
type BackofficeConfig struct {
	BaseURL        string          `yaml:"base_url" validate:"required,url"`
	SessionTTL     time.Duration   `yaml:"session_ttl" validate:"gte=0"`
	RequestTimeout time.Duration   `yaml:"request_timeout" validate:"gte=0"`
	RetryDelay     time.Duration   `yaml:"retry_delay" validate:"gte=0"`
	DefaultAccount string          `yaml:"default_account"`
	Accounts       []AccountConfig `yaml:"accounts" validate:"required,min=1,dive"`
}

// AccountConfig is one backoffice login.
type AccountConfig struct {
	Name     string `yaml:"name" validate:"required"`
	Username string `yaml:"username" validate:"required_with=Password"`
	Password string `yaml:"password" validate:"required_with=Username"`
	Token    string `yaml:"token" validate:"required_without=Username"`
}

// POSConfig configures the POS reporting API.
type POSConfig struct {
	BaseURL        string        `yaml:"base_url" validate:"required,url"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
	RetryDelay     time.Duration `yaml:"retry_delay" validate:"gte=0"`
}

// DirectoryConfig configures the location directory.
type DirectoryConfig struct {
	URL   string `yaml:"url" validate:"omitempty,url"`
	Token string `yaml:"token"`
}

// ERPConfig configures the ERP push target. An empty base URL disables the push phase.
type ERPConfig struct {
	BaseURL        string        `yaml:"base_url" validate:"omitempty,url"`
	Token          string        `yaml:"token"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
}

// StoreConfig configures the SQLite store.
type StoreConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// SyncConfig configures the cycle schedule.
type SyncConfig struct {
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	DailyHour   int           `yaml:"daily_hour" validate:"gte=0,lte=23"`
	MaxParallel int           `yaml:"max_parallel" validate:"gte=1"`

	// Phases limits the cycle to the named phases. Empty means all.
	Phases []string `yaml:"phases"`
}

// ExportConfig configures the daily accounting export. With neither Dir nor
// S3.Bucket set the export is disabled.
type ExportConfig struct {
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`

	// ClosingReport adds backoffice closing-report rows to each file.
	ClosingReport bool `yaml:"closing_report"`

	Mapping export.Mapping `yaml:"mapping" validate:"-"`
}

// S3Config is the S3 destination of the export.
type S3Config struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`
}

// Enabled reports whether a destination is configured.
func (e ExportConfig) Enabled() bool {
	return e.Dir != "" || e.S3.Bucket != ""
}

// LocationConfig is a statically configured location.
type LocationConfig struct {
	ID                string            `yaml:"id" validate:"required"`
	ExternalStoreID   string            `yaml:"external_store_id"`
	Name              string            `yaml:"name"`
	APIKey            string            `yaml:"api_key" validate:"required"`
	BackofficeAccount string            `yaml:"backoffice_account"`
	Metadata          map[string]string `yaml:"metadata"`
}

// Engine converts the entry to the engine's location type.
func (l LocationConfig) Engine() engine.LocationConfig {
	meta := make(map[string]string, len(l.Metadata))
	for k, v := range l.Metadata {
		meta[k] = v
	}
	return engine.LocationConfig{
		LocationID:        l.ID,
		ExternalStoreID:   l.ExternalStoreID,
		Name:              l.Name,
		APIKey:            l.APIKey,
		BackofficeAccount: l.BackofficeAccount,
		Metadata:          meta,
	}
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Backoffice: BackofficeConfig{
			SessionTTL:     backoffice.DefaultSessionTTL,
			RequestTimeout: 30 * time.Second,
			RetryDelay:     2 * time.Second,
		},
		POS: POSConfig{
			RequestTimeout: 30 * time.Second,
			RetryDelay:     2 * time.Second,
		},
		ERP: ERPConfig{
			RequestTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Path: "posbridge.db",
		},
		Sync: SyncConfig{
			Interval:    15 * time.Minute,
			DailyHour:   2,
			MaxParallel: 1,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Validate checks struct tags and the rules that span sections.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Directory.URL == "" && len(c.Locations) == 0 {
		return fmt.Errorf("invalid config: either directory.url or locations must be set")
	}

	seen := make(map[string]bool, len(c.Backoffice.Accounts))
	for _, a := range c.Backoffice.Accounts {
		if seen[a.Name] {
			return fmt.Errorf("invalid config: backoffice account %q listed twice", a.Name)
		}
		seen[a.Name] = true
	}
	if c.Backoffice.DefaultAccount != "" && !seen[c.Backoffice.DefaultAccount] {
		return fmt.Errorf("invalid config: default backoffice account %q is not listed", c.Backoffice.DefaultAccount)
	}
	for _, l := range c.Locations {
		if l.BackofficeAccount != "" && !seen[l.BackofficeAccount] {
			return fmt.Errorf("invalid config: location %s uses unknown backoffice account %q", l.ID, l.BackofficeAccount)
		}
	}

	if _, err := c.SyncPhases(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Export.Enabled() {
		if err := v.Struct(c.Export.Mapping); err != nil {
			return fmt.Errorf("invalid config: export mapping: %w", err)
		}
	}

	if c.Telemetry != nil {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("invalid config: telemetry: %w", err)
		}
	}
	return nil
}

// SyncPhases returns the configured cycle phases in cycle order.
func (c *Config) SyncPhases() ([]engine.Phase, error) {
	if len(c.Sync.Phases) == 0 {
		return append([]engine.Phase(nil), engine.PhaseOrder...), nil
	}
	want := make(map[engine.Phase]bool, len(c.Sync.Phases))
	for _, name := range c.Sync.Phases {
		p, err := engine.ParsePhase(name)
		if err != nil {
			return nil, err
		}
		if p == engine.PhaseExport {
			return nil, fmt.Errorf("phase %q runs on the daily schedule, not in the cycle", name)
		}
		want[p] = true
	}
	phases := make([]engine.Phase, 0, len(want))
	for _, p := range engine.PhaseOrder {
		if want[p] {
			phases = append(phases, p)
		}
	}
	return phases, nil
}

// BackofficeAccounts converts the account list for backoffice.NewPool.
func (c *Config) BackofficeAccounts() []backoffice.Account {
	accounts := make([]backoffice.Account, 0, len(c.Backoffice.Accounts))
	for _, a := range c.Backoffice.Accounts {
		accounts = append(accounts, backoffice.Account{
			Name: a.Name,
			Credentials: backoffice.Credentials{
				Username:    a.Username,
				Password:    a.Password,
				StaticToken: a.Token,
			},
		})
	}
	return accounts
}

// StaticLocations converts the static location list.
func (c *Config) StaticLocations() []engine.LocationConfig {
	locs := make([]engine.LocationConfig, 0, len(c.Locations))
	for _, l := range c.Locations {
		locs = append(locs, l.Engine())
	}
	return locs
}

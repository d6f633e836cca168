package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teambition/rrule-go"
	"gopkg.in/yaml.v3"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	TransportGmail = "gmail"
	TransportSMTP  = "smtp"
	TransportLog   = "log"
)

// ShiftTemplate describes a recurring shift that createShiftSeries expands
type ShiftTemplate struct {
	Name          string        `yaml:"name" validate:"required"`
	RRule         string        `yaml:"rrule" validate:"required"`
	Duration      time.Duration `yaml:"duration" validate:"required,gt=0"`
	FacilityID    string        `yaml:"facilityID" validate:"required"`
	FacilityName  string        `yaml:"facilityName" validate:"required"`
	Place         string        `yaml:"place,omitempty"`
	ContactInfo   string        `yaml:"contactInfo,omitempty"`
	TaskID        string        `yaml:"taskID" validate:"required"`
	TaskName      string        `yaml:"taskName" validate:"required"`
	WorkplaceID   string        `yaml:"workplaceID,omitempty"`
	WorkplaceName string        `yaml:"workplaceName,omitempty" validate:"required_with=WorkplaceID"`
	Slots         int           `yaml:"slots,omitempty" validate:"omitempty,min=1"`
}

// SMTPConfig holds the SMTP server used when mail.transport is smtp
type SMTPConfig struct {
	Host     string `yaml:"host" validate:"required,hostname_rfc1123|ip"`
	Port     int    `yaml:"port" validate:"required,min=1,max=65535"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty" validate:"required_with=Username"`
	// TLS requires an encrypted connection instead of opportunistic STARTTLS
	TLS bool `yaml:"tls,omitempty"`
}

// MailConfig selects the mail transport and the addresses notifications use
type MailConfig struct {
	Transport         string      `yaml:"transport" validate:"required,oneof=gmail smtp log"`
	FromAddress       string      `yaml:"fromAddress" validate:"required,email"`
	NoReplyAddress    string      `yaml:"noReplyAddress" validate:"required,email"`
	OperationsAddress string      `yaml:"operationsAddress" validate:"required,email"`
	GmailUserID       string      `yaml:"gmailUserID,omitempty" validate:"required_if=Transport gmail"`
	SMTP              *SMTPConfig `yaml:"smtp,omitempty"`
}

// QueueConfig enables asynchronous mail delivery
type QueueConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size,omitempty" validate:"omitempty,min=1"`
	Workers int  `yaml:"workers,omitempty" validate:"omitempty,min=1,max=32"`
}

// NotificationConfig tunes the notification dispatcher
type NotificationConfig struct {
	Grace       time.Duration `yaml:"grace,omitempty" validate:"omitempty,gt=0"`
	SendTimeout time.Duration `yaml:"sendTimeout,omitempty" validate:"omitempty,gt=0"`
	DedupWindow time.Duration `yaml:"dedupWindow,omitempty" validate:"omitempty,gte=0"`
	CalendarDir string        `yaml:"calendarDir,omitempty"`
	Queue       QueueConfig   `yaml:"queue,omitempty"`
}

// Config represents the application configuration
type Config struct {
	Store          string             `yaml:"store" validate:"required,oneof=postgres memory"`
	DatabaseURL    string             `yaml:"databaseURL,omitempty" validate:"required_if=Store postgres"`
	Timezone       string             `yaml:"timezone,omitempty"`
	Mail           MailConfig         `yaml:"mail"`
	Notifications  NotificationConfig `yaml:"notifications,omitempty"`
	ShiftTemplates []ShiftTemplate    `yaml:"shiftTemplates,omitempty" validate:"dive"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Location returns the configured time zone, or time.Local when none is set
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		// Validate has already rejected unknown zones
		return time.Local
	}
	return loc
}

// ShiftTemplate returns the named template
func (c *Config) ShiftTemplate(name string) (*ShiftTemplate, error) {
	for i := range c.ShiftTemplates {
		if c.ShiftTemplates[i].Name == name {
			return &c.ShiftTemplates[i], nil
		}
	}
	return nil, fmt.Errorf("shift template %q not found", name)
}

// LoadWithEnv loads and validates volunteer_planner.<env>.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findFile(envFileName("volunteer_planner", env, "yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store == "" {
		cfg.Store = StorePostgres
	}
	if cfg.Notifications.CalendarDir == "" {
		cfg.Notifications.CalendarDir = "tmp_ics_files"
	}
	if cfg.Notifications.Queue.Enabled {
		if cfg.Notifications.Queue.Size == 0 {
			cfg.Notifications.Queue.Size = 100
		}
		if cfg.Notifications.Queue.Workers == 0 {
			cfg.Notifications.Queue.Workers = 1
		}
	}
}

// Validate validates the configuration struct, the time zone and the rrule syntax
func Validate(cfg *Config) error {
	// Run struct validation
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.Mail.Transport == TransportSMTP && cfg.Mail.SMTP == nil {
		return fmt.Errorf("config validation failed: mail.smtp is required when mail.transport is smtp")
	}

	if cfg.Timezone != "" {
		if _, err := time.LoadLocation(cfg.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
		}
	}

	seen := make(map[string]bool)
	for i, tmpl := range cfg.ShiftTemplates {
		if seen[tmpl.Name] {
			return fmt.Errorf("duplicate shift template name %q", tmpl.Name)
		}
		seen[tmpl.Name] = true

		if _, err := rrule.StrToRRule(tmpl.RRule); err != nil {
			return fmt.Errorf("invalid rrule in shiftTemplates[%d]: %w", i, err)
		}
	}

	return nil
}

func envFileName(base, env, ext string) string {
	if env == "" {
		return base + "." + ext
	}
	return base + "." + env + "." + ext
}

// findFile looks for name in the current directory, then in the user's home directory
func findFile(name string) (string, error) {
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homePath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homePath); err == nil {
		return homePath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}

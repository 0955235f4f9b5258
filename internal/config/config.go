package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"courtbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App            AppConfig              `yaml:"app"`
	Database       DatabaseConfig         `yaml:"database"`
	Redis          RedisConfig            `yaml:"redis"`
	Backup         BackupConfig           `yaml:"backup"`
	Monitoring     MonitoringConfig       `yaml:"monitoring"`
	Logging        LoggingConfig          `yaml:"logging"`
	API            APIConfig              `yaml:"api"`
	Booking        BookingConfig          `yaml:"booking"`
	Pricing        PricingConfig          `yaml:"pricing"`
	Schedule       ScheduleConfig         `yaml:"schedule"`
	Courts         []models.Court         `yaml:"courts"`
	Members        []models.Member        `yaml:"members"`
	PaymentMethods []models.PaymentMethod `yaml:"payment_methods"`
	Events         EventsConfig           `yaml:"events"`
	Exports        ExportConfig           `yaml:"exports"`
}

// BookingConfig holds the eligibility policy and wizard modes.
type BookingConfig struct {
	AdvanceWindowDays  int      `yaml:"advance_window_days"`
	RestrictedCourtIDs []string `yaml:"restricted_court_ids"`
	MaxGuests          int      `yaml:"max_guests_per_booking"`
	// BookingBlocked rejects every time pick (calendar disabled mode).
	BookingBlocked bool   `yaml:"booking_blocked"`
	ConfirmPage    bool   `yaml:"confirm_page"`
	Timezone       string `yaml:"timezone"`
	SessionTTL     int    `yaml:"session_ttl"`
	ConfirmLockTTL int    `yaml:"confirm_lock_ttl"`
	// SessionCreateLimit caps new sessions per client per SessionCreateWindow seconds.
	SessionCreateLimit  int `yaml:"session_create_limit"`
	SessionCreateWindow int `yaml:"session_create_window"`
}

type PricingConfig struct {
	Currency       string          `yaml:"currency"`
	Durations      []DurationPrice `yaml:"durations"`
	FallbackPrice  float64         `yaml:"fallback_price"`
	GuestFee       float64         `yaml:"guest_fee"`
	FeeRoles       []models.Role   `yaml:"fee_roles"`
	VATBasisPoints int64           `yaml:"vat_basis_points"`
}

type DurationPrice struct {
	Minutes int     `yaml:"minutes"`
	Price   float64 `yaml:"price"`
}

type ScheduleConfig struct {
	Open        string `yaml:"open"`
	Close       string `yaml:"close"`
	SlotMinutes int    `yaml:"slot_minutes"`
}

type EventsConfig struct {
	AMQPURL    string `yaml:"amqp_url"`
	Exchange   string `yaml:"exchange"`
	MaxRetries int    `yaml:"max_retries"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Sheet string `yaml:"sheet"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; variables may come from the environment directly
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Booking.AdvanceWindowDays < 0 {
		return errors.New("booking.advance_window_days must not be negative")
	}
	if c.Booking.SessionCreateLimit < 0 {
		return errors.New("booking.session_create_limit must not be negative")
	}
	if c.Booking.MaxGuests < 0 {
		return errors.New("booking.max_guests_per_booking must not be negative")
	}
	if c.Pricing.VATBasisPoints < 0 || c.Pricing.VATBasisPoints > 10000 {
		return fmt.Errorf("pricing.vat_basis_points out of range: %d", c.Pricing.VATBasisPoints)
	}
	for _, d := range c.Pricing.Durations {
		if d.Minutes <= 0 {
			return fmt.Errorf("pricing duration must be positive, got %d", d.Minutes)
		}
		if d.Price < 0 {
			return fmt.Errorf("pricing for %d minutes must not be negative", d.Minutes)
		}
	}
	for _, r := range c.Pricing.FeeRoles {
		if !r.Valid() {
			return fmt.Errorf("unknown fee role %q", r)
		}
	}
	if len(c.PaymentMethods) == 0 {
		return errors.New("at least one payment method is required")
	}

	if err := ValidateCourts(c.Courts); err != nil {
		return err
	}

	known := make(map[string]bool, len(c.Courts))
	for _, court := range c.Courts {
		known[court.ID] = true
	}
	for _, id := range c.Booking.RestrictedCourtIDs {
		if !known[id] {
			return fmt.Errorf("restricted court %q is not in the catalogue", id)
		}
	}

	open, err := models.ParseTimeOfDay(c.Schedule.Open)
	if err != nil {
		return fmt.Errorf("schedule.open: %w", err)
	}
	closeAt, err := models.ParseTimeOfDay(c.Schedule.Close)
	if err != nil {
		return fmt.Errorf("schedule.close: %w", err)
	}
	if closeAt <= open {
		return errors.New("schedule.close must be after schedule.open")
	}

	for _, m := range c.Members {
		if m.Role != models.RoleMember && m.Role != models.RoleGuest {
			return fmt.Errorf("member %q has invalid role %q", m.Name, m.Role)
		}
	}

	return nil
}

func ValidateCourts(courts []models.Court) error {
	if len(courts) == 0 {
		return errors.New("at least one court is required")
	}
	ids := make(map[string]bool)
	for _, court := range courts {
		if court.ID == "" {
			return fmt.Errorf("court '%s' has empty ID", court.Name)
		}
		if ids[court.ID] {
			return fmt.Errorf("duplicate court ID found: %s", court.ID)
		}
		ids[court.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "courtbook"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 3001
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Booking defaults
	if c.Booking.AdvanceWindowDays == 0 {
		c.Booking.AdvanceWindowDays = models.DefaultAdvanceWindowDays
	}
	if c.Booking.MaxGuests == 0 {
		c.Booking.MaxGuests = models.DefaultMaxGuests
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "Europe/Zurich"
	}
	if c.Booking.SessionTTL == 0 {
		c.Booking.SessionTTL = models.DefaultSessionTTL
	}
	if c.Booking.ConfirmLockTTL == 0 {
		c.Booking.ConfirmLockTTL = models.DefaultConfirmLockTTL
	}
	if c.Booking.SessionCreateWindow == 0 {
		c.Booking.SessionCreateWindow = 60
	}

	// Pricing defaults
	if c.Pricing.Currency == "" {
		c.Pricing.Currency = "CHF"
	}
	if len(c.Pricing.Durations) == 0 {
		c.Pricing.Durations = []DurationPrice{
			{Minutes: 60, Price: 25},
			{Minutes: 90, Price: 35},
			{Minutes: 120, Price: 45},
		}
	}
	if c.Pricing.FallbackPrice == 0 {
		c.Pricing.FallbackPrice = 25
	}
	if c.Pricing.GuestFee == 0 {
		c.Pricing.GuestFee = 5
	}
	if len(c.Pricing.FeeRoles) == 0 {
		c.Pricing.FeeRoles = []models.Role{models.RoleGuest}
	}
	if c.Pricing.VATBasisPoints == 0 {
		c.Pricing.VATBasisPoints = models.DefaultVATBasisPoints
	}

	if c.Schedule.Open == "" {
		c.Schedule.Open = models.DefaultOpenTime
	}
	if c.Schedule.Close == "" {
		c.Schedule.Close = models.DefaultCloseTime
	}
	if c.Schedule.SlotMinutes == 0 {
		c.Schedule.SlotMinutes = models.DefaultSlotMinutes
	}

	if len(c.Courts) == 0 {
		c.Courts = []models.Court{
			{ID: "court1", Name: "Court 1", SortOrder: 1, IsActive: true},
			{ID: "court2", Name: "Court 2", SortOrder: 2, IsActive: true},
			{ID: "court3", Name: "Court 3", SortOrder: 3, IsActive: true},
		}
	}

	if len(c.Members) == 0 {
		c.Members = []models.Member{
			{ID: "1", Name: "Edwin", Surname: "Jacob", Email: "edwin.jacob@example.com", Role: models.RoleMember},
			{ID: "2", Name: "Thomas", Surname: "Cook", Email: "thomas.cook@example.com", Role: models.RoleGuest},
			{ID: "3", Name: "Daniel", Surname: "Schweri", Role: models.RoleMember},
			{ID: "4", Name: "David", Surname: "Herzog", Role: models.RoleMember},
			{ID: "5", Name: "Tobias", Surname: "Nafzger", Role: models.RoleMember},
			{ID: "6", Name: "Maria", Surname: "Garcia", Email: "maria.garcia@example.com", Role: models.RoleGuest},
			{ID: "7", Name: "Carlos", Surname: "Rodriguez", Role: models.RoleMember},
		}
	}

	if len(c.PaymentMethods) == 0 {
		c.PaymentMethods = []models.PaymentMethod{
			{ID: "credit_card", Label: "Credit Card"},
			{ID: "paypal", Label: "PayPal"},
			{ID: "instant_payment", Label: "Instant Payment"},
			{ID: "invoice", Label: "Invoice"},
			{ID: "cash", Label: "Cash"},
		}
	}

	if c.Events.Exchange == "" {
		c.Events.Exchange = "courtbook.events"
	}
	if c.Events.MaxRetries == 0 {
		c.Events.MaxRetries = 5
	}
	if c.Exports.Sheet == "" {
		c.Exports.Sheet = "Bookings"
	}
}

// Parsed converts the opening window; Validate has already checked the values.
func (c ScheduleConfig) Parsed() models.Schedule {
	open, _ := models.ParseTimeOfDay(c.Open)
	closeAt, _ := models.ParseTimeOfDay(c.Close)
	return models.Schedule{Open: open, Close: closeAt, SlotMinutes: c.SlotMinutes}
}

// Location resolves the booking timezone, falling back to UTC.
func (c BookingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

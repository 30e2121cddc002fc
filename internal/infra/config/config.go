package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"expiry_notifier/internal/domain/account"
)

// ErrWindowUnset is returned when neither --window nor NOTIFY_WINDOW_DAYS gave a window.
var ErrWindowUnset = errors.New("window is not set: pass --window or NOTIFY_WINDOW_DAYS")

const (
	DefaultSubject          = "Accounts expiring soon - action required"
	DefaultLogRetentionDays = 7
	DefaultStatusFile       = "status/exitstatus.txt"
)

// AppConfig holds all configuration for the job.
type AppConfig struct {
	LogLevel    string `yaml:"log_level"`
	Environment string `yaml:"environment"`

	// WindowDays is the look-ahead window. Nil until the file, NOTIFY_WINDOW_DAYS or a flag sets it.
	WindowDays     *int   `yaml:"window_days"`
	CategoryMarker string `yaml:"category_marker"` // DN fragment that selects the account category, e.g. "OU=Contractors"
	ExcludeExpired bool   `yaml:"exclude_expired"`

	LDAP LDAPConfig `yaml:"ldap"`
	Mail MailConfig `yaml:"mail"`

	LogDir           string `yaml:"log_dir"`
	LogRetentionDays int    `yaml:"log_retention_days"`
	StatusFile       string `yaml:"status_file"`
	MetricsTextfile  string `yaml:"metrics_textfile"` // Optional node_exporter textfile target

	CronSpec string `yaml:"cron_spec"` // Used by the schedule command

	AlertTelegramToken  string `yaml:"alert_telegram_token"`
	AlertTelegramChatID int64  `yaml:"alert_telegram_chat_id"`
}

// LDAPConfig describes how to reach the directory.
type LDAPConfig struct {
	URL                string        `yaml:"url"`
	BindDN             string        `yaml:"bind_dn"`
	BindPassword       string        `yaml:"bind_password"`
	BaseDN             string        `yaml:"base_dn"`
	PageSize           uint32        `yaml:"page_size"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
}

// MailConfig describes the relay and the envelope of outgoing notifications.
type MailConfig struct {
	RelayHost       string `yaml:"relay_host"`
	RelayPort       int    `yaml:"relay_port"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	HelpdeskAddress string `yaml:"helpdesk_address"` // Contact shown in the email, and the default sender
	SenderAddress   string `yaml:"sender_address"`
	Subject         string `yaml:"subject"`

	InsecureSkipVerify bool `yaml:"insecure_skip_verify"` // Accept the relay's STARTTLS certificate without verification
}

func defaults() *AppConfig {
	return &AppConfig{
		LogLevel:         "info",
		Environment:      "development",
		LogDir:           "logs",
		LogRetentionDays: DefaultLogRetentionDays,
		StatusFile:       DefaultStatusFile,
		LDAP: LDAPConfig{
			PageSize: 500,
			Timeout:  30 * time.Second,
		},
		Mail: MailConfig{
			RelayPort: 25,
			Subject:   DefaultSubject,
		},
	}
}

// Load reads configuration from an optional YAML file (CONFIG_FILE), then from
// environment variables and .env file (if present). Environment wins over the file.
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CONFIG_FILE %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse CONFIG_FILE %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.Environment = strings.ToLower(cfg.Environment)
	if cfg.Mail.SenderAddress == "" {
		cfg.Mail.SenderAddress = cfg.Mail.HelpdeskAddress
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) error {
	setString(&cfg.LogLevel, "LOG_LEVEL")
	setString(&cfg.Environment, "ENVIRONMENT")
	setString(&cfg.CategoryMarker, "ACCOUNT_CATEGORY_MARKER")

	setString(&cfg.LDAP.URL, "LDAP_URL")
	setString(&cfg.LDAP.BindDN, "LDAP_BIND_DN")
	setString(&cfg.LDAP.BindPassword, "LDAP_BIND_PASSWORD")
	setString(&cfg.LDAP.BaseDN, "LDAP_BASE_DN")

	setString(&cfg.Mail.RelayHost, "SMTP_RELAY_HOST")
	setString(&cfg.Mail.Username, "SMTP_USERNAME")
	setString(&cfg.Mail.Password, "SMTP_PASSWORD")
	setString(&cfg.Mail.HelpdeskAddress, "HELPDESK_ADDRESS")
	setString(&cfg.Mail.SenderAddress, "SENDER_ADDRESS")
	setString(&cfg.Mail.Subject, "MAIL_SUBJECT")

	setString(&cfg.LogDir, "LOG_DIR")
	setString(&cfg.StatusFile, "STATUS_FILE")
	setString(&cfg.MetricsTextfile, "METRICS_TEXTFILE")
	setString(&cfg.CronSpec, "CRON_SPEC")
	setString(&cfg.AlertTelegramToken, "ALERT_TELEGRAM_TOKEN")

	if v := os.Getenv("NOTIFY_WINDOW_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid NOTIFY_WINDOW_DAYS: %w", err)
		}
		cfg.WindowDays = &days
	}

	if v := os.Getenv("SMTP_RELAY_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SMTP_RELAY_PORT: %w", err)
		}
		cfg.Mail.RelayPort = port
	}

	if v := os.Getenv("LOG_RETENTION_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid LOG_RETENTION_DAYS: %w", err)
		}
		cfg.LogRetentionDays = days
	}

	if v := os.Getenv("LDAP_PAGE_SIZE"); v != "" {
		size, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid LDAP_PAGE_SIZE: %w", err)
		}
		cfg.LDAP.PageSize = uint32(size)
	}

	if v := os.Getenv("LDAP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid LDAP_TIMEOUT: %w", err)
		}
		cfg.LDAP.Timeout = d
	}

	if v := os.Getenv("ALERT_TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid ALERT_TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.AlertTelegramChatID = id
	}

	var err error
	if cfg.LDAP.InsecureSkipVerify, err = boolEnv("LDAP_INSECURE_SKIP_VERIFY", cfg.LDAP.InsecureSkipVerify); err != nil {
		return err
	}
	if cfg.Mail.InsecureSkipVerify, err = boolEnv("SMTP_INSECURE_SKIP_VERIFY", cfg.Mail.InsecureSkipVerify); err != nil {
		return err
	}
	if cfg.ExcludeExpired, err = boolEnv("EXCLUDE_EXPIRED", cfg.ExcludeExpired); err != nil {
		return err
	}
	return nil
}

// Validate checks the deploy-time settings. The window is checked separately
// by ValidateWindow once command line overrides have been applied.
func (c *AppConfig) Validate() error {
	if c.LDAP.URL == "" {
		return fmt.Errorf("LDAP_URL is not set")
	}
	if c.LDAP.BaseDN == "" {
		return fmt.Errorf("LDAP_BASE_DN is not set")
	}
	if c.CategoryMarker == "" {
		return fmt.Errorf("ACCOUNT_CATEGORY_MARKER is not set")
	}
	if c.Mail.RelayHost == "" {
		return fmt.Errorf("SMTP_RELAY_HOST is not set")
	}
	if c.Mail.RelayPort <= 0 || c.Mail.RelayPort > 65535 {
		return fmt.Errorf("invalid SMTP_RELAY_PORT: %d", c.Mail.RelayPort)
	}
	if c.Mail.HelpdeskAddress == "" {
		return fmt.Errorf("HELPDESK_ADDRESS is not set")
	}
	if c.LogDir == "" {
		return fmt.Errorf("LOG_DIR is not set")
	}
	if c.StatusFile == "" {
		return fmt.Errorf("STATUS_FILE is not set")
	}
	if c.LogRetentionDays <= 0 {
		return fmt.Errorf("invalid LOG_RETENTION_DAYS: %d", c.LogRetentionDays)
	}
	if c.LDAP.Timeout <= 0 {
		return fmt.Errorf("invalid LDAP_TIMEOUT: %s", c.LDAP.Timeout)
	}
	if (c.AlertTelegramToken == "") != (c.AlertTelegramChatID == 0) {
		return fmt.Errorf("ALERT_TELEGRAM_TOKEN and ALERT_TELEGRAM_CHAT_ID must be set together")
	}
	return nil
}

// SetWindow overrides the window, e.g. from the command line.
func (c *AppConfig) SetWindow(days int) {
	c.WindowDays = &days
}

// Window returns the configured window, or 0 when none is set. Call
// ValidateWindow first.
func (c *AppConfig) Window() int {
	if c.WindowDays == nil {
		return 0
	}
	return *c.WindowDays
}

// ValidateWindow checks that a window has been provided and is in range.
func (c *AppConfig) ValidateWindow() error {
	if c.WindowDays == nil {
		return ErrWindowUnset
	}
	return account.ValidateWindow(*c.WindowDays)
}

// AlertsEnabled reports whether failure alerts go to Telegram.
func (c *AppConfig) AlertsEnabled() bool {
	return c.AlertTelegramToken != "" && c.AlertTelegramChatID != 0
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

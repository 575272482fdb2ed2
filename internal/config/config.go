// Package config reads the configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fintrack/backend/pkg/jobs"
	"github.com/fintrack/backend/pkg/recurrence"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

type Config struct {
	// HTTP server
	APIURL           string
	Port             string
	GinMode          string
	CORSAllowOrigins []string
	EnablePprof      bool

	// Logging
	LogFormat string
	LogLevel  string

	// Database
	DatabaseDSN string

	// AMQP. An empty URL uses the in-process bus and logs notifications.
	AMQPURL      string
	AMQPExchange string

	// Insights. An empty API key disables insights.
	GeminiAPIKey string
	GeminiModel  string

	// Schedules
	RecurringSchedule     string
	BudgetAlertSchedule   string
	MonthlyReportSchedule string

	// Ledger
	ThrottleLimit        int
	ThrottlePeriod       time.Duration
	ApplyTimeout         time.Duration
	ApplyMaxAttempts     int
	BudgetAlertThreshold decimal.Decimal
	RecurringAnchor      string
	ReportLocale         string

	// errs collects values that could not be parsed
	errs []error
}

// Load reads the configuration from the environment. Variables set in a .env
// file in the working directory are loaded first but do not override the
// environment.
func Load() *Config {
	_ = godotenv.Load()

	c := &Config{}
	schedules := jobs.DefaultSchedules()

	c.APIURL = getEnv("API_URL", "")
	c.Port = getEnv("PORT", "8080")
	c.GinMode = getEnv("GIN_MODE", "release")
	c.CORSAllowOrigins = getEnvList("CORS_ALLOW_ORIGINS", []string{"http://localhost:3000"})
	c.EnablePprof = c.getEnvBool("ENABLE_PPROF", false)

	c.LogFormat = getEnv("LOG_FORMAT", "")
	c.LogLevel = getEnv("LOG_LEVEL", "")

	c.DatabaseDSN = getEnv("DATABASE_DSN", "data/fintrack.db")

	c.AMQPURL = getEnv("AMQP_URL", "")
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", "fintrack")

	c.GeminiAPIKey = getEnv("GEMINI_API_KEY", "")
	c.GeminiModel = getEnv("GEMINI_MODEL", "gemini-2.0-flash")

	c.RecurringSchedule = getEnv("RECURRING_SCHEDULE", schedules.RecurringTransactions)
	c.BudgetAlertSchedule = getEnv("BUDGET_ALERT_SCHEDULE", schedules.BudgetAlerts)
	c.MonthlyReportSchedule = getEnv("MONTHLY_REPORT_SCHEDULE", schedules.MonthlyReports)

	c.ThrottleLimit = c.getEnvInt("THROTTLE_LIMIT", 10)
	c.ThrottlePeriod = c.getEnvDuration("THROTTLE_PERIOD", time.Minute)
	c.ApplyTimeout = c.getEnvDuration("APPLY_TIMEOUT", 30*time.Second)
	c.ApplyMaxAttempts = c.getEnvInt("APPLY_MAX_ATTEMPTS", 3)
	c.BudgetAlertThreshold = c.getEnvDecimal("BUDGET_ALERT_THRESHOLD", decimal.NewFromInt(80))
	c.RecurringAnchor = getEnv("RECURRING_ANCHOR", "now")
	c.ReportLocale = getEnv("REPORT_LOCALE", "en")

	return c
}

// Validate checks the configuration and returns all problems at once.
func (c *Config) Validate() error {
	errs := append([]error{}, c.errs...)

	if port, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.APIURL != "" {
		if _, err := url.ParseRequestURI(c.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid API_URL '%s': %w", c.APIURL, err))
		}
	}

	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid log level '%s': %w", c.LogLevel, err))
		}
	}

	if c.LogFormat != "" && c.LogFormat != "human" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log format '%s': must be one of [human json]", c.LogFormat))
	}

	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN cannot be empty"))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			errs = append(errs, fmt.Errorf("invalid AMQP URL: %w", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			errs = append(errs, fmt.Errorf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}

		if c.AMQPExchange == "" {
			errs = append(errs, errors.New("AMQP exchange name cannot be empty when AMQP URL is provided"))
		}
	}

	for name, schedule := range map[string]string{
		"RECURRING_SCHEDULE":      c.RecurringSchedule,
		"BUDGET_ALERT_SCHEDULE":   c.BudgetAlertSchedule,
		"MONTHLY_REPORT_SCHEDULE": c.MonthlyReportSchedule,
	} {
		if _, err := cron.ParseStandard(schedule); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s '%s': %w", name, schedule, err))
		}
	}

	if c.ThrottleLimit < 1 {
		errs = append(errs, fmt.Errorf("invalid throttle limit %d: must be at least 1", c.ThrottleLimit))
	}

	if c.ThrottlePeriod < 0 {
		errs = append(errs, fmt.Errorf("invalid throttle period %v: must not be negative", c.ThrottlePeriod))
	}

	if c.ApplyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("invalid apply timeout %v: must be positive", c.ApplyTimeout))
	}

	if c.ApplyMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("invalid apply max attempts %d: must be at least 1", c.ApplyMaxAttempts))
	}

	if !c.BudgetAlertThreshold.IsPositive() || c.BudgetAlertThreshold.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("invalid budget alert threshold %s: must be greater than 0 and at most 100", c.BudgetAlertThreshold))
	}

	if _, err := recurrence.ParseAnchorPolicy(c.RecurringAnchor); err != nil {
		errs = append(errs, err)
	}

	if _, err := language.Parse(c.ReportLocale); err != nil {
		errs = append(errs, fmt.Errorf("invalid report locale '%s': %w", c.ReportLocale, err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}

	return nil
}

// Anchor returns the parsed anchor policy. It must only be called on a valid
// configuration.
func (c *Config) Anchor() recurrence.AnchorPolicy {
	anchor, _ := recurrence.ParseAnchorPolicy(c.RecurringAnchor)
	return anchor
}

// Schedules returns the configured cron schedules.
func (c *Config) Schedules() jobs.Schedules {
	return jobs.Schedules{
		RecurringTransactions: c.RecurringSchedule,
		BudgetAlerts:          c.BudgetAlertSchedule,
		MonthlyReports:        c.MonthlyReportSchedule,
	}
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}

	var list []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func (c *Config) getEnvInt(key string, defaultValue int) int {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}

	i, err := strconv.Atoi(value)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("invalid %s '%s': must be a number", key, value))
		return defaultValue
	}
	return i
}

func (c *Config) getEnvBool(key string, defaultValue bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("invalid %s '%s': must be a boolean", key, value))
		return defaultValue
	}
	return b
}

func (c *Config) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}

	d, err := time.ParseDuration(value)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("invalid %s '%s': must be a duration", key, value))
		return defaultValue
	}
	return d
}

func (c *Config) getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}

	d, err := decimal.NewFromString(value)
	if err != nil {
		c.errs = append(c.errs, fmt.Errorf("invalid %s '%s': must be a number", key, value))
		return defaultValue
	}
	return d
}

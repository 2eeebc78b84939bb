package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Provider      ProviderSettings    `mapstructure:"multisafepay"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	SessionSecret     string        `mapstructure:"session_secret"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ProviderSettings is the per-installation MultiSafepay configuration. The
// boolean method flags are named fields on purpose: a typo in a settings key
// must fail at load time, not silently disable a payment method.
type ProviderSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	Endpoint   string `mapstructure:"endpoint"`
	APIUser    string `mapstructure:"api_user"`
	APIPass    string `mapstructure:"api_pass"`
	CustomerID string `mapstructure:"customer_id"`
	TerminalID string `mapstructure:"terminal_id"`

	// Card brand and wallet flags; credit card only surfaces when at least
	// one of these is on.
	MethodVisa       bool `mapstructure:"method_visa"`
	MethodMastercard bool `mapstructure:"method_mastercard"`
	MethodAmex       bool `mapstructure:"method_amex"`
	MethodApplePay   bool `mapstructure:"method_applepay"`
	MethodGooglePay  bool `mapstructure:"method_googlepay"`

	MethodWero       bool `mapstructure:"method_wero"`
	MethodBancontact bool `mapstructure:"method_bancontact"`
	MethodEPS        bool `mapstructure:"method_eps"`
	MethodGiropay    bool `mapstructure:"method_giropay"`
	MethodIdeal      bool `mapstructure:"method_ideal"`
	MethodPaydirekt  bool `mapstructure:"method_paydirekt"`
	MethodPaypal     bool `mapstructure:"method_paypal"`
	MethodSEPADebit  bool `mapstructure:"method_sepadebit"`
	MethodSofort     bool `mapstructure:"method_sofort"`
	MethodPrzelewy   bool `mapstructure:"method_przelewy"`
}

const (
	EndpointLive = "live"
	EndpointTest = "test"
)

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

// LoadConfigFromEnv builds the configuration from environment variables for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			BaseURL:           getEnv("SERVER_BASE_URL", "http://localhost:8080"),
			SessionSecret:     getEnv("SERVER_SESSION_SECRET", ""),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       60 * time.Second,
			WriteTimeout:      30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			Source:          getEnv("DB_SOURCE", ""),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
		Provider: ProviderSettings{
			Enabled:          getEnvAsBool("MSP_ENABLED", false),
			Endpoint:         getEnv("MSP_ENDPOINT", EndpointTest),
			APIUser:          getEnv("MSP_API_USER", ""),
			APIPass:          getEnv("MSP_API_PASS", ""),
			CustomerID:       getEnv("MSP_CUSTOMER_ID", ""),
			TerminalID:       getEnv("MSP_TERMINAL_ID", ""),
			MethodVisa:       getEnvAsBool("MSP_METHOD_VISA", false),
			MethodMastercard: getEnvAsBool("MSP_METHOD_MASTERCARD", false),
			MethodAmex:       getEnvAsBool("MSP_METHOD_AMEX", false),
			MethodApplePay:   getEnvAsBool("MSP_METHOD_APPLEPAY", false),
			MethodGooglePay:  getEnvAsBool("MSP_METHOD_GOOGLEPAY", false),
			MethodWero:       getEnvAsBool("MSP_METHOD_WERO", false),
			MethodBancontact: getEnvAsBool("MSP_METHOD_BANCONTACT", false),
			MethodEPS:        getEnvAsBool("MSP_METHOD_EPS", false),
			MethodGiropay:    getEnvAsBool("MSP_METHOD_GIROPAY", false),
			MethodIdeal:      getEnvAsBool("MSP_METHOD_IDEAL", false),
			MethodPaydirekt:  getEnvAsBool("MSP_METHOD_PAYDIREKT", false),
			MethodPaypal:     getEnvAsBool("MSP_METHOD_PAYPAL", false),
			MethodSEPADebit:  getEnvAsBool("MSP_METHOD_SEPADEBIT", false),
			MethodSofort:     getEnvAsBool("MSP_METHOD_SOFORT", false),
			MethodPrzelewy:   getEnvAsBool("MSP_METHOD_PRZELEWY", false),
		},
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Provider.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("multisafepay config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port: %d", s.Port)
	}
	if s.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.Parse(s.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if len(s.SessionSecret) < 32 {
		return errors.New("session_secret must be at least 32 characters")
	}
	return nil
}

func (d *DatabaseConfig) Validate() error {
	if d.Source == "" {
		return errors.New("source is required")
	}
	if d.MaxOpenConns < 1 || d.MaxIdleConns < 1 {
		return errors.New("connection pool sizes must be at least 1")
	}
	return nil
}

func (p *ProviderSettings) Validate() error {
	if !p.Enabled {
		return nil
	}
	if p.Endpoint != EndpointLive && p.Endpoint != EndpointTest {
		return fmt.Errorf("endpoint must be %q or %q, got %q", EndpointLive, EndpointTest, p.Endpoint)
	}
	if p.APIUser == "" || p.APIPass == "" {
		return errors.New("api_user and api_pass are required")
	}
	if p.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if p.TerminalID == "" {
		return errors.New("terminal_id is required")
	}
	return nil
}

// TestMode reports whether the provider points at the sandbox environment.
func (p *ProviderSettings) TestMode() bool {
	return p.Endpoint == EndpointTest
}

// TestModeMessage returns the banner text shown in checkout for sandbox
// installations, or an empty string in live mode.
func (p *ProviderSettings) TestModeMessage() string {
	if p.TestMode() {
		return "The MultiSafepay plugin is operating in test mode. No money will actually be transferred."
	}
	return ""
}

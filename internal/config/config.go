package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Aadhaar  AadhaarConfig  `yaml:"aadhaar"`
	AA       AAConfig       `yaml:"aa"`
	GST      GSTConfig      `yaml:"gst"`
	BBPS     BBPSConfig     `yaml:"bbps"`
	JWS      JWSConfig      `yaml:"jws"`
	Scoring  ScoringConfig  `yaml:"scoring"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AadhaarConfig struct {
	AUACode          string `yaml:"aua_code"`
	SubAUA           string `yaml:"sub_aua"`
	LicenseKey       string `yaml:"license_key"`
	AuthBaseURL      string `yaml:"auth_base_url"`
	PublicKeyPath    string `yaml:"public_key_path"`
	TestOTP          string `yaml:"test_otp"`
	JWTSecret        string `yaml:"jwt_secret"`
	TokenTTLMinutes  int    `yaml:"token_ttl_minutes"`
	LockoutMinutes   int    `yaml:"lockout_minutes"`
	MaxAttempts      int    `yaml:"max_attempts"`
	UpstreamTimeoutS int    `yaml:"upstream_timeout_seconds"`
}

type AAConfig struct {
	BaseURL         string `yaml:"base_url"`
	ClientAPIKey    string `yaml:"client_api_key"`
	FIUEntityID     string `yaml:"fiu_entity_id"`
	RequestTimeoutS int    `yaml:"request_timeout_seconds"`
	PrivateKeyPath  string `yaml:"private_key_path"`
	SigningKeyID    string `yaml:"signing_key_id"`
	FallbackSecret  string `yaml:"fallback_secret"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
}

type GSTConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	UpstreamTimeoutS int    `yaml:"upstream_timeout_seconds"`
}

type BBPSConfig struct {
	BaseURL          string `yaml:"base_url"`
	APIKey           string `yaml:"api_key"`
	UpstreamTimeoutS int    `yaml:"upstream_timeout_seconds"`
}

type JWSConfig struct {
	KeyID          string `yaml:"key_id"`
	FallbackSecret string `yaml:"fallback_secret"`
}

type ScoringConfig struct {
	QuizSeed int64 `yaml:"quiz_seed"`
}

// IsProduction reports whether the process runs with production semantics:
// no degraded fallbacks, no dev sentinels.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// LoadConfig reads the YAML config at path and applies environment
// overrides on top.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config suitable for local development when no YAML file
// is present. Environment overrides still apply.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyEnv() {
	envString(&c.Server.Port, "PORT")
	envString(&c.Server.Env, "APP_ENV")
	envString(&c.Database.URL, "DATABASE_URL")
	envString(&c.Redis.Addr, "REDIS_ADDR")
	envString(&c.Redis.Password, "REDIS_PASSWORD")
	envInt(&c.Redis.DB, "REDIS_DB")

	envString(&c.Aadhaar.AUACode, "UIDAI_AUA_CODE")
	envString(&c.Aadhaar.SubAUA, "UIDAI_SUB_AUA")
	envString(&c.Aadhaar.LicenseKey, "UIDAI_LICENSE_KEY")
	envString(&c.Aadhaar.AuthBaseURL, "UIDAI_AUTH_URL")
	envString(&c.Aadhaar.PublicKeyPath, "UIDAI_PUBLIC_KEY_PATH")
	envString(&c.Aadhaar.TestOTP, "AADHAAR_TEST_OTP")
	envString(&c.Aadhaar.JWTSecret, "JWT_SECRET")

	envString(&c.AA.BaseURL, "AA_BASE_URL")
	envString(&c.AA.ClientAPIKey, "AA_CLIENT_API_KEY")
	envString(&c.AA.FIUEntityID, "AA_FIU_ENTITY_ID")
	envString(&c.AA.PrivateKeyPath, "AA_PRIVATE_KEY_PATH")
	envString(&c.AA.SigningKeyID, "AA_SIGNING_KEY_ID")
	envString(&c.AA.FallbackSecret, "AA_FALLBACK_SECRET")

	envString(&c.GST.BaseURL, "GSP_BASE_URL")
	envString(&c.GST.APIKey, "GSP_API_KEY")
	envString(&c.BBPS.BaseURL, "BBPS_BASE_URL")
	envString(&c.BBPS.APIKey, "BBPS_API_KEY")
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Aadhaar.TestOTP == "" {
		c.Aadhaar.TestOTP = "123456"
	}
	if c.Aadhaar.JWTSecret == "" {
		c.Aadhaar.JWTSecret = "dev-jwt-secret"
	}
	if c.AA.FallbackSecret == "" {
		c.AA.FallbackSecret = "dev-jws-secret"
	}
	if c.JWS.KeyID == "" {
		c.JWS.KeyID = c.AA.SigningKeyID
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

package config

import (
	"encoding/json"
	"os"

	"github.com/lexivault/lexivault/internal/flagx"
	"github.com/lexivault/lexivault/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted. Only
// fields present in the file override the current values.
type JsonConfig struct {
	HTTPAddr string `json:"http_addr"`
	GRPCAddr string `json:"grpc_addr"`
	DataDir  string `json:"data_dir"`

	StoreBackend   string `json:"store_backend"`
	DatabaseDSN    string `json:"database_dsn"`
	RedisURL       string `json:"redis_url"`
	RedisKey       string `json:"redis_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Key          string `json:"s3_key"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`

	JWTSecret       string          `json:"jwt_secret"`
	JWTAlgorithm    string          `json:"jwt_algorithm"`
	JWTIssuer       string          `json:"jwt_issuer"`
	AccessTokenTTL  *timex.Duration `json:"access_token_ttl"`
	RefreshSalt     string          `json:"refresh_salt"`
	RefreshTokenTTL *timex.Duration `json:"refresh_token_ttl"`
	PasswordPepper  string          `json:"password_pepper"`

	CookieSecure   *bool  `json:"cookie_secure"`
	CookieSameSite string `json:"cookie_samesite"`
	CookieDomain   string `json:"cookie_domain"`

	SweepInterval       *timex.Duration `json:"sweep_interval"`
	HealthProbeInterval *timex.Duration `json:"health_probe_interval"`

	LogFormat string `json:"log_format"`
	LogLevel  string `json:"log_level"`
}

// parseJson loads the file named by -c/-config, if any, into config. An
// unreadable or invalid file panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.GRPCAddr, c.GRPCAddr)
	setString(&config.DataDir, c.DataDir)

	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.RedisKey, c.RedisKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Key, c.S3Key)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)

	setString(&config.JWTSecret, c.JWTSecret)
	setString(&config.JWTAlgorithm, c.JWTAlgorithm)
	setString(&config.JWTIssuer, c.JWTIssuer)
	setString(&config.RefreshSalt, c.RefreshSalt)
	setString(&config.PasswordPepper, c.PasswordPepper)
	if c.AccessTokenTTL != nil {
		config.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	if c.RefreshTokenTTL != nil {
		config.RefreshTokenTTL = c.RefreshTokenTTL.Duration
	}

	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	setString(&config.CookieSameSite, c.CookieSameSite)
	setString(&config.CookieDomain, c.CookieDomain)

	if c.SweepInterval != nil {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.HealthProbeInterval != nil {
		config.HealthProbeInterval = c.HealthProbeInterval.Duration
	}

	setString(&config.LogFormat, c.LogFormat)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

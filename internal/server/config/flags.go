package config

import (
	"flag"
	"os"

	"github.com/lexivault/lexivault/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string        HTTP bind address (e.g., ":8000")
//	-grpc string     gRPC bind address (e.g., ":50051")
//	-data string     data directory
//	-store string    token store backend: file, redis, s3, postgres
//	-dsn string      PostgreSQL DSN
//	-redis string    Redis URL
//	-s string        JWT HMAC secret
//	-t duration      access token lifetime (e.g., "15m")
//	-r duration      refresh token lifetime (e.g., "720h")
//	-sweep duration  expired token sweep interval, 0 disables
//	-log-level string
//
// Only these flags are parsed; the rest of os.Args is left for other loaders.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-grpc", "-data", "-store", "-dsn", "-redis", "-s", "-t", "-r", "-sweep", "-log-level",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP address and port")
	fs.StringVar(&config.GRPCAddr, "grpc", config.GRPCAddr, "gRPC address and port")
	fs.StringVar(&config.DataDir, "data", config.DataDir, "data directory")
	fs.StringVar(&config.StoreBackend, "store", config.StoreBackend, "token store backend")
	fs.StringVar(&config.DatabaseDSN, "dsn", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisURL, "redis", config.RedisURL, "redis URL")
	fs.StringVar(&config.JWTSecret, "s", config.JWTSecret, "JWT secret key")
	fs.DurationVar(&config.AccessTokenTTL, "t", config.AccessTokenTTL, "access token lifetime")
	fs.DurationVar(&config.RefreshTokenTTL, "r", config.RefreshTokenTTL, "refresh token lifetime")
	fs.DurationVar(&config.SweepInterval, "sweep", config.SweepInterval, "expired token sweep interval")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}

package config // package config loads application configuration from environment variables

import (
	"log"     // log is used to report configuration errors and halt execution
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Token secrets are required: the service must not
// start without them, since every protected route depends on signature
// verification.
type Config struct {
	Env              string // application environment (e.g. "dev", "production")
	Port             string // HTTP port to listen on
	DBUser           string // database username
	DBPass           string // database password (optional)
	DBHost           string // database host address
	DBPort           string // database port number
	DBName           string // database name
	JWTSecret        string // secret used to sign access tokens
	JWTRefreshSecret string // distinct secret used to sign refresh tokens
	AccessTTLMin     int    // access token time-to-live in minutes
	RefreshTTLDays   int    // refresh token time-to-live in days
	BcryptCost       int    // bcrypt cost for password hashing
	UploadDir        string // root directory for uploaded files
	LoginMaxAttempts int    // failed login attempts allowed per window
	LoginWindowMin   int    // login attempt window in minutes
}

// Load reads configuration values from environment variables and returns a
// Config.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.  Tunables fall back
// to the defaults the mobile clients were built against.
func Load() Config {
	return Config{
		Env:              envStr("APP_ENV", "dev"),
		Port:             envStr("PORT", "4000"),
		DBUser:           must("DB_USER"),
		DBPass:           os.Getenv("DB_PASS"), // empty allowed
		DBHost:           must("DB_HOST"),
		DBPort:           envStr("DB_PORT", "3306"),
		DBName:           must("DB_NAME"),
		JWTSecret:        must("JWT_SECRET"),
		JWTRefreshSecret: must("JWT_REFRESH_SECRET"),
		AccessTTLMin:     envInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays:   envInt("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:       envInt("BCRYPT_COST", 10),
		UploadDir:        envStr("UPLOAD_DIR", "uploads"),
		LoginMaxAttempts: envInt("LOGIN_MAX_ATTEMPTS", 5),
		LoginWindowMin:   envInt("LOGIN_WINDOW_MIN", 15),
	}
}

// IsProduction reports whether the service runs with production settings.
// It controls the Secure attribute on the refresh token cookie.
func (c Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, v)
	}
	return n
}

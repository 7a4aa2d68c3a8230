package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     int
	RedisPassword string

	// JWT
	JWTSecret      string
	JWTExpireHours int

	// API
	APIPort    int
	AppVersion string

	// Cloud registry (packages API)
	RegistryBaseURL string
	CloudAccessKey  string
	CloudSecretKey  string

	// Storage layout
	StorageRoot string // addons, backups, migrations live under here
	PublicRoot  string // exposed addon assets (symlinks) live under here

	// Danger-zone gates. Both must be on for snapshot/restore operations.
	DeveloperMode bool
	DebugMode     bool
}

// AddonsDir returns the directory addon code is installed into.
func (c *Config) AddonsDir() string {
	return filepath.Join(c.StorageRoot, "addons")
}

// BackupsDir returns the directory snapshot files are written to.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.StorageRoot, "backups")
}

// MigrationsDir returns the directory holding core SQL migrations.
func (c *Config) MigrationsDir() string {
	return filepath.Join(c.StorageRoot, "migrations")
}

// generateSecureSecret generates a cryptographically secure random secret
func generateSecureSecret(length int) string {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return hex.EncodeToString([]byte(os.Getenv("HOSTNAME") + string(rune(length))))
	}
	return hex.EncodeToString(bytes)
}

func Load() *Config {
	// JWT Secret - generate random if not provided
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = generateSecureSecret(32)
		log.Println("WARNING: JWT_SECRET not set - generated random secret. Sessions will not persist across restarts.")
	}

	dbPassword := getEnv("DATABASE_PASSWORD", "")
	if dbPassword == "" {
		log.Println("WARNING: DATABASE_PASSWORD not set - this is insecure for production!")
	}

	return &Config{
		// Database
		DBHost:     getEnv("DATABASE_HOST", "127.0.0.1"),
		DBPort:     getEnvInt("DATABASE_PORT", 3306),
		DBUser:     getEnv("DATABASE_USER", "featherpanel"),
		DBPassword: dbPassword,
		DBName:     getEnv("DATABASE_DATABASE", "featherpanel"),

		// Redis
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnvInt("REDIS_PORT", 6379),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		// JWT
		JWTSecret:      jwtSecret,
		JWTExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 168), // 7 days default

		// API
		APIPort:    getEnvInt("API_PORT", 8080),
		AppVersion: getEnv("APP_VERSION", "v1.0.0"),

		// Cloud registry
		RegistryBaseURL: getEnv("REGISTRY_BASE_URL", "https://api.featherpanel.com"),
		CloudAccessKey:  getEnv("CLOUD_ACCESS_KEY", ""),
		CloudSecretKey:  getEnv("CLOUD_SECRET_KEY", ""),

		// Storage
		StorageRoot: getEnv("STORAGE_ROOT", "/var/lib/featherpanel/storage"),
		PublicRoot:  getEnv("PUBLIC_ROOT", "/var/lib/featherpanel/public"),

		// Gates
		DeveloperMode: getEnvBool("APP_DEVELOPER_MODE", false),
		DebugMode:     getEnvBool("APP_DEBUG", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

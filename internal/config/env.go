package config

import (
	"log"

	"github.com/spf13/viper"
)

// Load reads .env and binds environment variables to the dotted keys used
// across the application.
func Load() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	bindings := map[string]string{
		"database.host":                 "DATABASE_HOST",
		"database.port":                 "DATABASE_PORT",
		"database.user":                 "DATABASE_USER",
		"database.password":             "DATABASE_PASSWORD",
		"database.name":                 "DATABASE_NAME",
		"database.ssl_mode":             "DATABASE_SSL_MODE",
		"redis.host":                    "REDIS_HOST",
		"redis.port":                    "REDIS_PORT",
		"redis.password":                "REDIS_PASSWORD",
		"redis.db":                      "REDIS_DB",
		"jwt.secret_key":                "JWT_SECRET_KEY",
		"jwt.expiry_hours":              "JWT_EXPIRY_HOURS",
		"argon2.time":                   "ARGON2_TIME",
		"argon2.memory":                 "ARGON2_MEMORY",
		"argon2.threads":                "ARGON2_THREADS",
		"argon2.key_length":             "ARGON2_KEY_LENGTH",
		"argon2.salt_length":            "ARGON2_SALT_LENGTH",
		"lending.loan_period_days":      "LOAN_PERIOD_DAYS",
		"lending.fine_rate_per_day":     "FINE_RATE_PER_DAY",
		"lending.currency":              "FINE_CURRENCY",
		"lending.payment_reference_ttl": "PAYMENT_REFERENCE_TTL",
		"log.level":                     "LOG_LEVEL",
		"log.format":                    "LOG_FORMAT",
		"lending.payment_creditor_name": "PAYMENT_CREDITOR_NAME",
		"lending.payment_creditor_bic":  "PAYMENT_CREDITOR_BIC",
		"payment.callback_token":        "PAYMENT_CALLBACK_TOKEN",
		"server.port":                   "PORT",
		"server.cors_origins":           "CORS_ORIGINS",
		"server.cover_dir":              "COVER_DIR",
		"server.openapi_path":           "OPENAPI_PATH",
	}
	for key, env := range bindings {
		viper.BindEnv(key, env)
	}

	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.cover_dir", "./static/covers")
	viper.SetDefault("server.openapi_path", "./api/openapi.yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
}

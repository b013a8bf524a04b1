package config

const (
	EnvPrefix = "MARKETCORE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv = "MARKETCORE_APP_ENV"
	EnvPort   = "MARKETCORE_APP_PORT"

	EnvDBDSN  = "MARKETCORE_DB_DSN"
	EnvDBHost = "MARKETCORE_DB_HOST"
	EnvDBUser = "MARKETCORE_DB_USER"
	EnvDBName = "MARKETCORE_DB_NAME"

	EnvRedisURL = "MARKETCORE_REDIS_URL"

	EnvJWTSecret              = "MARKETCORE_JWT_SECRET"
	EnvJWTIssuer              = "MARKETCORE_JWT_ISSUER"
	EnvJWTExpMins             = "MARKETCORE_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "MARKETCORE_REFRESH_TOKEN_TTL_MINUTES"

	EnvUseSQLite         = "MARKETCORE_USE_SQLITE"
	EnvJazzCashSalt      = "MARKETCORE_JAZZCASH_INTEGRITY_SALT"
	EnvPubSubDomainTopic = "MARKETCORE_PUBSUB_DOMAIN_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

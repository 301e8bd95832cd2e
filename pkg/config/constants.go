package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "SNAPSTUDIO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv                   = "SNAPSTUDIO_APP_ENV"
	EnvPort                     = "SNAPSTUDIO_APP_PORT"
	EnvDBDSN                    = "SNAPSTUDIO_DB_DSN"
	EnvDBHost                   = "SNAPSTUDIO_DB_HOST"
	EnvDBUser                   = "SNAPSTUDIO_DB_USER"
	EnvDBName                   = "SNAPSTUDIO_DB_NAME"
	EnvDBPassword               = "SNAPSTUDIO_DB_PASSWORD"
	EnvRedisURL                 = "SNAPSTUDIO_REDIS_URL"
	EnvJWTSecret                = "SNAPSTUDIO_JWT_SECRET"
	EnvJWTIssuer                = "SNAPSTUDIO_JWT_ISSUER"
	EnvUseSQLite                = "SNAPSTUDIO_USE_SQLITE"
	EnvCreditsSignupGrant       = "SNAPSTUDIO_CREDITS_SIGNUP_GRANT"
	EnvCreditsAuthorizeAttempts = "SNAPSTUDIO_CREDITS_AUTHORIZE_MAX_ATTEMPTS"
	EnvStripeSecret             = "SNAPSTUDIO_STRIPE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

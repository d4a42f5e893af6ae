package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyDBType string = "GEOALERT_DB_TYPE"
	EnvKeyDbPath string = "GEOALERT_DB_PATH"
	EnvKeyDbDSN  string = "GEOALERT_DB_DSN"

	EnvKeyHttpHostPort string = "GEOALERT_HTTP_HOST_PORT"
	EnvKeyGrpcHostPort string = "GEOALERT_GRPC_HOST_PORT"

	EnvKeyAllowOrigins string = "GEOALERT_ALLOW_ORIGINS"

	EnvKeyDefaultRate  string = "GEOALERT_DEFAULT_RATE"
	EnvKeyDefaultBurst string = "GEOALERT_DEFAULT_BURST"

	EnvKeyJWTSecret string = "GEOALERT_JWT_SECRET"
	EnvKeyTokenTTL  string = "GEOALERT_TOKEN_TTL"

	EnvKeyNatsURL string = "GEOALERT_NATS_URL"

	EnvKeyAdminEmail    string = "GEOALERT_ADMIN_EMAIL"
	EnvKeyAdminPassword string = "GEOALERT_ADMIN_PASSWORD"

	EnvKeyLogDir        string = "GEOALERT_LOG_DIR"
	EnvKeyLogMaxSizeMB  string = "GEOALERT_LOG_MAX_SIZE_MB"
	EnvKeyLogMaxBackups string = "GEOALERT_LOG_MAX_BACKUPS"
	EnvKeyLogMaxAgeDays string = "GEOALERT_LOG_MAX_AGE_DAYS"

	LoggerNameEngine        string = "geoalert_engine"
	LoggerNameRestfulServer string = "restful_server"
	LoggerNameGrpcServer    string = "grpc_server"
	LoggerNameEvents        string = "events"
	LoggerNameImporter      string = "importer"

	LoggerFieldCategory      string = "category"
	LoggerCategoryGeofence   string = "geofence"
	LoggerCategoryLocation   string = "location"
	LoggerCategoryAlert      string = "alert"
	LoggerCategoryAuth       string = "auth"
	LoggerCategoryImport     string = "import"
	LoggerCategoryPublishing string = "publishing"
)

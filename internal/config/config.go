package config

import (
	"log"
	"os"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Google      GoogleConfig
	Lightspeed  LightspeedConfig
	Sellercloud SellercloudConfig
	Storage     StorageConfig
	Mail        MailConfig
	Pipeline    PipelineConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	// Driver selects the record store: "postgres" or "memory".
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type CacheConfig struct {
	Enabled            bool
	RedisURL           string
	RedisHost          string
	RedisPort          string
	RedisPassword      string
	RedisDB            int
	SnapshotTTLSeconds int
	LockTTLSeconds     int
}

type GoogleConfig struct {
	CredentialsJSON string
	CredentialsFile string

	ATSTemplateID     string
	NonATSTemplateID  string
	WorksheetFolderID string
	GrantEmails       []string

	SalesReportsFolderID    string
	MarketplacesFileID      string
	ListPricesSpreadsheetID string
	ItemTypesSpreadsheetID  string
	BrandCodesSpreadsheetID string
	ValidSizesSpreadsheetID string
	AliasesSpreadsheetID    string
}

type LightspeedConfig struct {
	BaseURL     string
	Username    string
	Password    string
	MaxAttempts int
}

type SellercloudConfig struct {
	BaseURL         string
	Username        string
	Password        string
	CompanyID       int
	VendorID        int
	WarehouseID     int
	JobPollAttempts int
}

type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type MailConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

type PipelineConfig struct {
	CacheMaxAge          time.Duration
	CacheRefreshInterval time.Duration
	CacheRefreshRetries  int
	CacheRetryMaxDelay   time.Duration
	WorksheetRetries     int
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		viper.SetDefault("SERVER_PORT", "8080")
		viper.SetDefault("SERVER_MODE", "debug")
		viper.SetDefault("SERVER_READ_TIMEOUT", 30)
		viper.SetDefault("SERVER_WRITE_TIMEOUT", 30)
		viper.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

		viper.SetDefault("DB_DRIVER", "postgres")
		viper.SetDefault("DB_HOST", "localhost")
		viper.SetDefault("DB_PORT", "5432")
		viper.SetDefault("DB_USER", "postgres")
		viper.SetDefault("DB_PASSWORD", "postgres")
		viper.SetDefault("DB_NAME", "potool")
		viper.SetDefault("DB_SSLMODE", "disable")

		viper.SetDefault("CACHE_ENABLED", false)
		viper.SetDefault("REDIS_URL", "")
		viper.SetDefault("REDIS_HOST", "127.0.0.1")
		viper.SetDefault("REDIS_PORT", "6379")
		viper.SetDefault("REDIS_PASSWORD", "")
		viper.SetDefault("REDIS_DB", 0)
		viper.SetDefault("CACHE_SNAPSHOT_TTL_SECONDS", 2*24*60*60)
		viper.SetDefault("CACHE_LOCK_TTL_SECONDS", 30*60)

		viper.SetDefault("GOOGLE_GRANT_EMAILS", []string{})

		viper.SetDefault("LIGHTSPEED_MAX_ATTEMPTS", 5)

		viper.SetDefault("SELLERCLOUD_BASE_URL", "https://lux.api.sellercloud.com/rest/api/")
		viper.SetDefault("SELLERCLOUD_JOB_POLL_ATTEMPTS", 10)

		viper.SetDefault("STORAGE_ENABLED", false)
		viper.SetDefault("STORAGE_USE_SSL", true)
		viper.SetDefault("STORAGE_BUCKET", "po-imports")

		viper.SetDefault("MAIL_ENABLED", false)
		viper.SetDefault("MAIL_PORT", 587)
		viper.SetDefault("MAIL_TO", []string{})

		viper.SetDefault("PIPELINE_CACHE_MAX_AGE_HOURS", 25.2)
		viper.SetDefault("PIPELINE_CACHE_REFRESH_HOURS", 24)
		viper.SetDefault("PIPELINE_CACHE_REFRESH_RETRIES", 5)
		viper.SetDefault("PIPELINE_CACHE_RETRY_MAX_DELAY_SECONDS", 60)
		viper.SetDefault("PIPELINE_WORKSHEET_RETRIES", 3)

		// Read from environment variables
		viper.AutomaticEnv()

		credentialsJSON := viper.GetString("GOOGLE_CREDENTIALS_JSON")
		credentialsFile := viper.GetString("GOOGLE_CREDENTIALS_FILE")
		if credentialsJSON == "" && credentialsFile != "" {
			credentialsJSON = readFile(credentialsFile)
		}

		instance = &Config{
			Server: ServerConfig{
				Port:           viper.GetString("SERVER_PORT"),
				Mode:           viper.GetString("SERVER_MODE"),
				ReadTimeout:    viper.GetInt("SERVER_READ_TIMEOUT"),
				WriteTimeout:   viper.GetInt("SERVER_WRITE_TIMEOUT"),
				AllowedOrigins: viper.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
			},
			Database: DatabaseConfig{
				Driver:   viper.GetString("DB_DRIVER"),
				Host:     viper.GetString("DB_HOST"),
				Port:     viper.GetString("DB_PORT"),
				User:     viper.GetString("DB_USER"),
				Password: viper.GetString("DB_PASSWORD"),
				DBName:   viper.GetString("DB_NAME"),
				SSLMode:  viper.GetString("DB_SSLMODE"),
			},
			Cache: CacheConfig{
				Enabled:            viper.GetBool("CACHE_ENABLED"),
				RedisURL:           viper.GetString("REDIS_URL"),
				RedisHost:          viper.GetString("REDIS_HOST"),
				RedisPort:          viper.GetString("REDIS_PORT"),
				RedisPassword:      viper.GetString("REDIS_PASSWORD"),
				RedisDB:            viper.GetInt("REDIS_DB"),
				SnapshotTTLSeconds: viper.GetInt("CACHE_SNAPSHOT_TTL_SECONDS"),
				LockTTLSeconds:     viper.GetInt("CACHE_LOCK_TTL_SECONDS"),
			},
			Google: GoogleConfig{
				CredentialsJSON:         credentialsJSON,
				CredentialsFile:         credentialsFile,
				ATSTemplateID:           viper.GetString("GOOGLE_ATS_TEMPLATE_ID"),
				NonATSTemplateID:        viper.GetString("GOOGLE_NON_ATS_TEMPLATE_ID"),
				WorksheetFolderID:       viper.GetString("GOOGLE_WORKSHEET_FOLDER_ID"),
				GrantEmails:             viper.GetStringSlice("GOOGLE_GRANT_EMAILS"),
				SalesReportsFolderID:    viper.GetString("GOOGLE_SALES_REPORTS_FOLDER_ID"),
				MarketplacesFileID:      viper.GetString("GOOGLE_MARKETPLACES_FILE_ID"),
				ListPricesSpreadsheetID: viper.GetString("GOOGLE_LIST_PRICES_SPREADSHEET_ID"),
				ItemTypesSpreadsheetID:  viper.GetString("GOOGLE_ITEM_TYPES_SPREADSHEET_ID"),
				BrandCodesSpreadsheetID: viper.GetString("GOOGLE_BRAND_CODES_SPREADSHEET_ID"),
				ValidSizesSpreadsheetID: viper.GetString("GOOGLE_VALID_SIZES_SPREADSHEET_ID"),
				AliasesSpreadsheetID:    viper.GetString("GOOGLE_ALIASES_SPREADSHEET_ID"),
			},
			Lightspeed: LightspeedConfig{
				BaseURL:     viper.GetString("LIGHTSPEED_BASE_URL"),
				Username:    viper.GetString("LIGHTSPEED_USERNAME"),
				Password:    viper.GetString("LIGHTSPEED_PASSWORD"),
				MaxAttempts: viper.GetInt("LIGHTSPEED_MAX_ATTEMPTS"),
			},
			Sellercloud: SellercloudConfig{
				BaseURL:         viper.GetString("SELLERCLOUD_BASE_URL"),
				Username:        viper.GetString("SELLERCLOUD_USERNAME"),
				Password:        viper.GetString("SELLERCLOUD_PASSWORD"),
				CompanyID:       viper.GetInt("SELLERCLOUD_COMPANY_ID"),
				VendorID:        viper.GetInt("SELLERCLOUD_VENDOR_ID"),
				WarehouseID:     viper.GetInt("SELLERCLOUD_WAREHOUSE_ID"),
				JobPollAttempts: viper.GetInt("SELLERCLOUD_JOB_POLL_ATTEMPTS"),
			},
			Storage: StorageConfig{
				Enabled:   viper.GetBool("STORAGE_ENABLED"),
				Endpoint:  viper.GetString("STORAGE_ENDPOINT"),
				AccessKey: viper.GetString("STORAGE_ACCESS_KEY"),
				SecretKey: viper.GetString("STORAGE_SECRET_KEY"),
				Bucket:    viper.GetString("STORAGE_BUCKET"),
				UseSSL:    viper.GetBool("STORAGE_USE_SSL"),
			},
			Mail: MailConfig{
				Enabled:  viper.GetBool("MAIL_ENABLED"),
				Host:     viper.GetString("MAIL_HOST"),
				Port:     viper.GetInt("MAIL_PORT"),
				Username: viper.GetString("MAIL_USERNAME"),
				Password: viper.GetString("MAIL_PASSWORD"),
				From:     viper.GetString("MAIL_FROM"),
				To:       viper.GetStringSlice("MAIL_TO"),
			},
			Pipeline: PipelineConfig{
				CacheMaxAge:          hours(viper.GetFloat64("PIPELINE_CACHE_MAX_AGE_HOURS")),
				CacheRefreshInterval: hours(viper.GetFloat64("PIPELINE_CACHE_REFRESH_HOURS")),
				CacheRefreshRetries:  viper.GetInt("PIPELINE_CACHE_REFRESH_RETRIES"),
				CacheRetryMaxDelay:   time.Duration(viper.GetInt("PIPELINE_CACHE_RETRY_MAX_DELAY_SECONDS")) * time.Second,
				WorksheetRetries:     viper.GetInt("PIPELINE_WORKSHEET_RETRIES"),
			},
		}
	})

	return instance
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

func readFile(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("Failed to read credentials file %s: %v", path, err)
	}
	return string(b)
}

package config // package config loads application configuration from environment variables

import (
	"errors"
	"fmt"
	"log" // log is used to report configuration errors and halt execution
	"os"  // os provides access to environment variables
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
)

// DefaultAllowedContentTypes lists the MIME types accepted for attachments
// when ALLOWED_CONTENT_TYPES is not set.
var DefaultAllowedContentTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
	"image/gif",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Config holds all runtime configuration values.  It is built once at
// startup and never mutated afterwards; every component receives the
// sub-struct it needs.
type Config struct {
	Env       string           `yaml:"env"`  // application environment (e.g. "dev", "prod")
	Port      string           `yaml:"port"` // HTTP port to listen on
	DB        DBConfig         `yaml:"database"`
	Auth      AuthConfig       `yaml:"auth"`
	Login     LoginLimitConfig `yaml:"login"`
	Upload    UploadConfig     `yaml:"upload"`
	Mail      MailConfig       `yaml:"mail"`
	Notify    NotifyConfig     `yaml:"notify"`
	Bootstrap BootstrapConfig  `yaml:"bootstrap"`
}

// DBConfig selects the SQL driver and its connection parameters.  The
// mysql driver uses the host/port/user fields; sqlite only uses Path.
type DBConfig struct {
	Driver string `yaml:"driver"` // "mysql" or "sqlite"
	User   string `yaml:"user"`
	Pass   string `yaml:"pass"`
	Host   string `yaml:"host"`
	Port   string `yaml:"port"`
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
}

// AuthConfig carries the token signing parameters and the bcrypt cost.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`    // secret used to sign JWTs
	JWTAlgorithm string `yaml:"jwt_algorithm"` // HS256, HS384 or HS512
	AccessTTLMin int    `yaml:"access_ttl_min"`
	BcryptCost   int    `yaml:"bcrypt_cost"`
}

// UploadConfig controls attachment storage.
type UploadConfig struct {
	Backend      string   `yaml:"backend"` // "disk" or "s3"
	Dir          string   `yaml:"dir"`
	MaxBytes     int64    `yaml:"max_bytes"`
	AllowedTypes []string `yaml:"allowed_types"`
	S3           S3Config `yaml:"s3"`
}

// S3Config points the object storage backend at an S3-compatible endpoint.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix"`
}

// MailConfig describes the outbound mail transport.  When Host is empty
// messages are appended to the Outbox file instead.
type MailConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	From       string `yaml:"from"`
	AdminEmail string `yaml:"admin_email"`
	HTML       bool   `yaml:"html"`
	Outbox     string `yaml:"outbox"`
}

// NotifyConfig sizes the background notification worker pool.
type NotifyConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// BootstrapConfig optionally seeds an administrator at startup.
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// Defaults returns a Config populated with development defaults.  The JWT
// secret is intentionally left empty so that Parse fails without one.
func Defaults() Config {
	return Config{
		Env:  "dev",
		Port: "8080",
		DB: DBConfig{
			Driver: "mysql",
			User:   "root",
			Host:   "127.0.0.1",
			Port:   "3306",
			Name:   "grievance_portal",
			Path:   "grievance_portal.db",
		},
		Auth: AuthConfig{
			JWTAlgorithm: "HS256",
			AccessTTLMin: 60,
			BcryptCost:   10,
		},
		Login: defaultLoginLimit(),
		Upload: UploadConfig{
			Backend:      "disk",
			Dir:          "uploads",
			MaxBytes:     10 * 1024 * 1024,
			AllowedTypes: append([]string(nil), DefaultAllowedContentTypes...),
			S3:           S3Config{Region: "us-east-1", Prefix: "attachments"},
		},
		Mail: MailConfig{
			Port:       587,
			From:       "noreply@grievanceportal.local",
			AdminEmail: "admin@grievanceportal.local",
			Outbox:     "logs/outbox.log",
		},
		Notify: NotifyConfig{Workers: 4, QueueSize: 256},
	}
}

// Parse builds a Config from defaults, an optional YAML file named by
// CONFIG_FILE and finally environment variables, in that order.
func Parse() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load is like Parse but terminates the process on error.
func Load() Config {
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

func applyEnv(c *Config) {
	c.Env = envStr("APP_ENV", c.Env)
	c.Port = envStr("APP_PORT", c.Port)

	c.DB.Driver = strings.ToLower(envStr("DB_DRIVER", c.DB.Driver))
	c.DB.User = envStr("DB_USER", c.DB.User)
	c.DB.Pass = envStr("DB_PASS", c.DB.Pass) // empty allowed
	c.DB.Host = envStr("DB_HOST", c.DB.Host)
	c.DB.Port = envStr("DB_PORT", c.DB.Port)
	c.DB.Name = envStr("DB_NAME", c.DB.Name)
	c.DB.Path = envStr("DB_PATH", c.DB.Path)

	c.Auth.JWTSecret = envStr("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTAlgorithm = strings.ToUpper(envStr("JWT_ALGORITHM", c.Auth.JWTAlgorithm))
	c.Auth.AccessTTLMin = envInt("ACCESS_TOKEN_TTL_MIN", c.Auth.AccessTTLMin)
	c.Auth.BcryptCost = envInt("BCRYPT_COST", c.Auth.BcryptCost)

	c.Login = loadLoginLimit(c.Login)

	c.Upload.Backend = strings.ToLower(envStr("STORAGE_BACKEND", c.Upload.Backend))
	c.Upload.Dir = envStr("UPLOAD_DIR", c.Upload.Dir)
	c.Upload.MaxBytes = int64(envInt("MAX_UPLOAD_BYTES", int(c.Upload.MaxBytes)))
	c.Upload.AllowedTypes = envList("ALLOWED_CONTENT_TYPES", c.Upload.AllowedTypes)
	c.Upload.S3.Bucket = envStr("S3_BUCKET", c.Upload.S3.Bucket)
	c.Upload.S3.Region = envStr("S3_REGION", c.Upload.S3.Region)
	c.Upload.S3.Endpoint = envStr("S3_ENDPOINT", c.Upload.S3.Endpoint)
	c.Upload.S3.AccessKey = envStr("S3_ACCESS_KEY", c.Upload.S3.AccessKey)
	c.Upload.S3.SecretKey = envStr("S3_SECRET_KEY", c.Upload.S3.SecretKey)
	c.Upload.S3.Prefix = envStr("S3_PREFIX", c.Upload.S3.Prefix)

	c.Mail.Host = envStr("SMTP_HOST", c.Mail.Host)
	c.Mail.Port = envInt("SMTP_PORT", c.Mail.Port)
	c.Mail.User = envStr("SMTP_USER", c.Mail.User)
	c.Mail.Password = envStr("SMTP_PASSWORD", c.Mail.Password)
	c.Mail.From = envStr("FROM_EMAIL", c.Mail.From)
	c.Mail.AdminEmail = envStr("ADMIN_EMAIL", c.Mail.AdminEmail)
	c.Mail.HTML = envBool("MAIL_HTML", c.Mail.HTML)
	c.Mail.Outbox = envStr("MAIL_OUTBOX", c.Mail.Outbox)

	c.Notify.Workers = envInt("NOTIFY_WORKERS", c.Notify.Workers)
	c.Notify.QueueSize = envInt("NOTIFY_QUEUE", c.Notify.QueueSize)

	c.Bootstrap.AdminEmail = envStr("ADMIN_BOOTSTRAP_EMAIL", c.Bootstrap.AdminEmail)
	c.Bootstrap.AdminPassword = envStr("ADMIN_BOOTSTRAP_PASSWORD", c.Bootstrap.AdminPassword)
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("missing required env var: JWT_SECRET")
	}
	if jwt.GetSigningMethod(c.Auth.JWTAlgorithm) == nil || !strings.HasPrefix(c.Auth.JWTAlgorithm, "HS") {
		return fmt.Errorf("unsupported JWT_ALGORITHM %q", c.Auth.JWTAlgorithm)
	}
	if c.Auth.AccessTTLMin <= 0 {
		return fmt.Errorf("invalid ACCESS_TOKEN_TTL_MIN: %d", c.Auth.AccessTTLMin)
	}
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	switch c.Upload.Backend {
	case "disk":
	case "s3":
		if c.Upload.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required when STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Upload.Backend)
	}
	if c.Upload.MaxBytes <= 0 {
		return fmt.Errorf("invalid MAX_UPLOAD_BYTES: %d", c.Upload.MaxBytes)
	}
	if c.Login.Limit < 1 || c.Login.Window <= 0 {
		return errors.New("LOGIN_LIMIT and LOGIN_WINDOW must be positive")
	}
	return nil
}

package config

import (
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-ozzo/ozzo-validation/v4/is"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/mitchellh/mapstructure"

	"github.com/spf13/viper"
)

const (
	defaultExtension = "yaml"
	defaultTagName   = "yaml"

	DefaultEnvPrefix = "NADA_SOCRATA"
)

type Binder interface {
	Bind(v *viper.Viper) error
}

type Loader interface {
	Load(name, path, envPrefix string, binder Binder) (Config, error)
}

type Config struct {
	Server      Server      `yaml:"server"`
	Postgres    Postgres    `yaml:"postgres"`
	Databases   []Database  `yaml:"databases"`
	Plugins     Plugins     `yaml:"plugins"`
	Socrata     Socrata     `yaml:"socrata"`
	Auth        Auth        `yaml:"auth"`
	Permissions Permissions `yaml:"permissions"`
	Slack       Slack       `yaml:"slack"`

	LogLevel             string `yaml:"log_level"`
	LowDiskSpaceMB       int    `yaml:"low_disk_space_mb"`
	CacheDurationSeconds int    `yaml:"cache_duration_seconds"`
	Debug                bool   `yaml:"debug"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Server, validation.Required),
		validation.Field(&c.Postgres, validation.Required),
		validation.Field(&c.Databases, validation.Required, validation.By(uniqueDatabaseNames)),
		validation.Field(&c.Plugins, validation.By(c.restrictionIsMutable)),
		validation.Field(&c.Socrata, validation.Required),
		validation.Field(&c.Auth, validation.Required),
		validation.Field(&c.Slack),
		validation.Field(&c.LogLevel, validation.Required, validation.In("debug", "info", "warn", "error")),
		validation.Field(&c.LowDiskSpaceMB, validation.Min(0)),
		validation.Field(&c.CacheDurationSeconds, validation.Required),
	)
}

func uniqueDatabaseNames(value any) error {
	dbs, _ := value.([]Database)

	seen := map[string]bool{}
	for _, db := range dbs {
		if seen[db.Name] {
			return fmt.Errorf("database %s is configured more than once", db.Name)
		}

		seen[db.Name] = true
	}

	return nil
}

func (c Config) restrictionIsMutable(value any) error {
	p, _ := value.(Plugins)
	if p.Socrata.Database == "" {
		return nil
	}

	for _, db := range c.Databases {
		if db.Name == p.Socrata.Database {
			if db.Immutable {
				return fmt.Errorf("socrata database %s is immutable", db.Name)
			}

			return nil
		}
	}

	return fmt.Errorf("socrata database %s is not configured", p.Socrata.Database)
}

// Database is a SQLite database file served by the application.
type Database struct {
	Name      string `yaml:"name"`
	Path      string `yaml:"path"`
	Immutable bool   `yaml:"immutable"`
}

func (d Database) Validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Name, validation.Required, validation.NotIn("-", "internal")),
		validation.Field(&d.Path, validation.Required),
	)
}

type Plugins struct {
	Socrata PluginSocrata `yaml:"socrata"`
}

// PluginSocrata restricts imports to a single database when Database is set.
type PluginSocrata struct {
	Database string `yaml:"database"`
}

type Socrata struct {
	Scheme   string `yaml:"scheme"`
	AppToken string `yaml:"app_token"`

	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	BatchSize           int `yaml:"batch_size"`
	Workers             int `yaml:"workers"`
	RedirectDelayMillis int `yaml:"redirect_delay_millis"`
	RequestTimeoutSec   int `yaml:"request_timeout_sec"`
	ImportDeadlineSec   int `yaml:"import_deadline_sec"`
	ResumeFrequencySec  int `yaml:"resume_frequency_sec"`
}

func (s Socrata) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Scheme, validation.Required, validation.In("http", "https")),
		validation.Field(&s.RateLimit, validation.Min(0.0)),
		validation.Field(&s.RateBurst, validation.Min(0)),
		validation.Field(&s.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&s.Workers, validation.Required, validation.Min(1)),
		validation.Field(&s.RedirectDelayMillis, validation.Min(0)),
		validation.Field(&s.RequestTimeoutSec, validation.Required),
		validation.Field(&s.ImportDeadlineSec, validation.Required),
		validation.Field(&s.ResumeFrequencySec, validation.Required),
	)
}

func (s Socrata) RedirectDelay() time.Duration {
	return time.Duration(s.RedirectDelayMillis) * time.Millisecond
}

type Auth struct {
	// RootToken is exchanged for a root actor cookie, a random token is
	// generated on startup when empty.
	RootToken     string         `yaml:"root_token"`
	SigningSecret string         `yaml:"signing_secret"`
	Cookie        CookieSettings `yaml:"cookie"`
}

func (a Auth) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.RootToken, validation.Length(16, 0)),
		validation.Field(&a.SigningSecret, validation.Required, validation.Length(32, 0)),
		validation.Field(&a.Cookie, validation.Required),
	)
}

// Permissions lists the actors allowed to perform an action, in addition
// to the root actor and the grants stored in the database.
type Permissions struct {
	Allow map[string][]string `yaml:"allow"`
}

type Slack struct {
	Token   string `yaml:"token"`
	Channel string `yaml:"channel"`
}

func (s Slack) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Channel, validation.When(s.Token != "", validation.Required)),
	)
}

type Postgres struct {
	UserName      string                `yaml:"user_name"`
	Password      string                `yaml:"password"`
	Host          string                `yaml:"host"`
	Port          string                `yaml:"port"`
	DatabaseName  string                `yaml:"database_name"`
	SSLMode       string                `yaml:"ssl_mode"`
	Configuration PostgresConfiguration `yaml:"configuration"`
}

func (p Postgres) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.UserName, validation.Required),
		validation.Field(&p.Password, validation.Required),
		validation.Field(&p.Host, validation.Required, is.Host),
		validation.Field(&p.Port, validation.Required, is.Port),
		validation.Field(&p.DatabaseName, validation.Required),
		validation.Field(&p.SSLMode, validation.Required, validation.In("disable", "allow", "prefer", "require")),
	)
}

func (p Postgres) ConnectionString() string {
	return fmt.Sprintf("postgresql://%s:%s@%s/%s?sslmode=%s",
		p.UserName,
		p.Password,
		net.JoinHostPort(p.Host, p.Port),
		p.DatabaseName,
		p.SSLMode,
	)
}

type PostgresConfiguration struct {
	MaxIdleConnections int `yaml:"max_idle_connections"`
	MaxOpenConnections int `yaml:"max_open_connections"`
}

type Server struct {
	Hostname string `yaml:"hostname"`
	Address  string `yaml:"address"`
	Port     string `yaml:"port"`
}

func (s Server) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Address, validation.Required, is.IP),
		validation.Field(&s.Hostname, validation.Required, is.Host),
		validation.Field(&s.Port, validation.Required, is.Port),
	)
}

type CookieSettings struct {
	Name     string `yaml:"name"`
	MaxAge   int    `yaml:"max_age"`
	Path     string `yaml:"path"`
	Domain   string `yaml:"domain"`
	SameSite string `yaml:"same_site"`
	Secure   bool   `yaml:"secure"`
	HttpOnly bool   `yaml:"http_only"`
}

func (c CookieSettings) GetSameSite() http.SameSite {
	switch c.SameSite {
	case "Strict":
		return http.SameSiteStrictMode
	case "Lax":
		return http.SameSiteLaxMode
	case "None":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

func (c CookieSettings) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.MaxAge, validation.Required),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Domain, validation.Required, is.Host),
		// Valid SameSite values:
		// - https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/Set-Cookie#samesitesamesite-value
		validation.Field(&c.SameSite, validation.Required, validation.In("Strict", "Lax", "None")),
	)
}

type FileParts struct {
	FileName string
	Path     string
}

func ProcessConfigPath(configFile string) (FileParts, error) {
	absolutePath, err := filepath.Abs(configFile)
	if err != nil {
		return FileParts{}, fmt.Errorf("convert to absolute path: %w", err)
	}

	fileName := filepath.Base(absolutePath)
	path := filepath.Dir(absolutePath)
	extension := filepath.Ext(fileName)

	if strings.ReplaceAll(strings.ToLower(extension), ".", "") != defaultExtension {
		return FileParts{}, fmt.Errorf("config file must have extension %s, got: %s", defaultExtension, extension)
	}

	return FileParts{
		FileName: fileName[:len(fileName)-len(extension)],
		Path:     path,
	}, nil
}

func NewFileSystemLoader() *FileSystemLoader {
	return &FileSystemLoader{}
}

type FileSystemLoader struct{}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("cache_duration_seconds", 3600)
	v.SetDefault("socrata.scheme", "https")
	v.SetDefault("socrata.batch_size", 100)
	v.SetDefault("socrata.workers", 2)
	v.SetDefault("socrata.redirect_delay_millis", 1000)
	v.SetDefault("socrata.request_timeout_sec", 60)
	v.SetDefault("socrata.import_deadline_sec", 3600)
	v.SetDefault("socrata.resume_frequency_sec", 300)
	v.SetDefault("postgres.configuration.max_idle_connections", 5)
	v.SetDefault("postgres.configuration.max_open_connections", 10)
}

func (fs *FileSystemLoader) Load(name, path, envPrefix string, b Binder) (Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(name)
	v.SetConfigType(defaultExtension)

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // So that env vars are translated properly
	v.AutomaticEnv()

	if b != nil {
		err := b.Bind(v)
		if err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)

	err := v.ReadInConfig()
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var config Config

	err = v.Unmarshal(&config, func(cfg *mapstructure.DecoderConfig) {
		cfg.TagName = defaultTagName // We use yaml tags in the config structs so we can marshal to yaml
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

type EnvBinder struct {
	binders map[string]string
}

func (e *EnvBinder) Bind(v *viper.Viper) error {
	for envVar, key := range e.binders {
		err := v.BindEnv(key, envVar)
		if err != nil {
			return fmt.Errorf("bind env var %s to key %s: %w", envVar, key, err)
		}
	}

	return nil
}

func NewEnvBinder(binders map[string]string) *EnvBinder {
	return &EnvBinder{
		binders: binders,
	}
}

func NewDefaultEnvBinder() *EnvBinder {
	return NewEnvBinder(map[string]string{
		"NAIS_DATABASE_NADA_SOCRATA_NADA_SOCRATA_PASSWORD": "postgres.password",
		"SOCRATA_APP_TOKEN":           "socrata.app_token",
		"NADA_SOCRATA_SIGNING_SECRET": "auth.signing_secret",
		"SLACK_TOKEN":                 "slack.token",
	})
}

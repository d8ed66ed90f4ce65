package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type HTTP struct {
	Host            string
	Port            int
	ReadTimeoutSec  int
	WriteTimeoutSec int
	IdleTimeoutSec  int
}
type AdminHTTP struct {
	Host string
	Port int
}

type App struct {
	Name  string
	Env   string
	HTTP  HTTP
	Admin AdminHTTP
}

// LogFile 为空 Filename 时不写文件
type LogFile struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type Log struct {
	Level string
	JSON  bool
	File  LogFile
}

type JWT struct {
	Secret            string
	Issuer            string
	AccessTokenTTLMin int
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type DB struct {
	Driver             string
	DSN                string
	Username           string
	Password           string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeMin int
	AutoMigrate        bool
	LogLevel           string
}

// Account 账号生命周期
type Account struct {
	ConfirmationRequired   bool
	ConfirmationWindowDays int
	DeletionGraceDays      int
	TokenSecret            string // 为空时复用 jwt.secret
	TokenTTLHours          int    // 0 = 令牌本身不过期
	PasswordPolicy         string // basic | strong
	BaseURL                string
	LoginURL               string
	BcryptCost             int
}

type Sweeper struct {
	Enabled bool
	Cron    string // 6 段带秒，UTC
}

// Notify driver: log | smtp | redis
type Notify struct {
	Driver   string
	QueueKey string
}

type Mail struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	TimeoutSec int // 单封邮件的拨号 + 发送上限
}

// Lock driver: local | redis
type Lock struct {
	Driver  string
	TTLSec  int
	WaitSec int
}

type Limits struct {
	RPS            float64
	Burst          int
	AuthRPS        float64 // 登录/注册按 IP 限速
	AuthBurst      int
	MaxConcurrency int64
	MaxBodyMB      int64
	TimeoutSec     int
	CORSOrigins    []string
}

type Config struct {
	App     App
	Log     Log
	JWT     JWT
	DB      DB
	Redis   Redis `mapstructure:"redis"`
	Account Account
	Sweeper Sweeper
	Notify  Notify
	Mail    Mail
	Lock    Lock
	Limits  Limits
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "account-service")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.http.host", "0.0.0.0")
	v.SetDefault("app.http.port", 8080)
	v.SetDefault("app.http.readtimeoutsec", 10)
	v.SetDefault("app.http.writetimeoutsec", 15)
	v.SetDefault("app.http.idletimeoutsec", 60)
	v.SetDefault("app.admin.host", "127.0.0.1")
	v.SetDefault("app.admin.port", 8081)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file.filename", "")
	v.SetDefault("log.file.maxsizemb", 100)
	v.SetDefault("log.file.maxbackups", 7)
	v.SetDefault("log.file.maxagedays", 30)
	v.SetDefault("log.file.compress", true)

	// 没有默认值的 key 也要注册，否则 Unmarshal 读不到对应的环境变量
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "account-service")
	v.SetDefault("jwt.accesstokenttlmin", 120)

	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "file:account.db?_busy_timeout=5000")
	v.SetDefault("db.username", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.maxopenconns", 20)
	v.SetDefault("db.maxidleconns", 5)
	v.SetDefault("db.connmaxlifetimemin", 30)
	v.SetDefault("db.automigrate", true)
	v.SetDefault("db.loglevel", "warn")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("account.confirmationrequired", true)
	v.SetDefault("account.confirmationwindowdays", 3)
	v.SetDefault("account.deletiongracedays", 7)
	v.SetDefault("account.tokensecret", "")
	v.SetDefault("account.tokenttlhours", 0)
	v.SetDefault("account.passwordpolicy", "basic")
	v.SetDefault("account.baseurl", "http://127.0.0.1:8080")
	v.SetDefault("account.loginurl", "/login")
	v.SetDefault("account.bcryptcost", 0)

	v.SetDefault("sweeper.enabled", true)
	v.SetDefault("sweeper.cron", "0 0 0 * * ?")

	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.queuekey", "account:notifications")

	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.from", "no-reply@example.com")
	v.SetDefault("mail.timeoutsec", 10)

	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.ttlsec", 10)
	v.SetDefault("lock.waitsec", 5)

	v.SetDefault("limits.rps", 200)
	v.SetDefault("limits.burst", 400)
	v.SetDefault("limits.authrps", 5)
	v.SetDefault("limits.authburst", 10)
	v.SetDefault("limits.maxconcurrency", 300)
	v.SetDefault("limits.maxbodymb", 1)
	v.SetDefault("limits.timeoutsec", 10)
	v.SetDefault("limits.corsorigins", []string{"*"})
}

// Read 读取配置；文件不存在时只用默认值与环境变量
func Read(path string) (*Config, error) {
	v := viper.New()
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
		if path == "" {
			path = "./configs/config.local.yaml"
		}
	}
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(path); statErr == nil || !os.IsNotExist(statErr) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	if c.Account.ConfirmationWindowDays <= 0 || c.Account.DeletionGraceDays <= 0 {
		return fmt.Errorf("config: retention windows must be positive")
	}
	if strings.TrimSpace(c.Sweeper.Cron) == "" {
		return fmt.Errorf("config: sweeper.cron is required")
	}
	return nil
}

// ConfirmSecret 确认令牌密钥与访问令牌分开配置，未配置时复用
func (c *Config) ConfirmSecret() string {
	if c.Account.TokenSecret != "" {
		return c.Account.TokenSecret
	}
	return c.JWT.Secret
}

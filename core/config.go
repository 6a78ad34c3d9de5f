package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string // DEV (local; default), TEST, QA, PROD
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		RollbarToken string

		SendgridApiKey   string
		defaultFromEmail string

		Server       ServerConfig
		Database     DatabaseConfig
		Push         PushConfig
		Realtime     RealtimeConfig
		Moderation   ModerationConfig
		Notification NotificationConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		SecretKey       string
		DisableReqLogs  bool
	}

	DatabaseConfig struct {
		Engine        string // postgres | inmem
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	PushConfig struct {
		ProjectID        string
		CredentialsFile  string
		BatchSize        int
		BatchDelay       time.Duration
		CallTimeout      time.Duration
		ValidateTokens   bool
		AndroidChannelID string
		ClickAction      string
		WebIcon          string
		WebBadge         string
		CleanupSchedule  string
		TestRateInterval time.Duration
		TestRateBurst    int
	}

	RealtimeConfig struct {
		HeartbeatTimeout time.Duration
		WriteTimeout     time.Duration
		SendBuffer       int
		RelayBuffer      int
		AllowedOrigins   []string
		InsecureOrigins  bool
		RedisAddress     string
		RedisPassword    string
		RedisChannel     string
	}

	ModerationConfig struct {
		ExemptRoles []string
		AlertEmails []string
	}

	NotificationConfig struct {
		Workers   int
		QueueSize int
	}
)

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func (conf *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(conf.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: conf.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (conf *Config) IsInMemory() bool {
	return conf.Database.Engine == "inmem"
}

// NewConfig reads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
// Environment variables are prefixed with the uppercase env name, e.g. `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	setDefaults(v, env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		AppName:          v.GetString("appName"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Address:         v.GetString("server.address"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			SecretKey:       v.GetString("server.secretKey"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Push: PushConfig{
			ProjectID:        v.GetString("push.projectID"),
			CredentialsFile:  v.GetString("push.credentialsFile"),
			BatchSize:        v.GetInt("push.batchSize"),
			BatchDelay:       v.GetDuration("push.batchDelay"),
			CallTimeout:      v.GetDuration("push.callTimeout"),
			ValidateTokens:   v.GetBool("push.validateTokens"),
			AndroidChannelID: v.GetString("push.androidChannelID"),
			ClickAction:      v.GetString("push.clickAction"),
			WebIcon:          v.GetString("push.webIcon"),
			WebBadge:         v.GetString("push.webBadge"),
			CleanupSchedule:  v.GetString("push.cleanupSchedule"),
			TestRateInterval: v.GetDuration("push.testRateInterval"),
			TestRateBurst:    v.GetInt("push.testRateBurst"),
		},
		Realtime: RealtimeConfig{
			HeartbeatTimeout: v.GetDuration("realtime.heartbeatTimeout"),
			WriteTimeout:     v.GetDuration("realtime.writeTimeout"),
			SendBuffer:       v.GetInt("realtime.sendBuffer"),
			RelayBuffer:      v.GetInt("realtime.relayBuffer"),
			AllowedOrigins:   v.GetStringSlice("realtime.allowedOrigins"),
			InsecureOrigins:  v.GetBool("realtime.insecureOrigins"),
			RedisAddress:     v.GetString("realtime.redisAddress"),
			RedisPassword:    v.GetString("realtime.redisPassword"),
			RedisChannel:     v.GetString("realtime.redisChannel"),
		},
		Moderation: ModerationConfig{
			ExemptRoles: v.GetStringSlice("moderation.exemptRoles"),
			AlertEmails: v.GetStringSlice("moderation.alertEmails"),
		},
		Notification: NotificationConfig{
			Workers:   v.GetInt("notification.workers"),
			QueueSize: v.GetInt("notification.queueSize"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("appName", "Masomo")
	v.SetDefault("defaultFromEmail", "Masomo <noreply@localhost>")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "masomo")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "masomo")
	v.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("push.batchSize", 100)
	v.SetDefault("push.batchDelay", 100*time.Millisecond)
	v.SetDefault("push.callTimeout", 10*time.Second)
	v.SetDefault("push.validateTokens", true)
	v.SetDefault("push.androidChannelID", "masomo_messages")
	v.SetDefault("push.clickAction", "FLUTTER_NOTIFICATION_CLICK")
	v.SetDefault("push.webIcon", "/icons/icon-192.png")
	v.SetDefault("push.webBadge", "/icons/badge-72.png")
	v.SetDefault("push.cleanupSchedule", "0 3 * * *")
	v.SetDefault("push.testRateInterval", 10*time.Second)
	v.SetDefault("push.testRateBurst", 3)

	v.SetDefault("realtime.heartbeatTimeout", 60*time.Second)
	v.SetDefault("realtime.writeTimeout", 10*time.Second)
	v.SetDefault("realtime.sendBuffer", 64)
	v.SetDefault("realtime.relayBuffer", 256)
	v.SetDefault("realtime.allowedOrigins", []string{})
	v.SetDefault("realtime.insecureOrigins", env == "DEV")
	v.SetDefault("realtime.redisChannel", "masomo:realtime")

	v.SetDefault("moderation.exemptRoles", []string{"parent:", "admin:"})
	v.SetDefault("moderation.alertEmails", []string{})

	v.SetDefault("notification.workers", 4)
	v.SetDefault("notification.queueSize", 256)
}

// NewTestConfig returns a Config suitable for tests: in-memory storage, no batch delays, no output.
func NewTestConfig() *Config {
	conf := &Config{
		Env:              "TEST",
		Build:            "test",
		Debug:            true,
		TestMode:         true,
		AppName:          "Masomo",
		defaultFromEmail: "Masomo <noreply@localhost>",
	}
	conf.Server = ServerConfig{
		Address:         ":0",
		ShutdownTimeout: time.Second,
		SecretKey:       "secret",
		DisableReqLogs:  true,
	}
	conf.Database = DatabaseConfig{Engine: "inmem"}
	conf.Push = PushConfig{
		BatchSize:        100,
		CallTimeout:      time.Second,
		ValidateTokens:   true,
		AndroidChannelID: "masomo_messages",
		ClickAction:      "FLUTTER_NOTIFICATION_CLICK",
		CleanupSchedule:  "0 3 * * *",
		TestRateInterval: time.Second,
		TestRateBurst:    2,
	}
	conf.Realtime = RealtimeConfig{
		HeartbeatTimeout: time.Minute,
		WriteTimeout:     time.Second,
		SendBuffer:       8,
		RelayBuffer:      8,
	}
	conf.Moderation = ModerationConfig{ExemptRoles: []string{"parent:", "admin:"}}
	conf.Notification = NotificationConfig{Workers: 1, QueueSize: 8}
	return conf
}

func (conf *Config) String() string {
	return fmt.Sprintf("%s@%s (debug=%t)", conf.Env, conf.Build, conf.Debug)
}

package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"
)

type Config struct {
	App      App       `yaml:"app"`
	Storage  Storage   `yaml:"storage"`
	Registry Registry  `yaml:"registry"`
	Transfer Transfer  `yaml:"transfer"`
	Encrypt  Encrypt   `yaml:"encrypt"`
	Notify   Notify    `yaml:"notify"`
	Alert    Alert     `yaml:"alert"`
	Sources  Sources   `yaml:"sources"`
	Queue    *RabbitMQ `yaml:"rabbitmq"`
	Minio    Minio     `yaml:"minio"`
	Server   Server    `yaml:"server"`
}

type App struct {
	Environment     string `yaml:"environment"`
	DataPath        string `yaml:"data_path"`
	LookbackMinutes int    `yaml:"lookback_minutes"`
	WindowDays      int    `yaml:"window_days"`
}

func (a App) Lookback() time.Duration {
	return time.Duration(a.LookbackMinutes) * time.Minute
}

type Storage struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	LogSQL       bool   `yaml:"log_sql"`
}

type Registry struct {
	Root string `yaml:"root"`
}

type Transfer struct {
	Endpoint        string        `yaml:"endpoint"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	HostKey         string        `yaml:"host_key"`
	StandardRoot    string        `yaml:"standard_root"`
	NonStandardRoot string        `yaml:"nonstandard_root"`
	Timeout         time.Duration `yaml:"timeout"`
}

type Encrypt struct {
	Command []string `yaml:"command"`
	Suffix  string   `yaml:"suffix"`
}

type Notify struct {
	Webhook        string `yaml:"webhook"`
	TokenURL       string `yaml:"token_url"`
	MediaURL       string `yaml:"media_url"`
	AppKey         string `yaml:"app_key"`
	AppSecret      string `yaml:"app_secret"`
	ConversationId string `yaml:"conversation_id"`
	RobotCode      string `yaml:"robot_code"`
	Attempts       uint   `yaml:"attempts"`
}

type Alert struct {
	Webhook string `yaml:"webhook"`
	Secret  string `yaml:"secret"`
	Project string `yaml:"project"`
}

type Sources struct {
	Share  ShareSource  `yaml:"share" mapstructure:"share"`
	Voip   VoipSource   `yaml:"voip" mapstructure:"voip"`
	Okcc   OkccSource   `yaml:"okcc" mapstructure:"okcc"`
	Manual ManualSource `yaml:"manual" mapstructure:"manual"`
}

type ShareSource struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	Root        string `yaml:"root" mapstructure:"root"`
	DeptKeyword string `yaml:"dept_keyword" mapstructure:"dept_keyword"`
	ArchiveRoot string `yaml:"archive_root" mapstructure:"archive_root"`
	Days        int    `yaml:"days" mapstructure:"days"`
}

type VoipHost struct {
	DSN        string `yaml:"dsn" mapstructure:"dsn"`
	ShareRoot  string `yaml:"share_root" mapstructure:"share_root"`
	PathPrefix string `yaml:"path_prefix" mapstructure:"path_prefix"`
}

type VoipSource struct {
	Enabled     bool       `yaml:"enabled" mapstructure:"enabled"`
	Hosts       []VoipHost `yaml:"hosts" mapstructure:"hosts"`
	Extensions  []string   `yaml:"extensions" mapstructure:"extensions"`
	ArchiveRoot string     `yaml:"archive_root" mapstructure:"archive_root"`
}

type OkccSource struct {
	Enabled     bool   `yaml:"enabled" mapstructure:"enabled"`
	DSN         string `yaml:"dsn" mapstructure:"dsn"`
	CustomerId  int    `yaml:"customer_id" mapstructure:"customer_id"`
	ShareRoot   string `yaml:"share_root" mapstructure:"share_root"`
	ArchiveRoot string `yaml:"archive_root" mapstructure:"archive_root"`
}

type ManualSource struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Root    string `yaml:"root" mapstructure:"root"`
}

type Minio struct {
	URL       string `yaml:"url"`
	AccessId  string `yaml:"access_id"`
	SecretKey string `yaml:"secret_access_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

type Server struct {
	HttpPort string `yaml:"http_port"`
	Workers  int    `yaml:"workers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "production")
	v.SetDefault("app.lookback_minutes", 30)
	v.SetDefault("app.window_days", 3)
	v.SetDefault("storage.driver", "mysql")
	v.SetDefault("storage.max_open_conns", 5)
	v.SetDefault("storage.max_idle_conns", 2)
	v.SetDefault("transfer.timeout", 30*time.Second)
	v.SetDefault("encrypt.suffix", "_encrypted")
	v.SetDefault("notify.webhook", "https://api.dingtalk.com/v1.0/robot/groupMessages/send")
	v.SetDefault("notify.token_url", "https://oapi.dingtalk.com/gettoken")
	v.SetDefault("notify.media_url", "https://oapi.dingtalk.com/media/upload")
	v.SetDefault("notify.attempts", 1)
	v.SetDefault("alert.project", "record-sync")
	v.SetDefault("rabbitmq_kind", "topic")
	v.SetDefault("rabbitmq_dial_tries", 5)
	v.SetDefault("server.port", "8080")
}

// Load reads config.yaml from path. A .env file in the working directory and
// environment variables (APP_DATA_PATH, STORAGE_DSN, ...) take precedence.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		App: App{
			Environment:     v.GetString("app.environment"),
			DataPath:        v.GetString("app.data_path"),
			LookbackMinutes: v.GetInt("app.lookback_minutes"),
			WindowDays:      v.GetInt("app.window_days"),
		},
		Storage: Storage{
			Driver:       v.GetString("storage.driver"),
			DSN:          v.GetString("storage.dsn"),
			MaxOpenConns: v.GetInt("storage.max_open_conns"),
			MaxIdleConns: v.GetInt("storage.max_idle_conns"),
			LogSQL:       v.GetBool("storage.log_sql"),
		},
		Registry: Registry{
			Root: v.GetString("registry.root"),
		},
		Transfer: Transfer{
			Endpoint:        v.GetString("transfer.endpoint"),
			User:            v.GetString("transfer.user"),
			Password:        v.GetString("transfer.password"),
			HostKey:         v.GetString("transfer.host_key"),
			StandardRoot:    v.GetString("transfer.standard_root"),
			NonStandardRoot: v.GetString("transfer.nonstandard_root"),
			Timeout:         v.GetDuration("transfer.timeout"),
		},
		Encrypt: Encrypt{
			Command: v.GetStringSlice("encrypt.command"),
			Suffix:  v.GetString("encrypt.suffix"),
		},
		Notify: Notify{
			Webhook:        v.GetString("notify.webhook"),
			TokenURL:       v.GetString("notify.token_url"),
			MediaURL:       v.GetString("notify.media_url"),
			AppKey:         v.GetString("notify.app_key"),
			AppSecret:      v.GetString("notify.app_secret"),
			ConversationId: v.GetString("notify.conversation_id"),
			RobotCode:      v.GetString("notify.robot_code"),
			Attempts:       v.GetUint("notify.attempts"),
		},
		Alert: Alert{
			Webhook: v.GetString("alert.webhook"),
			Secret:  v.GetString("alert.secret"),
			Project: v.GetString("alert.project"),
		},
		Queue: &RabbitMQ{
			Host:      v.GetString("rabbitmq_host"),
			Port:      v.GetInt("rabbitmq_port"),
			User:      v.GetString("rabbitmq_user"),
			Pass:      v.GetString("rabbitmq_pass"),
			Vhost:     v.GetString("rabbitmq_vhost"),
			Kind:      v.GetString("rabbitmq_kind"),
			DialTries: v.GetUint("rabbitmq_dial_tries"),
		},
		Minio: Minio{
			URL:       v.GetString("minio.url"),
			AccessId:  v.GetString("minio.access_id"),
			SecretKey: v.GetString("minio.secret_access_key"),
			Bucket:    v.GetString("minio.bucket"),
			Secure:    v.GetBool("minio.secure"),
		},
		Server: Server{
			HttpPort: v.GetString("server.port"),
			Workers:  1, // runs must never overlap
		},
	}

	if err := v.UnmarshalKey("sources", &cfg.Sources); err != nil {
		return nil, err
	}
	// nested defaults are not merged into an unmarshalled sub-tree
	if cfg.Sources.Share.Days == 0 {
		cfg.Sources.Share.Days = 3
	}

	return cfg, nil
}

// NewMinioClient returns nil when no retention bucket is configured.
func NewMinioClient(cfg Minio) (*minio.Client, error) {
	if cfg.URL == "" || cfg.Bucket == "" {
		return nil, nil
	}
	return minio.New(cfg.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessId, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
}

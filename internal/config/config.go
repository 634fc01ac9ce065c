package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Server   ServerConfig `mapstructure:"server"`
	Client   ClientConfig `mapstructure:"client"`
}

type ServerConfig struct {
	Mode              string        `mapstructure:"mode"`
	Port              int           `mapstructure:"port"`
	ReadLimit         int64         `mapstructure:"read_limit"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	Secret            string        `mapstructure:"secret"`
	JWTSecret         string        `mapstructure:"jwt_secret"`
	MaxParticipants   int           `mapstructure:"max_participants"`
	AutoTranscription bool          `mapstructure:"auto_transcription"`
	JoinLimit         int           `mapstructure:"join_limit"`
	JoinWindow        time.Duration `mapstructure:"join_window"`
}

type ClientConfig struct {
	SignalURL        string        `mapstructure:"signal_url"`
	APIURL           string        `mapstructure:"api_url"`
	Token            string        `mapstructure:"token"`
	Room             string        `mapstructure:"room"`
	Title            string        `mapstructure:"title"`
	UserID           string        `mapstructure:"user_id"`
	UserName         string        `mapstructure:"user_name"`
	Host             bool          `mapstructure:"host"`
	Video            bool          `mapstructure:"video"`
	Audio            bool          `mapstructure:"audio"`
	ICEServers       []string      `mapstructure:"ice_servers"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	JoinTimeout      time.Duration `mapstructure:"join_timeout"`
	APITimeout       time.Duration `mapstructure:"api_timeout"`
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults when
// the file is missing. HUDDLE_* environment variables override both.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFrom(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFrom(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("HUDDLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Server.Mode).Int("port", cfg.Server.Port).Str("signal_url", cfg.Client.SignalURL).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("server.mode", "release")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_limit", 65536)
	v.SetDefault("server.ping_period", "54s")
	v.SetDefault("server.secret", "change-me")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.max_participants", 10)
	v.SetDefault("server.auto_transcription", true)
	v.SetDefault("server.join_limit", 5)
	v.SetDefault("server.join_window", "1m")

	v.SetDefault("client.signal_url", "ws://localhost:8080/api/ws/signal")
	v.SetDefault("client.api_url", "http://localhost:5000/api")
	// Keys without a default are invisible to env overrides on Unmarshal.
	v.SetDefault("client.token", "")
	v.SetDefault("client.room", "")
	v.SetDefault("client.user_id", "")
	v.SetDefault("client.host", false)
	v.SetDefault("client.user_name", "guest")
	v.SetDefault("client.title", "Huddle meeting")
	v.SetDefault("client.video", true)
	v.SetDefault("client.audio", true)
	v.SetDefault("client.ice_servers", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
		"stun:stun2.l.google.com:19302",
	})
	v.SetDefault("client.reconnect_backoff", "2s")
	v.SetDefault("client.join_timeout", "10s")
	v.SetDefault("client.api_timeout", "10s")
}

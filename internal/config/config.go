package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/arden/peercall/internal/media"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	RelayURL string `mapstructure:"relay_url"`
	// PeerID is the transport-level identity; empty means generate one.
	PeerID string `mapstructure:"peer_id"`

	ICEServers []string `mapstructure:"ice_servers"`

	InitiateDelay time.Duration `mapstructure:"initiate_delay"`
	KeepMediaWarm bool          `mapstructure:"keep_media_warm"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`

	AudioFile string `mapstructure:"audio_file"`
	VideoFile string `mapstructure:"video_file"`

	Media media.Constraints `mapstructure:"media"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// SetDefaults installs the defaults on v; split out so tests can load a
// config without a file on disk.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("relay_url", "ws://localhost:9000/ws")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("initiate_delay", "2s")
	v.SetDefault("keep_media_warm", false)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("audio_file", "testdata/audio.ogg")
	v.SetDefault("video_file", "testdata/video.ivf")

	d := media.DefaultConstraints()
	v.SetDefault("media.video_ideal_width", d.VideoIdealWidth)
	v.SetDefault("media.video_ideal_height", d.VideoIdealHeight)
	v.SetDefault("media.video_max_width", d.VideoMaxWidth)
	v.SetDefault("media.video_max_height", d.VideoMaxHeight)
	v.SetDefault("media.video_max_frame_rate", d.VideoMaxFrameRate)
	v.SetDefault("media.echo_cancellation", d.EchoCancellation)
	v.SetDefault("media.noise_suppression", d.NoiseSuppression)
	v.SetDefault("media.auto_gain_control", d.AutoGainControl)
}

package config

import (
	"errors"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Game     GameConfig     `mapstructure:"game"`
	Database DatabaseConfig `mapstructure:"database"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

// GameConfig holds the tunable race constants.
type GameConfig struct {
	MaxUsernameLength int `mapstructure:"max_username_length"`
	MaxPlayersInRoom  int `mapstructure:"max_players_in_room"`
	CountdownCount    int `mapstructure:"countdown_count"`
	CountdownSpeedMs  int `mapstructure:"countdown_speed_ms"`
	RaceTimerCount    int `mapstructure:"race_timer_count"`
	RaceTimerSpeedMs  int `mapstructure:"race_timer_speed_ms"`
	MaxAllowedRooms   int `mapstructure:"max_allowed_rooms"`
	MaxChatHistory    int `mapstructure:"max_chat_history"`
}

type DatabaseConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Driver selects the race history implementation: "gorm" or "pq".
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

func setDefaults() {
	viper.SetDefault("server.http_address", ":8080")
	viper.SetDefault("server.rpc_address", ":8081")
	viper.SetDefault("server.metrics_address", ":9100")

	viper.SetDefault("game.max_username_length", 20)
	viper.SetDefault("game.max_players_in_room", 4)
	viper.SetDefault("game.countdown_count", 3)
	viper.SetDefault("game.countdown_speed_ms", 1000)
	viper.SetDefault("game.race_timer_count", 60)
	viper.SetDefault("game.race_timer_speed_ms", 1000)
	viper.SetDefault("game.max_allowed_rooms", 100)
	viper.SetDefault("game.max_chat_history", 10)

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.driver", "gorm")
	viper.SetDefault("database.postgres.host", "localhost")
	viper.SetDefault("database.postgres.port", 5432)
}

// LoadConfig reads config.yaml from path. A missing file is not an error;
// defaults and environment variables still apply.
func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	setDefaults()
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}

// Default returns a Config populated with the built-in defaults only.
// Used by tests and the bundled bot client.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddress:    ":8080",
			RPCAddress:     ":8081",
			MetricsAddress: ":9100",
		},
		Game: GameConfig{
			MaxUsernameLength: 20,
			MaxPlayersInRoom:  4,
			CountdownCount:    3,
			CountdownSpeedMs:  1000,
			RaceTimerCount:    60,
			RaceTimerSpeedMs:  1000,
			MaxAllowedRooms:   100,
			MaxChatHistory:    10,
		},
	}
}

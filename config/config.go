package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Weekly   WeeklyConfig   `mapstructure:"weekly"`
	Events   EventsConfig   `mapstructure:"events"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

type GameConfig struct {
	// IdleThreshold is how long a player may sit on their turn before
	// the sweeper starts moving for them.
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// PracticeReward is credited to the human winner of a practice game.
	PracticeReward int64 `mapstructure:"practice_reward"`
	// OnlineReward is credited to the winner and debited from the loser
	// (when affordable) of a free online game.
	OnlineReward int64 `mapstructure:"online_reward"`
}

type WeeklyConfig struct {
	// RolloverCron fires at the ISO week boundary, Monday 00:00 UTC.
	RolloverCron  string        `mapstructure:"rollover_cron"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	MaxRetries    int           `mapstructure:"max_retries"`
	Tiers         []RewardTier  `mapstructure:"tiers"`
}

// RewardTier maps an inclusive rank range to a coin amount.
type RewardTier struct {
	MinRank int   `mapstructure:"min_rank"`
	MaxRank int   `mapstructure:"max_rank"`
	Amount  int64 `mapstructure:"amount"`
}

type EventsConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("server.http_address", ":8080")
	viper.SetDefault("server.rpc_address", ":8081")
	viper.SetDefault("server.metrics_address", ":9100")
	viper.SetDefault("game.idle_threshold", 40*time.Second)
	viper.SetDefault("game.sweep_interval", 5*time.Second)
	viper.SetDefault("game.practice_reward", 10)
	viper.SetDefault("game.online_reward", 25)
	viper.SetDefault("weekly.rollover_cron", "0 0 * * 1")
	viper.SetDefault("weekly.retry_interval", 5*time.Minute)
	viper.SetDefault("weekly.retry_backoff", 10*time.Minute)
	viper.SetDefault("weekly.max_retries", 10)
	viper.SetDefault("events.enabled", false)
	viper.SetDefault("events.exchange", "boardserver.events")
}

// DefaultTiers is used when the config file does not spell out a tier
// table. Fixed amounts for the podium, a mid tier through rank 10 and a
// long tail through rank 50.
func DefaultTiers() []RewardTier {
	return []RewardTier{
		{MinRank: 1, MaxRank: 1, Amount: 500},
		{MinRank: 2, MaxRank: 2, Amount: 300},
		{MinRank: 3, MaxRank: 3, Amount: 200},
		{MinRank: 4, MaxRank: 10, Amount: 100},
		{MinRank: 11, MaxRank: 50, Amount: 25},
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses "10m" style values out of the YAML file.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	MySQL  MySQLConfig  `yaml:"mysql"`
	Redis  RedisConfig  `yaml:"redis"`
	Orders OrdersConfig `yaml:"orders"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type MySQLConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

type OrdersConfig struct {
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		MySQL: MySQLConfig{
			DSN:          "root:root@tcp(localhost:3306)/canteen?parseTime=true",
			MaxOpenConns: 50,
			MaxIdleConns: 25,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		Orders: OrdersConfig{
			TTL:           Duration(10 * time.Minute),
			SweepInterval: Duration(60 * time.Second),
		},
	}
}

// Load reads the YAML file when present and then applies environment
// overrides. A missing file is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if v := os.Getenv("CANTEEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CANTEEN_MYSQL_DSN"); v != "" {
		cfg.MySQL.DSN = v
	}
	if v := os.Getenv("CANTEEN_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	return cfg, nil
}

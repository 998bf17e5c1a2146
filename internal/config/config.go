package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config comes from GAMEROOM_* environment variables, with a .env file
// loaded first when one exists.
type Config struct {
	Addr           string   `envconfig:"ADDR" default:":8080"`
	Env            string   `envconfig:"ENV" default:"development"`
	CodeLength     int      `envconfig:"CODE_LENGTH" default:"6"`
	OriginPatterns []string `envconfig:"ORIGIN_PATTERNS"`
}

func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("gameroom", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

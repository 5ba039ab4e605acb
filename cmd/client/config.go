package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerAddr string        `envconfig:"SERVER_ADDR" default:"localhost:50051"`
	HttpURL    string        `envconfig:"HTTP_URL" default:"http://localhost:8080"`
	Username   string        `envconfig:"USERNAME" required:"true"`
	Password   string        `envconfig:"PASSWORD" required:"true"`
	Timeout    time.Duration `envconfig:"CLIENT_TIMEOUT" default:"10s"`
	// CLIENT_COLOURS disables colours when piping the output
	Colours bool `envconfig:"CLIENT_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}

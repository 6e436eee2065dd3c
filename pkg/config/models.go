package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Call      CallConfig
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type CallConfig struct {
	// How long a call may sit in ringing before the sweep fails it.
	// Zero disables the sweep entirely.
	RingTimeout   time.Duration `mapstructure:"ringTimeout"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

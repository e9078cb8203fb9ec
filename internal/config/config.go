package config

import (
	"time"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub014/pkg/config"
)

// Config stores environment configuration for Switchboard.
type Config struct {
	Port            string
	DatabaseURL     string
	SweepInterval   time.Duration
	ReleaseBuffer   time.Duration
	ScheduleTimeout time.Duration
	ActuatorTimeout time.Duration
	ActuatorURL     string
	LineupPath      string
}

// LoadConfig loads the Switchboard configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:            config.GetEnv("PORT", "18020"),
		DatabaseURL:     config.RequireEnv("DATABASE_URL"),
		SweepInterval:   config.GetEnvDuration("SWEEP_INTERVAL", time.Minute),
		ReleaseBuffer:   config.GetEnvDuration("RELEASE_BUFFER", 30*time.Minute),
		ScheduleTimeout: config.GetEnvDuration("SCHEDULE_TIMEOUT", 5*time.Second),
		ActuatorTimeout: config.GetEnvDuration("ACTUATOR_TIMEOUT", 10*time.Second),
		ActuatorURL:     config.GetEnv("ACTUATOR_URL", ""),
		LineupPath:      config.GetEnv("LINEUP_PATH", ""),
	}
}

package app

import (
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
	"github.com/joeycumines/logiface"
)

// Config mirrors quartz.yaml. Queue fields count events, *_ms fields are
// milliseconds.
type Config struct {
	LogLevel string `yaml:"log_level"` // info (by default)

	LoopbackQueue   int `yaml:"loopback_queue"`   // 32
	CommonQueue     int `yaml:"common_queue"`     // 64
	ClientQueue     int `yaml:"client_queue"`     // 32
	InboxQueue      int `yaml:"inbox_queue"`      // 32
	TimerWorkQueue  int `yaml:"timer_work_queue"` // 32
	BackgroundQueue int `yaml:"background_queue"` // 32

	PutTimeoutMS int `yaml:"put_timeout_ms"` // 3000

	WatchdogIntervalMS int `yaml:"watchdog_interval_ms"` // 1000
	WatchdogTimeoutMS  int `yaml:"watchdog_timeout_ms"`  // 5000

	SamplePeriodMS int `yaml:"sample_period_ms"` // 5000
	WindowScale    int `yaml:"window_scale"`     // 2
}

func defaultConfig() Config {
	return Config{
		LogLevel:           "info",
		LoopbackQueue:      32,
		CommonQueue:        64,
		ClientQueue:        32,
		InboxQueue:         32,
		TimerWorkQueue:     32,
		BackgroundQueue:    32,
		PutTimeoutMS:       3000,
		WatchdogIntervalMS: 1000,
		WatchdogTimeoutMS:  5000,
		SamplePeriodMS:     5000,
		WindowScale:        2,
	}
}

// LoadConfig reads YAML and overrides defaults. An empty or missing path
// gives defaults only; malformed YAML is an error.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}

	// zero and negative fields take defaults
	def := defaultConfig()
	clampPos(&cfg.LoopbackQueue, def.LoopbackQueue)
	clampPos(&cfg.CommonQueue, def.CommonQueue)
	clampPos(&cfg.ClientQueue, def.ClientQueue)
	clampPos(&cfg.InboxQueue, def.InboxQueue)
	clampPos(&cfg.TimerWorkQueue, def.TimerWorkQueue)
	clampPos(&cfg.BackgroundQueue, def.BackgroundQueue)
	clampPos(&cfg.PutTimeoutMS, def.PutTimeoutMS)
	clampPos(&cfg.WatchdogIntervalMS, def.WatchdogIntervalMS)
	clampPos(&cfg.WatchdogTimeoutMS, def.WatchdogTimeoutMS)
	clampPos(&cfg.SamplePeriodMS, def.SamplePeriodMS)
	clampPos(&cfg.WindowScale, def.WindowScale)

	return cfg, nil
}

func clampPos(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func (c Config) PutTimeout() time.Duration {
	return time.Duration(c.PutTimeoutMS) * time.Millisecond
}

func (c Config) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogIntervalMS) * time.Millisecond
}

func (c Config) WatchdogTimeout() time.Duration {
	return time.Duration(c.WatchdogTimeoutMS) * time.Millisecond
}

func (c Config) SamplePeriod() time.Duration {
	return time.Duration(c.SamplePeriodMS) * time.Millisecond
}

// Level maps the configured keyword onto the syslog-style scale. Unknown
// keywords fall back to info.
func (c Config) Level() logiface.Level {
	switch c.LogLevel {
	case "trace":
		return logiface.LevelTrace
	case "debug":
		return logiface.LevelDebug
	case "notice":
		return logiface.LevelNotice
	case "warning", "warn":
		return logiface.LevelWarning
	case "err", "error":
		return logiface.LevelError
	case "crit", "critical":
		return logiface.LevelCritical
	}
	return logiface.LevelInformational
}

package config

import (
	"flag"
	"time"
)

var (
	flagConfig         = flag.String("config", "", "Path to config file")
	flagDebug          = flag.Bool("debug", false, "Enable debug logging")
	flagUpdateInterval = flag.Duration("update-interval", -1, "Time between full pose evaluations (0 = every tick)")
	flagWaitCloth      = flag.Bool("wait-cloth", false, "Join the cloth task before the tick returns")
	flagStrict         = flag.Bool("strict", false, "Panic on caller contract violations")
	flagSerial         = flag.Bool("serial", false, "Evaluate pose and cloth on the calling goroutine")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagUpdateInterval >= 0 {
		cfg.Animation.UpdateRateInterval = *flagUpdateInterval
	}
	if *flagWaitCloth {
		cfg.Cloth.WaitForCompletion = true
	}
	if *flagStrict {
		cfg.Debug.StrictContracts = true
	}
	if *flagSerial {
		cfg.Animation.Parallel = false
		cfg.Cloth.Parallel = false
	}
}

// unset restores flag defaults; tests use it between cases.
func unset() {
	*flagConfig = ""
	*flagDebug = false
	*flagUpdateInterval = time.Duration(-1)
	*flagWaitCloth = false
	*flagStrict = false
	*flagSerial = false
}

package main

// envConfig is the environment-variable surface. Anything set here wins
// over flags and the config file.
type envConfig struct {
	Addr    string `env:"HARK_ADDR"`
	Voice   string `env:"HARK_VOICE"`
	Session string `env:"HARK_SESSION"`
	DataDir string `env:"HARK_DATA_DIR"`
	LogFile string `env:"HARK_LOG_FILE"`
	Debug   bool   `env:"HARK_DEBUG"`
}

package config

import "sync"

type Config struct {
	Server         ServerConfig  `yaml:"server" mapstructure:"server"`
	Logging        LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Paths          PathsConfig   `yaml:"paths" mapstructure:"paths"`
	Authentication AuthConfig    `yaml:"authentication" mapstructure:"authentication"`
	AutoArchive    bool          `yaml:"auto_archive" mapstructure:"auto_archive"`
}

type ServerConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Host    string `yaml:"host" mapstructure:"host"`
	Port    int    `yaml:"port" mapstructure:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

type PathsConfig struct {
	// HelperPath locates the native helper binary that performs the
	// actual downloads.
	HelperPath        string   `yaml:"helper_path" mapstructure:"helper_path"`
	HelperArgs        []string `yaml:"helper_args" mapstructure:"helper_args"`
	DownloadPath      string   `yaml:"download_path" mapstructure:"download_path"`
	LocalDatabasePath string   `yaml:"local_database_path" mapstructure:"local_database_path"`
}

type AuthConfig struct {
	RequireAuth  bool   `yaml:"require_auth" mapstructure:"require_auth"`
	Username     string `yaml:"username" mapstructure:"username"`
	PasswordHash string `yaml:"password" mapstructure:"password"`
	Secret       string `yaml:"secret" mapstructure:"secret"`
}

var (
	instance     *Config
	instanceOnce sync.Once
)

func Instance() *Config {
	if instance == nil {
		instanceOnce.Do(func() {
			instance = &Config{}
		})
	}
	return instance
}

package config

type Config interface {
	EnvConfig
	CorsConfig
	RefreshConfig
	ProviderConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars
	Cors
	Refresh
	Provider
	Store
}

func New() Config {
	return mainConfig{}
}

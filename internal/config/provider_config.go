package config

const (
	ProviderGoTrue = "gotrue"
	ProviderOIDC   = "oidc"

	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type ProviderConfig interface {
	GetAuthProvider() string
	GetSupabaseURL() string
	GetSupabaseAnonKey() string
	GetOIDCIssuer() string
	GetOIDCClientID() string
	GetOIDCClientSecret() string
}

type StoreConfig interface {
	GetSessionStore() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetSessionKey() string
}

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetAuthProvider() string {
	return GetEnv("AUTH_PROVIDER", ProviderGoTrue)
}

func (Provider) GetSupabaseURL() string {
	return GetEnv("SUPABASE_URL", "")
}

func (Provider) GetSupabaseAnonKey() string {
	return GetEnv("SUPABASE_ANON_KEY", "")
}

func (Provider) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (Provider) GetOIDCClientID() string {
	return GetEnv("OIDC_CLIENT_ID", "")
}

func (Provider) GetOIDCClientSecret() string {
	return GetEnv("OIDC_CLIENT_SECRET", "")
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetSessionStore() string {
	return GetEnv("SESSION_STORE", StoreMemory)
}

func (Store) GetRedisAddr() string {
	return GetEnv("REDIS_ADDR", "localhost:6379")
}

func (Store) GetRedisPassword() string {
	return GetEnv("REDIS_PASSWORD", "")
}

// GetSessionKey identifies the persisted session, the equivalent of the browser storage key.
func (Store) GetSessionKey() string {
	return GetEnv("SESSION_KEY", "cryptoalarm-auth-token")
}

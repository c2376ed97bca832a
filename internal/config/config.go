package config

import "fmt"

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	ServerAddr     string
	StoreBackend   string
	RedisAddr      string
	RedisPassword  string
	UploadDir      string
	AllowedOrigins []string
}

func NewConfig(serverAddr, storeBackend, redisAddr, redisPassword, uploadDir string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if uploadDir == "" {
		return nil, fmt.Errorf("upload directory cannot be empty")
	}

	switch storeBackend {
	case StoreRedis:
		if redisAddr == "" {
			return nil, fmt.Errorf("redis address cannot be empty")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown store backend %q", storeBackend)
	}

	return &Config{
		ServerAddr:     serverAddr,
		StoreBackend:   storeBackend,
		RedisAddr:      redisAddr,
		RedisPassword:  redisPassword,
		UploadDir:      uploadDir,
		AllowedOrigins: allowedOrigins,
	}, nil
}

package redis

import "time"

// ClientConfig holds Redis connection configuration.
type ClientConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
}

// ClientOption configures the client.
type ClientOption func(*ClientConfig)

// WithAddr sets host and port.
func WithAddr(host string, port int) ClientOption {
	return func(c *ClientConfig) {
		c.Host = host
		c.Port = port
	}
}

// WithCredentials sets the password.
func WithCredentials(password string) ClientOption {
	return func(c *ClientConfig) {
		c.Password = password
	}
}

// WithDB selects the logical database.
func WithDB(db int) ClientOption {
	return func(c *ClientConfig) {
		c.DB = db
	}
}

// WithPool sets pool sizing.
func WithPool(size, minIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.PoolSize = size
		c.MinIdleConns = minIdle
	}
}

package db

import (
	"fmt"
	"net"
	"net/url"

	"github.com/jackc/pgx/v5"
)

const (
	DefaultHost     = "localhost"
	DefaultPort     = "5432"
	DefaultDatabase = "postgres"
	DefaultUser     = "postgres"
	DefaultSSLMode  = "disable"
)

// Config describes how to reach the one database this process serves. When URI is set it
// takes precedence over the individual fields.
type Config struct {
	URI string

	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string
}

func (c *Config) Validate() error {
	if c.URI != "" {
		if _, err := pgx.ParseConfig(c.URI); err != nil {
			return fmt.Errorf("invalid postgres URI: %w", err)
		}
		return nil
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if c.SSLMode == "" {
		c.SSLMode = DefaultSSLMode
	}
	if c.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	return nil
}

// ConnString returns a postgres:// URL for the configured database.
func (c *Config) ConnString() string {
	if c.URI != "" {
		return c.URI
	}
	return c.url(url.UserPassword(c.User, c.Password)).String()
}

// Redacted returns the connection string with the password masked, for logging.
func (c *Config) Redacted() string {
	if c.URI == "" {
		return c.url(url.UserPassword(c.User, c.Password)).Redacted()
	}
	u, err := url.Parse(c.URI)
	if err != nil || u.Scheme == "" {
		// keyword/value DSNs are not URLs; don't risk echoing a password back
		return "REDACTED"
	}
	return u.Redacted()
}

func (c *Config) url(user *url.Userinfo) *url.URL {
	u := &url.URL{
		Scheme: "postgres",
		User:   user,
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", c.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u
}

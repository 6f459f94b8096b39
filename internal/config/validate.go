package config

import (
	"fmt"
	"strings"
)

// Validate performs business-rule validation on the loaded configuration.
// It must be called after loading; Load calls it automatically.
func (c *Config) Validate() error {
	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters (got %d)", len(c.Auth.JWTSecret))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535 (got %d)", c.Server.Port)
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("database.min_conns (%d) must not exceed max_conns (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	if !strings.HasPrefix(c.GraphQL.Path, "/") {
		return fmt.Errorf("graphql.path must start with / (got %q)", c.GraphQL.Path)
	}
	if !strings.HasPrefix(c.GraphQL.ChannelPath, "/") {
		return fmt.Errorf("graphql.channel_path must start with / (got %q)", c.GraphQL.ChannelPath)
	}

	if c.GraphQL.MaxQueryBytes <= 0 {
		return fmt.Errorf("graphql.max_query_bytes must be > 0 (got %d)", c.GraphQL.MaxQueryBytes)
	}

	return nil
}

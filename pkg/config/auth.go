package config

import (
	"github.com/arcafs/arca/pkg/auth"
)

// CreateUsers creates the credential set from the configuration.
func (c *Config) CreateUsers() (*auth.Users, error) {
	return auth.NewUsers(c.Auth.Users)
}

// CreateOracle creates the authorization policy from the configuration.
// With authentication disabled every request is allowed.
func (c *Config) CreateOracle() auth.Oracle {
	if !c.Auth.Enabled {
		return auth.AllowAll{}
	}
	return auth.RoleOracle{}
}

// CreateJWTService creates the token service from the configuration.
func (c *Config) CreateJWTService() (*auth.JWTService, error) {
	return auth.NewJWTService(auth.JWTConfig{
		Secret:               c.Auth.JWT.Secret,
		Issuer:               c.Auth.JWT.Issuer,
		AccessTokenDuration:  c.Auth.JWT.AccessTokenDuration,
		RefreshTokenDuration: c.Auth.JWT.RefreshTokenDuration,
	})
}

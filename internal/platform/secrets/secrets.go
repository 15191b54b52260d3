// Package secrets abstracts where database credentials come from. The
// store client asks a Provider exactly once at startup; rotating secrets
// means restarting with a fresh provider, never re-reading mid-flight.
package secrets

import (
	"context"
	"os"
	"strconv"

	dErrors "platewatch/pkg/domain-errors"
)

// DatabaseCredentials is everything needed to open the consent database.
type DatabaseCredentials struct {
	Host     string
	Port     int
	Username string
	Password string
	DBName   string
}

// Provider supplies database credentials once at startup.
type Provider interface {
	DatabaseCredentials(ctx context.Context) (DatabaseCredentials, error)
}

// EnvProvider reads credentials from the environment. Deployments backed
// by a real secret manager implement Provider against that instead.
type EnvProvider struct{}

func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) DatabaseCredentials(_ context.Context) (DatabaseCredentials, error) {
	creds := DatabaseCredentials{
		Host:     os.Getenv("PLATEWATCH_DB_HOST"),
		Username: os.Getenv("PLATEWATCH_DB_USER"),
		Password: os.Getenv("PLATEWATCH_DB_PASSWORD"),
		DBName:   os.Getenv("PLATEWATCH_DB_NAME"),
		Port:     5432,
	}
	if raw := os.Getenv("PLATEWATCH_DB_PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return DatabaseCredentials{}, dErrors.Wrap(err, dErrors.CodeConfiguration, "PLATEWATCH_DB_PORT is not a number")
		}
		creds.Port = port
	}
	if creds.Host == "" || creds.Username == "" || creds.DBName == "" {
		return DatabaseCredentials{}, dErrors.New(dErrors.CodeConfiguration,
			"database credentials incomplete: host, user and dbname are required")
	}
	return creds, nil
}

package state

import (
	"context"
	"fmt"

	"github.com/beethovenx/vegov/internal/config"
)

// Open returns the store selected by STORE_BACKEND.
func Open(ctx context.Context) (KV, error) {
	switch config.StoreBackend {
	case config.StoreBackendPostgres:
		return NewPostgresStore(ctx, DBConfig{
			Host:     config.DBHost,
			Port:     config.DBPort,
			User:     config.DBUser,
			Password: config.DBPassword,
			DBName:   config.DBName,
			SSLMode:  config.DBSSLMode,
		})
	case config.StoreBackendBadger, "":
		return NewBadgerStore(BadgerConfig{Dir: config.BadgerDir})
	default:
		return nil, fmt.Errorf("unknown store backend %q", config.StoreBackend)
	}
}

package storage

import (
	"context"
	"fmt"

	"github.com/cartsync/cartsync-backend/internal/db"
	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/types"
	"github.com/cartsync/cartsync-backend/internal/utils"
)

// Adapter persists the full list collection as one atomic unit. Load on a
// fresh installation returns an empty collection, not an error. Save must
// leave the previous durable version readable if it fails partway.
type Adapter interface {
	Load(ctx context.Context) ([]*types.ShoppingList, error)
	Save(ctx context.Context, lists []*types.ShoppingList) error
}

// New selects the adapter from STORAGE_DRIVER: "file" (default), "sqlite" or
// "postgres".
func New(log *logger.Logger) (Adapter, error) {
	driver := utils.GetEnv("STORAGE_DRIVER", "file", log)
	switch driver {
	case "file":
		path := utils.GetEnv("STORAGE_PATH", "cartsync_lists.json", log)
		return NewFileAdapter(path, log), nil
	case "sqlite":
		gdb, err := db.NewSQLite(log)
		if err != nil {
			return nil, err
		}
		return NewGormAdapter(gdb, log)
	case "postgres":
		gdb, err := db.NewPostgres(log)
		if err != nil {
			return nil, err
		}
		return NewGormAdapter(gdb, log)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", driver)
	}
}

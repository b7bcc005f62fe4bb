package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/types"
)

// listRecord is the database row for one list. Items travel as a JSON column
// so the whole collection replace stays a single transaction.
type listRecord struct {
	ID        string         `gorm:"primaryKey;column:id"`
	Name      string         `gorm:"not null;column:name"`
	Revision  uint64         `gorm:"not null;column:revision"`
	Items     datatypes.JSON `gorm:"column:items"`
	CreatedAt time.Time      `gorm:"not null;column:created_at"`
	UpdatedAt time.Time      `gorm:"not null;column:updated_at"`
}

func (listRecord) TableName() string {
	return "shopping_list"
}

type gormAdapter struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewGormAdapter migrates the schema and persists the collection through the
// given gorm handle (SQLite or Postgres).
func NewGormAdapter(gdb *gorm.DB, log *logger.Logger) (Adapter, error) {
	adapterLog := log.With("adapter", "GormAdapter")
	adapterLog.Info("Auto migrating shopping list table...")
	if err := gdb.AutoMigrate(&listRecord{}); err != nil {
		adapterLog.Error("Auto migration failed", "error", err)
		return nil, fmt.Errorf("automigrate shopping_list: %w", err)
	}
	return &gormAdapter{db: gdb, log: adapterLog}, nil
}

func (g *gormAdapter) Load(ctx context.Context) ([]*types.ShoppingList, error) {
	var records []listRecord
	if err := g.db.WithContext(ctx).Order("created_at").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("load lists: %w", err)
	}

	lists := make([]*types.ShoppingList, 0, len(records))
	for _, rec := range records {
		list := &types.ShoppingList{
			ID:        rec.ID,
			Name:      rec.Name,
			Revision:  rec.Revision,
			Items:     []types.ListItem{},
			CreatedAt: rec.CreatedAt,
			UpdatedAt: rec.UpdatedAt,
		}
		if len(rec.Items) > 0 {
			if err := json.Unmarshal(rec.Items, &list.Items); err != nil {
				return nil, fmt.Errorf("unmarshal items for list %s: %w", rec.ID, err)
			}
		}
		lists = append(lists, list)
	}
	g.log.Info("Loaded lists from database", "lists", len(lists))
	return lists, nil
}

func (g *gormAdapter) Save(ctx context.Context, lists []*types.ShoppingList) error {
	records := make([]listRecord, 0, len(lists))
	for _, list := range lists {
		items, err := json.Marshal(list.Items)
		if err != nil {
			return fmt.Errorf("marshal items for list %s: %w", list.ID, err)
		}
		records = append(records, listRecord{
			ID:        list.ID,
			Name:      list.Name,
			Revision:  list.Revision,
			Items:     items,
			CreatedAt: list.CreatedAt,
			UpdatedAt: list.UpdatedAt,
		})
	}

	// Replace the whole collection in one transaction so a failure leaves
	// the previous durable version intact.
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&listRecord{}).Error; err != nil {
			return fmt.Errorf("clear lists: %w", err)
		}
		if len(records) == 0 {
			return nil
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("insert lists: %w", err)
		}
		return nil
	})
}

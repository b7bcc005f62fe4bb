package seed

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cartsync/cartsync-backend/internal/liststore"
	"github.com/cartsync/cartsync-backend/internal/pkg/logger"
	"github.com/cartsync/cartsync-backend/internal/utils"
)

type seedItem struct {
	Text    string `yaml:"text"`
	Note    string `yaml:"note"`
	Checked bool   `yaml:"checked"`
}

type seedList struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Items []seedItem `yaml:"items"`
}

type seedFile struct {
	Lists []seedList `yaml:"lists"`
}

// Apply creates starter lists from the YAML file named by SEED_FILE on a
// fresh installation (empty store). Existing data always wins; seeding is
// skipped entirely when any list is present.
func Apply(store *liststore.Store, log *logger.Logger) error {
	path := utils.GetEnv("SEED_FILE", "", log)
	if path == "" {
		return nil
	}
	seedLog := log.With("component", "Seed", "path", path)

	if len(store.Lists()) > 0 {
		seedLog.Debug("Store not empty, skipping seed")
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var doc seedFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for _, sl := range doc.Lists {
		list, err := store.CreateList(sl.ID, sl.Name)
		if err != nil {
			return fmt.Errorf("seed list %q: %w", sl.Name, err)
		}
		for _, si := range sl.Items {
			item, _, err := store.AddItem(list.ID, si.Text, si.Note)
			if err != nil {
				return fmt.Errorf("seed item %q: %w", si.Text, err)
			}
			if si.Checked {
				checked := true
				if _, _, err := store.UpdateItem(list.ID, item.ID, liststore.ItemUpdate{Checked: &checked}); err != nil {
					return fmt.Errorf("seed item %q: %w", si.Text, err)
				}
			}
		}
		seedLog.Info("Seeded list", "list_id", list.ID, "name", list.Name, "items", len(sl.Items))
	}
	return nil
}

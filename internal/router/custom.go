package router

import (
	"log"
	"sync"

	"github.com/ccrelay/nexus/internal/db/models"
	"gorm.io/gorm"
)

// CustomMapping is the gorm-backed, reloadable first tier of the Model
// Router, seeded from the `model_routes` table (itself seeded from YAML by
// internal/db.InitDB), grounded on internal/db.sqlite.go's
// modelRouteCache/RWMutex pattern.
type CustomMapping struct {
	mu    sync.RWMutex
	table map[string]string
}

// NewCustomMapping loads the current route table from the database.
func NewCustomMapping(db *gorm.DB) *CustomMapping {
	m := &CustomMapping{table: make(map[string]string)}
	m.Reload(db)
	return m
}

// Reload rebuilds the snapshot from the database (config hot-reload).
func (m *CustomMapping) Reload(db *gorm.DB) {
	var routes []models.ModelRoute
	if err := db.Where("is_active = ?", true).Find(&routes).Error; err != nil {
		log.Printf("⚠️ failed to reload model routes: %v", err)
		return
	}

	table := make(map[string]string, len(routes))
	for _, r := range routes {
		table[r.ClientModel] = r.TargetModel
	}

	m.mu.Lock()
	m.table = table
	m.mu.Unlock()
}

func (m *CustomMapping) Lookup(model string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	target, ok := m.table[model]
	return target, ok
}

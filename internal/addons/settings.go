package addons

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/featherpanel/backend/internal/models"
)

// SettingsStore reads and writes per-addon key/value settings.
type SettingsStore struct {
	db *gorm.DB
}

// NewSettingsStore creates a settings store backed by db.
func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// All returns every setting for the given addon identifier.
func (s *SettingsStore) All(identifier string) (map[string]string, error) {
	var rows []models.PluginSetting
	if err := s.db.Where("identifier = ?", identifier).Find(&rows).Error; err != nil {
		return nil, err
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}

// Set upserts a single setting for the given addon identifier.
func (s *SettingsStore) Set(identifier, key, value string) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identifier"}, {Name: "setting_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"setting_value", "updated_at"}),
	}).Create(&models.PluginSetting{
		Identifier: identifier,
		Key:        key,
		Value:      value,
	}).Error
}

// Delete removes all settings for the given addon identifier.
func (s *SettingsStore) Delete(identifier string) error {
	return s.db.Where("identifier = ?", identifier).Delete(&models.PluginSetting{}).Error
}

package models

import "time"

// SettingType defines supported types for scheduling setting values.
type SettingType string

const (
	SettingTypeString  SettingType = "STRING"
	SettingTypeInteger SettingType = "INTEGER"
	SettingTypeFloat   SettingType = "FLOAT"
	SettingTypeBoolean SettingType = "BOOLEAN"
	SettingTypeJSON    SettingType = "JSON"
)

// SchedulingSetting represents a persisted scheduler configuration entry.
// Values are stored as strings and parsed according to their declared type.
type SchedulingSetting struct {
	Key         string      `db:"key" json:"key"`
	Value       string      `db:"value" json:"value"`
	Type        SettingType `db:"type" json:"type"`
	Description *string     `db:"description" json:"description,omitempty"`
	UpdatedBy   *string     `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

package database

import (
	"fmt"
	"regexp"

	"gorm.io/gorm"
)

// SchemaManager provisions and tears down the per-tenant postgres
// schemas used by projects with the "schema" isolation strategy.
type SchemaManager interface {
	CreateSchema(name string) error
	DropSchema(name string) error
}

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostgresSchemaManager runs schema DDL against the broker database.
type PostgresSchemaManager struct {
	db *gorm.DB
}

// NewSchemaManager returns a SchemaManager backed by the given connection.
func NewSchemaManager(db *gorm.DB) *PostgresSchemaManager {
	return &PostgresSchemaManager{db: db}
}

// CreateSchema creates the schema if it does not exist. The name is
// validated against a strict identifier pattern because schema names
// cannot be bound as query parameters.
func (m *PostgresSchemaManager) CreateSchema(name string) error {
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("invalid schema name %q", name)
	}
	return m.db.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, name)).Error
}

// DropSchema drops the schema and everything in it.
func (m *PostgresSchemaManager) DropSchema(name string) error {
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("invalid schema name %q", name)
	}
	return m.db.Exec(fmt.Sprintf(`DROP SCHEMA IF EXISTS %q CASCADE`, name)).Error
}

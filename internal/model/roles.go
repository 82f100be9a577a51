package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// RoleList is an unordered set of role names stored as a JSON column.
type RoleList []string

// Value implements driver.Valuer so gorm can persist the list as JSON.
func (r RoleList) Value() (driver.Value, error) {
	if r == nil {
		r = RoleList{}
	}
	return json.Marshal(r)
}

// Scan implements sql.Scanner for reading the JSON column back.
func (r *RoleList) Scan(value interface{}) error {
	if value == nil {
		*r = RoleList{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported role list column type %T", value)
	}

	if len(data) == 0 {
		*r = RoleList{}
		return nil
	}

	if err := json.Unmarshal(data, r); err != nil {
		return errors.New("malformed role list column: " + err.Error())
	}
	return nil
}

// Contains reports whether the list includes the given role.
func (r RoleList) Contains(role string) bool {
	for _, candidate := range r {
		if candidate == role {
			return true
		}
	}
	return false
}

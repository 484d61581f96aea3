package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx/types"
)

// JSONB is a jsonb object column. It stays a map so builders can add keys in
// place; the driver encoding goes through types.JSONText. A nil map is stored as NULL.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	raw, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("jsonb: %w", err)
	}
	return types.JSONText(raw).Value()
}

func (j *JSONB) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}
	var text types.JSONText
	if err := text.Scan(src); err != nil {
		return fmt.Errorf("jsonb: cannot scan %T: %w", src, err)
	}
	m := JSONB{}
	if err := text.Unmarshal(&m); err != nil {
		return fmt.Errorf("jsonb: %w", err)
	}
	*j = m
	return nil
}

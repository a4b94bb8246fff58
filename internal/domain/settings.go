package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TemplateList is a pool of message bodies stored as a JSON column.
type TemplateList []string

func (t TemplateList) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal template list: %w", err)
	}
	return string(data), nil
}

func (t *TemplateList) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = nil
		return nil
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("unsupported type %T for template list", src)
	}
}

// DispatchSettings are the per-company pacing bounds and template pool.
type DispatchSettings struct {
	CompanyID          string       `db:"company_id" json:"companyId"`
	DelayMinSeconds    int          `db:"delay_min_seconds" json:"delayMinSeconds"`
	DelayMaxSeconds    int          `db:"delay_max_seconds" json:"delayMaxSeconds"`
	GroupBaseSeconds   int          `db:"group_base_seconds" json:"groupBaseSeconds"`
	GroupJitterSeconds int          `db:"group_jitter_seconds" json:"groupJitterSeconds"`
	Templates          TemplateList `db:"templates" json:"templates"`
	DefaultLink        string       `db:"default_link" json:"defaultLink"`
	UpdatedAt          time.Time    `db:"updated_at" json:"updatedAt"`
}

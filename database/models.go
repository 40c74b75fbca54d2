package database

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"perp-radar/model"
)

// StringArray stores a []string as a JSON array column.
type StringArray []string

// Value implements driver.Valuer.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	return string(b), err
}

// Scan implements sql.Scanner.
func (a *StringArray) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	case nil:
		*a = nil
		return nil
	default:
		return fmt.Errorf("unsupported type %T for StringArray", src)
	}
}

// Payload stores the alert's numeric snapshot as a JSON object column.
type Payload model.AlertData

// Value implements driver.Valuer.
func (p Payload) Value() (driver.Value, error) {
	b, err := json.Marshal(model.AlertData(p))
	return string(b), err
}

// Scan implements sql.Scanner.
func (p *Payload) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, (*model.AlertData)(p))
	case string:
		return json.Unmarshal([]byte(v), (*model.AlertData)(p))
	case nil:
		*p = Payload{}
		return nil
	default:
		return fmt.Errorf("unsupported type %T for Payload", src)
	}
}

// ConfluenceAlert is the persisted row form of a model.Alert.
type ConfluenceAlert struct {
	ID              string      `gorm:"column:id;primaryKey"`
	Symbol          string      `gorm:"column:symbol;type:text;not null"`
	SetupType       string      `gorm:"column:setup_type;type:text;not null"`
	Severity        string      `gorm:"column:severity;type:text;not null"`
	Title           string      `gorm:"column:title;type:text"`
	Description     string      `gorm:"column:description;type:text"`
	Signals         StringArray `gorm:"column:signals;type:jsonb"`
	ConfluenceScore int         `gorm:"column:confluence_score"`
	Timestamp       int64       `gorm:"column:timestamp"`
	Data            Payload     `gorm:"column:data;type:jsonb"`
	CreatedAt       time.Time   `gorm:"column:created_at"`
}

// TableName overrides the GORM default.
func (ConfluenceAlert) TableName() string {
	return "confluence_alerts"
}

// rowFromAlert converts the domain record to its persisted form.
func rowFromAlert(a *model.Alert) ConfluenceAlert {
	return ConfluenceAlert{
		ID:              a.ID,
		Symbol:          a.Symbol,
		SetupType:       a.SetupType,
		Severity:        a.Severity,
		Title:           a.Title,
		Description:     a.Description,
		Signals:         StringArray(a.Signals),
		ConfluenceScore: a.ConfluenceScore,
		Timestamp:       a.Timestamp,
		Data:            Payload(a.Data),
	}
}

// Alert converts the row back to the domain record.
func (r *ConfluenceAlert) Alert() model.Alert {
	return model.Alert{
		ID:              r.ID,
		Symbol:          r.Symbol,
		SetupType:       r.SetupType,
		Severity:        r.Severity,
		Title:           r.Title,
		Description:     r.Description,
		Signals:         []string(r.Signals),
		ConfluenceScore: r.ConfluenceScore,
		Timestamp:       r.Timestamp,
		Data:            model.AlertData(r.Data),
	}
}

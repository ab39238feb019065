package alerts

import (
	"encoding/json"
	"fmt"
)

// CreateRequest is the body of POST /api/alerts.
type CreateRequest struct {
	Symbol      string  `json:"symbol" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	TargetPrice float64 `json:"targetPrice" validate:"required,gt=0"`
	Condition   string  `json:"condition" validate:"required,oneof=above below"`
}

// PatchRequest is the body of PATCH /api/alerts/{id}. Absent fields are left
// untouched.
type PatchRequest struct {
	IsActive  *FlexBool `json:"isActive"`
	Triggered *FlexBool `json:"triggered"`
}

// FlexBool decodes a JSON boolean or the strings "true" and "false". Any
// other value decodes as false.
type FlexBool bool

func (b *FlexBool) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = FlexBool(t)
	case string:
		*b = t == "true"
	default:
		*b = false
	}
	return nil
}

func Bool(v bool) *FlexBool {
	b := FlexBool(v)
	return &b
}

// ValidationError is returned for a request rejected before any mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alert: %s", e.Message)
}

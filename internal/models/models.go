package models

import "time"

type Customer struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	FromAddress string    `json:"from_address,omitempty"`
	ToAddress   string    `json:"to_address,omitempty"`
	MovingDate  string    `json:"moving_date,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CustomerPatch is a partial update. Nil fields are left untouched.
type CustomerPatch struct {
	Name        *string   `json:"name,omitempty"`
	Email       *string   `json:"email,omitempty"`
	Phone       *string   `json:"phone,omitempty"`
	FromAddress *string   `json:"from_address,omitempty"`
	ToAddress   *string   `json:"to_address,omitempty"`
	MovingDate  *string   `json:"moving_date,omitempty"`
	Notes       *string   `json:"notes,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

// IsEmpty reports whether the patch would change nothing.
func (p CustomerPatch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil &&
		p.FromAddress == nil && p.ToAddress == nil && p.MovingDate == nil &&
		p.Notes == nil && p.Tags == nil
}

type MergeLog struct {
	ID           int64     `json:"id"`
	Mode         string    `json:"mode"`
	MasterID     string    `json:"master_id"`
	RemovedIDs   []string  `json:"removed_ids"`
	MatchType    string    `json:"match_type,omitempty"`
	Confidence   float64   `json:"confidence"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	MergeModeManual = "manual"
	MergeModeAuto   = "auto"
	MergeModeDelete = "delete"
)

type Stats struct {
	TotalCustomers int `json:"total_customers"`
	TotalGroups    int `json:"total_groups"`
	Exact          int `json:"exact"`
	Similar        int `json:"similar"`
	Potential      int `json:"potential"`
	Processed      int `json:"processed"`
}

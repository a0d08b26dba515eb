package audit

import "time"

// TimelineFilters holds the audit log viewer filters.
type TimelineFilters struct {
	From         time.Time
	To           time.Time
	Actor        string
	Action       string
	ResourceType string
	Page         int
	PageSize     int
}

// TimelineRow is one audit record joined with the acting admin's email.
type TimelineRow struct {
	At           time.Time      `db:"created_at" json:"created_at"`
	AdminID      string         `db:"admin_id" json:"admin_id"`
	AdminEmail   string         `db:"admin_email" json:"admin_email,omitempty"`
	Action       string         `db:"action" json:"action"`
	ResourceType string         `db:"resource_type" json:"resource_type"`
	ResourceID   string         `db:"resource_id" json:"resource_id"`
	Details      map[string]any `db:"details" json:"details,omitempty"`
}

// PagingInfo stores simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// FiltersViewModel carries filter values back into the template.
type FiltersViewModel struct {
	From         time.Time
	To           time.Time
	Actor        string
	Action       string
	ResourceType string
}

// ViewModel bundles everything the audit log page renders.
type ViewModel struct {
	Filters FiltersViewModel
	Rows    []TimelineRow
	Paging  PagingInfo
	Error   string
}

package audit

import "time"

// ActivityLog is one recorded user action: who did what, described for
// humans, with the client address and device captured by the request
// pipeline.
type ActivityLog struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	IPAddress   string    `json:"ip_address"`
	Device      string    `json:"device"`
	CreatedAt   time.Time `json:"created_at"`
}

// Filters narrows activity-log listings.
type Filters struct {
	UserID   string
	Action   string
	Page     int
	PageSize int
}

// PagingInfo describes the window returned by List.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
}

// Result bundles rows with paging state.
type Result struct {
	Rows   []ActivityLog `json:"results"`
	Paging PagingInfo    `json:"paging"`
}

package dto

// CounterResponse represents a full counter record
type CounterResponse struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Value     int64  `json:"value"`
	CreatedAt string `json:"created_at"` // RFC3339, UTC
	UpdatedAt string `json:"updated_at"` // RFC3339, UTC
}

// CounterValueResponse is returned by the value, increment, decrement and reset endpoints
type CounterValueResponse struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

// ListCountersRequest represents the query of the counter list endpoint
type ListCountersRequest struct {
	Page     int    `query:"page" json:"page" validate:"min=1"`                    // Page number (1-based)
	PageSize int    `query:"page_size" json:"page_size" validate:"min=1,max=100"` // Number of items per page
	Prefix   string `query:"prefix" json:"prefix,omitempty" validate:"max=100"`   // Optional name prefix filter
}

// ListCountersResponse represents one page of counters
type ListCountersResponse struct {
	Items      []CounterResponse `json:"items"`
	Pagination PaginationInfo    `json:"pagination"`
}

// PaginationInfo represents pagination metadata
type PaginationInfo struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int   `json:"total_pages"`
	HasNext     bool  `json:"has_next"`
	HasPrevious bool  `json:"has_previous"`
}

// HealthResponse is the payload of the health endpoint
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
	Service   string `json:"service"`
	Database  string `json:"database"`
	Cache     string `json:"cache"`
}

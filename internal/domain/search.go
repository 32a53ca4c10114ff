package domain

import "time"

// MessageFilter is the criteria for GET /emails listing.
type MessageFilter struct {
	AccountID string
	Folder    string
	IsRead    *bool
	FromDate  *time.Time
	ToDate    *time.Time
	Page      int
	Limit     int
}

// MessagePage is a page of listed or searched messages.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
}

// SearchQuery is a full-text query over the FTS index (q=) or a
// substring sender search (sender=); at most one is set per call.
type SearchQuery struct {
	UserID string
	Text   string
	Sender string
	Page   int
	Limit  int
}

// Normalize fills in default paging and clamps it to sane bounds.
func (f *MessageFilter) Normalize() {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
}

// Normalize fills in default paging and clamps it to sane bounds.
func (q *SearchQuery) Normalize() {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	if q.Limit > 100 {
		q.Limit = 100
	}
}

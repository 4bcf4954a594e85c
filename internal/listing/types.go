// Package listing drives incremental retrieval of a filtered, paginated list
// resource owned by a parent record, and keeps the loaded rows consistent with
// row-level mutations.
package listing

import (
	"context"
	"strings"
)

// Field names a filterable column.
type Field string

// Supported filter fields.
const (
	FieldFilingNumber   Field = "filingNumber"
	FieldSubscriberCode Field = "subscriberCode"
	FieldName           Field = "name"
	FieldIDNumber       Field = "idNumber"
)

// Fields lists every filter field in display order.
var Fields = []Field{FieldFilingNumber, FieldSubscriberCode, FieldName, FieldIDNumber}

// Valid reports whether f is one of the supported fields.
func (f Field) Valid() bool {
	for _, known := range Fields {
		if f == known {
			return true
		}
	}
	return false
}

// Filters is a sparse set of per-field constraints. A missing key means no
// constraint on that field.
type Filters map[Field]string

// Normalize trims values and drops blank values and unknown fields.
func (f Filters) Normalize() Filters {
	out := make(Filters, len(f))
	for field, value := range f {
		value = strings.TrimSpace(value)
		if value == "" || !field.Valid() {
			continue
		}
		out[field] = value
	}
	return out
}

// Clone returns an independent copy.
func (f Filters) Clone() Filters {
	if f == nil {
		return Filters{}
	}
	out := make(Filters, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Empty reports whether no constraint is set.
func (f Filters) Empty() bool {
	return len(f) == 0
}

// Get returns the constraint for field or "".
func (f Filters) Get(field Field) string {
	if f == nil {
		return ""
	}
	return f[field]
}

// Query identifies one page request.
type Query struct {
	OwnerID  string
	Page     int
	PageSize int
	Filters  Filters
}

// Page is the result of one fetch.
type Page[T any] struct {
	Items      []T
	TotalCount int
	HasMore    bool
	Page       int
}

// State is the controller's view of the list. Items are append-only within an
// epoch.
type State[T any] struct {
	OwnerID string
	Items   []T
	Loading bool
	HasMore bool
	Page    int
	Filters Filters
}

// DataSource is the remote collaborator backing a Controller.
type DataSource[T any, K comparable] interface {
	FetchPage(ctx context.Context, q Query) (Page[T], error)
	UpdateItem(ctx context.Context, ownerID string, key K, patch T) error
	DeleteItem(ctx context.Context, ownerID string, key K) error
	CreateItem(ctx context.Context, ownerID string, payload T) error
}

// Viewport captures the geometry of the scrollable region rendering the list.
type Viewport struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

// nearEndFactor is the number of visible viewports below which more rows are
// requested.
const nearEndFactor = 1.5

// NearEnd reports whether the remaining distance to the bottom is within
// 1.5 viewport heights.
func (v Viewport) NearEnd() bool {
	if v.ClientHeight <= 0 {
		return false
	}
	return v.ScrollHeight-v.ScrollTop <= v.ClientHeight*nearEndFactor
}

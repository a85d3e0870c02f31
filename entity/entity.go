// Package entity defines the grocery-list records mirrored from the server.
// Every mutable record carries an integer Version incremented by the server
// on each successful write; it is the optimistic-concurrency token behind
// the 409 conflict path.
package entity

// List represents a grocery list.
type List struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Version   int    `json:"version"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// ListWithCounts is a List plus aggregates derived from its items.
// The aggregates are always recomputed from the child items, never
// maintained independently.
type ListWithCounts struct {
	List
	TotalItems   int     `json:"totalItems"`
	CheckedItems int     `json:"checkedItems"`
	TotalPrice   float64 `json:"totalPrice"`
}

// Item represents a grocery item in a list.
type Item struct {
	ID            string   `json:"id"`
	ListID        string   `json:"listId"`
	Name          string   `json:"name"`
	Quantity      int      `json:"quantity"`
	Unit          *string  `json:"unit"`
	CategoryID    string   `json:"categoryId"`
	Checked       bool     `json:"checked"`
	CheckedBy     *string  `json:"checkedBy"`
	CheckedByName *string  `json:"checkedByName"`
	Price         *float64 `json:"price"`
	Store         *string  `json:"store"`
	SortOrder     int      `json:"sortOrder"`
	Version       int      `json:"version"`
}

// Category represents a grocery item category.
type Category struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	SortOrder int    `json:"sortOrder"`
	IsDefault bool   `json:"isDefault"`
}

// CreateListRequest is the request body for creating a list.
type CreateListRequest struct {
	Name string `json:"name"`
}

// UpdateListRequest is the request body for updating a list.
type UpdateListRequest struct {
	Name string `json:"name"`
}

// CreateItemRequest is the request body for creating an item.
type CreateItemRequest struct {
	Name       string   `json:"name"`
	Quantity   int      `json:"quantity"`
	Unit       *string  `json:"unit"`
	CategoryID string   `json:"categoryId"`
	Price      *float64 `json:"price"`
	Store      *string  `json:"store"`
}

// UpdateItemRequest is the request body for updating an item.
// Nil fields are left unchanged by the server.
type UpdateItemRequest struct {
	Name       *string  `json:"name,omitempty"`
	Quantity   *int     `json:"quantity,omitempty"`
	Unit       *string  `json:"unit,omitempty"`
	CategoryID *string  `json:"categoryId,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	Store      *string  `json:"store,omitempty"`
}

// ReorderItemsRequest is the request body for reordering items.
type ReorderItemsRequest struct {
	ItemIDs []string `json:"itemIds"`
}

// CreateCategoryRequest is the request body for creating a category.
type CreateCategoryRequest struct {
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
	SortOrder *int   `json:"sortOrder,omitempty"`
}

// UpdateCategoryRequest is the request body for updating a category.
type UpdateCategoryRequest struct {
	Name      *string `json:"name,omitempty"`
	Icon      *string `json:"icon,omitempty"`
	Color     *string `json:"color,omitempty"`
	SortOrder *int    `json:"sortOrder,omitempty"`
}

// APIResponse is the standard envelope the server wraps every body in.
type APIResponse struct {
	Data  any       `json:"data,omitempty"`
	Error *APIError `json:"error,omitempty"`
}

// APIError carries the machine-readable error part of an APIResponse.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

package dto

// UpsertAccountRequest mirrors an account of the owning application.
type UpsertAccountRequest struct {
	Name     string `json:"name" binding:"max=255"`
	IsActive *bool  `json:"isActive"` // defaults to true
}

// UpsertCategoryRequest mirrors a category of the owning application.
type UpsertCategoryRequest struct {
	Name string `json:"name" binding:"max=255"`
}

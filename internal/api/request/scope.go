package request

// CreateScope holds the request body for registering a scope.
type CreateScope struct {
	Name        string `json:"name" validate:"required,scope"`
	Description string `json:"description" validate:"max=1024"`
}

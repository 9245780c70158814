package handler

// Handler groups the endpoints that do not belong to a specific domain
// area, such as health checks.
type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/careclinic/scheduler-api/internal/handler"
	"github.com/careclinic/scheduler-api/internal/model"
	authsvc "github.com/careclinic/scheduler-api/internal/service/auth"
)

type Handler struct {
	service *authsvc.Service
}

func NewHandler(service *authsvc.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/login", h.Login)
}

func (h *Handler) Login(c *gin.Context) {
	var req model.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	token, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		c.JSON(handler.HTTPStatus(err), handler.FromError(err))
		return
	}

	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"token": token}))
}

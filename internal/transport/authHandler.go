package transport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/HarshTuring/docklens/internal/entity"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Login forwards credentials to the external auth service.
func (h *ImageHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: "username and password required"})
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, entity.ErrorResponse{Message: "login failed"})
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (h *ImageHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: "refresh_token required"})
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, entity.ErrorResponse{Message: "refresh failed"})
		return
	}

	c.JSON(http.StatusOK, pair)
}

func (h *ImageHandler) Logout(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, entity.ErrorResponse{Message: "authentication required"})
		return
	}

	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusBadGateway, entity.ErrorResponse{Message: "logout failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

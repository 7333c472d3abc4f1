package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct{ svc AuthService }

// ログインのみ認証不要
func RegisterPublicRoutes(r gin.IRoutes, svc AuthService) {
	h := &AuthHandler{svc: svc}
	r.POST("/auth/login", h.Login)
}

func RegisterRoutes(r gin.IRoutes, svc AuthService) {
	h := &AuthHandler{svc: svc}
	r.GET("/verifiers", h.Verifiers)
	r.POST("/users", RequireCapability(CapManageUsers), h.Register)
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UserDTO struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

func toUserDTO(u User) UserDTO {
	return UserDTO{ID: u.ID, Username: u.Username, Email: u.Email, Role: string(u.Role)}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request")
		return
	}

	token, u, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			abort(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid email or password")
			return
		}
		abort(c, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user":    toUserDTO(*u),
		"message": "Login successful",
	})
}

func (h *AuthHandler) Verifiers(c *gin.Context) {
	users, err := h.svc.Verifiers(c.Request.Context())
	if err != nil {
		abort(c, http.StatusInternalServerError, "INTERNAL", "failed to list verifiers")
		return
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	c.JSON(http.StatusOK, gin.H{"items": out})
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request")
		return
	}
	role, ok := ParseRole(req.Role)
	if !ok {
		abort(c, http.StatusBadRequest, "INVALID_ARGUMENT", "unknown role")
		return
	}

	id, err := h.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password, role)
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyExists):
		abort(c, http.StatusConflict, "CONFLICT", "username or email already exists")
		return
	case errors.Is(err, ErrInvalidInput):
		abort(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	default:
		abort(c, http.StatusInternalServerError, "INTERNAL", "register failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": id, "message": "registered"})
}

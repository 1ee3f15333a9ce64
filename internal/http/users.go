package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/librarian/internal/auth"
	"github.com/mrlokans/librarian/internal/database/users"
	"github.com/mrlokans/librarian/internal/entities"
)

// UserStore covers the back-office user operations.
type UserStore interface {
	GetUserByID(id uint) (*entities.User, error)
	ListUsers(f users.Filter, limit, offset int) ([]entities.User, int64, error)
	SetActive(id uint, active bool) error
	SetRole(id uint, role entities.UserRole) error
}

// UserCreator registers new accounts with a hashed password.
type UserCreator interface {
	CreateUser(nu auth.NewUser) (*entities.User, error)
}

// UserChangeAuditor records account administration.
type UserChangeAuditor interface {
	LogUserChange(actorID, userID uint, action string, err error)
}

type UsersController struct {
	store   UserStore
	creator UserCreator
	auditor UserChangeAuditor
}

func NewUsersController(store UserStore, creator UserCreator, auditor UserChangeAuditor) *UsersController {
	return &UsersController{
		store:   store,
		creator: creator,
		auditor: auditor,
	}
}

type createUserRequest struct {
	Username string            `json:"username" binding:"required"`
	Email    string            `json:"email"`
	FullName string            `json:"full_name"`
	Password string            `json:"password" binding:"required"`
	Role     entities.UserRole `json:"role"`
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type setRoleRequest struct {
	Role entities.UserRole `json:"role" binding:"required"`
}

// List handles GET /api/admin/users
// Filters: role, active, q.
func (uc *UsersController) List(c *gin.Context) {
	limit, offset := parsePagination(c)
	f := users.Filter{
		Role:  entities.UserRole(c.Query("role")),
		Query: c.Query("q"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, "invalid active")
			return
		}
		f.Active = &active
	}

	list, total, err := uc.store.ListUsers(f, limit, offset)
	if err != nil {
		respondInternalError(c, err, "list users")
		return
	}
	if list == nil {
		list = []entities.User{}
	}
	respondPage(c, list, total, limit, offset)
}

// Create handles POST /api/admin/users
func (uc *UsersController) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "username and password are required")
		return
	}

	user, err := uc.creator.CreateUser(auth.NewUser{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		uc.audit(c, 0, "user_create", err)
		auth.RespondUserError(c, err)
		return
	}

	uc.audit(c, user.ID, "user_create", nil)
	c.JSON(http.StatusCreated, user)
}

// SetActive handles PATCH /api/admin/users/:id/active
// Admins cannot deactivate themselves.
func (uc *UsersController) SetActive(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "active is required")
		return
	}
	if id == auth.GetUserID(c) && !*req.Active {
		respondBadRequest(c, "cannot deactivate your own account")
		return
	}

	action := "user_deactivate"
	if *req.Active {
		action = "user_activate"
	}
	if err := uc.store.SetActive(id, *req.Active); err != nil {
		uc.respondStoreError(c, id, action, err)
		return
	}
	uc.respondUpdated(c, id, action)
}

// SetRole handles PATCH /api/admin/users/:id/role
func (uc *UsersController) SetRole(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.Role.Valid() {
		respondBadRequest(c, "role must be reader, librarian or admin")
		return
	}
	if id == auth.GetUserID(c) && req.Role != entities.UserRoleAdmin {
		respondBadRequest(c, "cannot change your own role")
		return
	}

	if err := uc.store.SetRole(id, req.Role); err != nil {
		uc.respondStoreError(c, id, "user_role_change", err)
		return
	}
	uc.respondUpdated(c, id, "user_role_change")
}

func (uc *UsersController) respondStoreError(c *gin.Context, id uint, action string, err error) {
	uc.audit(c, id, action, err)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		auth.RespondUserError(c, auth.ErrUserNotFound)
		return
	}
	respondInternalError(c, err, action)
}

func (uc *UsersController) respondUpdated(c *gin.Context, id uint, action string) {
	uc.audit(c, id, action, nil)
	user, err := uc.store.GetUserByID(id)
	if err != nil {
		respondInternalError(c, err, action)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (uc *UsersController) audit(c *gin.Context, userID uint, action string, err error) {
	if uc.auditor != nil {
		uc.auditor.LogUserChange(auth.GetUserID(c), userID, action, err)
	}
}

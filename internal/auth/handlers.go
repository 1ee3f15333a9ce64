package auth

import (
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Auditor records authentication events.
type Auditor interface {
	LogAuth(userID uint, action, ipAddr string, success bool)
}

// AuthController serves the /api/auth endpoints.
type AuthController struct {
	service        *Service
	sessionManager *SessionManager
	auditor        Auditor

	// setupMu serializes first-run setup so two requests cannot both see an
	// empty user table.
	setupMu sync.Mutex
}

// NewAuthController creates the controller. sessionManager and auditor may be nil.
func NewAuthController(service *Service, sessionManager *SessionManager, auditor Auditor) *AuthController {
	return &AuthController{
		service:        service,
		sessionManager: sessionManager,
		auditor:        auditor,
	}
}

// RegisterRoutes mounts the auth endpoints under /api/auth.
func (ac *AuthController) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/auth")
	group.GET("/status", ac.Status)
	group.GET("/csrf", ac.CSRFToken)
	group.POST("/setup", ac.Setup)
	group.POST("/login", ac.Login)
	group.POST("/logout", ac.Logout)
	group.GET("/me", ac.Me)
	group.POST("/password", ac.ChangePassword)
	group.POST("/token", ac.GenerateToken)
	group.DELETE("/token", ac.RevokeToken)
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type setupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password" binding:"required"`
}

type passwordChange struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// Status handles GET /api/auth/status.
func (ac *AuthController) Status(c *gin.Context) {
	hasUsers, err := ac.service.HasUsers()
	if err != nil {
		log.Printf("Failed to count users: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	authenticated := false
	if ac.sessionManager != nil {
		authenticated = ac.sessionManager.GetUserID(c.Request) != 0
	}
	c.JSON(http.StatusOK, gin.H{
		"setup_required": !hasUsers,
		"authenticated":  authenticated,
	})
}

// CSRFToken handles GET /api/auth/csrf. Clients echo the token in the
// X-CSRF-Token header on cookie-authenticated writes.
func (ac *AuthController) CSRFToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"csrf_token": GetCSRFToken(c), "header": CSRFTokenHeader})
}

// Setup handles POST /api/auth/setup, creating the first admin.
func (ac *AuthController) Setup(c *gin.Context) {
	var req setupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required", "code": "INVALID_REQUEST"})
		return
	}

	ac.setupMu.Lock()
	defer ac.setupMu.Unlock()

	user, err := ac.service.CreateFirstAdmin(NewUser{
		Username: req.Username,
		Email:    req.Email,
		FullName: req.FullName,
		Password: req.Password,
	})
	if err != nil {
		respondUserError(c, err)
		return
	}

	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			log.Printf("Failed to create session for %s: %v", user.Username, err)
		}
	}
	ac.logAuth(user.ID, "setup", c.ClientIP(), true)

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// Login handles POST /api/auth/login.
func (ac *AuthController) Login(c *gin.Context) {
	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required", "code": "INVALID_REQUEST"})
		return
	}

	user, err := ac.service.Authenticate(req.Username, req.Password)
	if err != nil {
		ac.logAuth(0, "login", c.ClientIP(), false)
		switch {
		case errors.Is(err, ErrAccountLocked):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "account is locked, try again later", "code": "ACCOUNT_LOCKED"})
		case errors.Is(err, ErrUserInactive):
			c.JSON(http.StatusForbidden, gin.H{"error": "account is deactivated", "code": "ACCOUNT_INACTIVE"})
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidPassword):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password", "code": "INVALID_CREDENTIALS"})
		default:
			log.Printf("Login failed for %s: %v", req.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		}
		return
	}

	if ac.sessionManager != nil {
		if err := ac.sessionManager.CreateSession(c.Request, user); err != nil {
			log.Printf("Failed to create session for %s: %v", user.Username, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
			return
		}
	}
	ac.logAuth(user.ID, "login", c.ClientIP(), true)

	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Logout handles POST /api/auth/logout.
func (ac *AuthController) Logout(c *gin.Context) {
	if ac.sessionManager != nil {
		if err := ac.sessionManager.DestroySession(c.Request); err != nil {
			log.Printf("Failed to destroy session: %v", err)
		}
	}
	ac.logAuth(GetUserID(c), "logout", c.ClientIP(), true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me handles GET /api/auth/me.
func (ac *AuthController) Me(c *gin.Context) {
	user, err := ac.service.GetUserByID(GetUserID(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": "UNAUTHENTICATED"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "auth_type": GetAuthType(c)})
}

// ChangePassword handles POST /api/auth/password.
func (ac *AuthController) ChangePassword(c *gin.Context) {
	var req passwordChange
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old_password and new_password are required", "code": "INVALID_REQUEST"})
		return
	}

	userID := GetUserID(c)
	if err := ac.service.ChangePassword(userID, req.OldPassword, req.NewPassword); err != nil {
		ac.logAuth(userID, "password_change", c.ClientIP(), false)
		respondUserError(c, err)
		return
	}
	ac.logAuth(userID, "password_change", c.ClientIP(), true)
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}

// GenerateToken handles POST /api/auth/token.
func (ac *AuthController) GenerateToken(c *gin.Context) {
	userID := GetUserID(c)
	token, err := ac.service.GenerateToken(userID)
	if err != nil {
		log.Printf("Failed to generate token for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	ac.logAuth(userID, "token_generate", c.ClientIP(), true)

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"message": "Store this token securely - it will not be shown again",
	})
}

// RevokeToken handles DELETE /api/auth/token.
func (ac *AuthController) RevokeToken(c *gin.Context) {
	userID := GetUserID(c)
	if err := ac.service.RevokeToken(userID); err != nil {
		log.Printf("Failed to revoke token for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	ac.logAuth(userID, "token_revoke", c.ClientIP(), true)
	c.JSON(http.StatusOK, gin.H{"message": "token revoked"})
}

func (ac *AuthController) logAuth(userID uint, action, ip string, success bool) {
	if ac.auditor != nil {
		ac.auditor.LogAuth(userID, action, ip, success)
	}
}

// RespondUserError writes the status and code for account validation errors.
func RespondUserError(c *gin.Context, err error) {
	respondUserError(c, err)
}

func respondUserError(c *gin.Context, err error) {
	status, code := http.StatusBadRequest, "INVALID_USER"
	switch {
	case errors.Is(err, ErrSetupCompleted):
		status, code = http.StatusConflict, "SETUP_COMPLETED"
	case errors.Is(err, ErrUserExists):
		status, code = http.StatusConflict, "USER_EXISTS"
	case errors.Is(err, ErrUserNotFound):
		status, code = http.StatusNotFound, "USER_NOT_FOUND"
	case errors.Is(err, ErrInvalidPassword):
		status, code = http.StatusUnauthorized, "INVALID_CREDENTIALS"
	case errors.Is(err, ErrPasswordTooShort), errors.Is(err, ErrPasswordTooLong),
		errors.Is(err, ErrPasswordRequired):
		code = "INVALID_PASSWORD"
	case errors.Is(err, ErrUsernameRequired), errors.Is(err, ErrUsernameInvalid),
		errors.Is(err, ErrEmailInvalid), errors.Is(err, ErrInvalidRole):
		code = "INVALID_USER"
	default:
		log.Printf("User operation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "code": code})
}

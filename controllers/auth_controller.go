package controllers

import (
	"crypto/subtle"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"marketsync/config"
	"marketsync/middleware"
)

const tokenTTL = 24 * time.Hour

// AuthController handles API authentication
type AuthController struct {
	cfg *config.Config
}

// NewAuthController creates a new auth controller
func NewAuthController(cfg *config.Config) *AuthController {
	return &AuthController{cfg: cfg}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials against the configured admin account and issues
// a signed token
// POST /api/v1/auth/login
func (ac *AuthController) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "bad_request",
			"message": "username and password are required",
		})
		return
	}

	ip := c.ClientIP()
	if !ac.checkCredentials(req.Username, req.Password) {
		middleware.RecordLoginAttempt(ip, false)
		log.Printf("⚠️ Login failed for user %s from %s", req.Username, ip)
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Invalid username or password",
		})
		return
	}

	token, err := middleware.IssueToken(req.Username, "admin", tokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue token",
		})
		return
	}

	middleware.RecordLoginAttempt(ip, true)
	log.Printf("User %s logged in from %s", req.Username, ip)
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int(tokenTTL.Seconds()),
	})
}

func (ac *AuthController) checkCredentials(username, password string) bool {
	if ac.cfg.AdminPasswordHash == "" {
		log.Println("⚠️ ADMIN_PASSWORD_HASH not configured, rejecting login")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(ac.cfg.AdminUsername)) != 1 {
		// still run the hash comparison to keep timing uniform
		bcrypt.CompareHashAndPassword([]byte(ac.cfg.AdminPasswordHash), []byte(password))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(ac.cfg.AdminPasswordHash), []byte(password)) == nil
}

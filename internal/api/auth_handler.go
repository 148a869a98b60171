package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"resumecanvas/internal/api/middleware"
	"resumecanvas/internal/auth"
	"resumecanvas/internal/config"
	"resumecanvas/internal/database"
)

const (
	refreshCookieName     = "refresh_token"
	revokedRefreshPrefix  = "auth:refresh:revoked:"
	defaultLoginLockTTL   = 15 * time.Minute
	invalidCredentialsMsg = "invalid email or password"
)

// AuthHandler 处理以邮箱为账号的注册、登录与令牌续期。
type AuthHandler struct {
	db           *gorm.DB
	tokens       *auth.AuthService
	redis        redis.UniversalClient
	guard        *loginGuard
	logger       *slog.Logger
	cookieDomain string
}

func NewAuthHandler(db *gorm.DB, tokens *auth.AuthService, redisClient redis.UniversalClient, logger *slog.Logger, cfg config.AuthConfig, cookieDomain string) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	lockTTL := cfg.LoginLockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLoginLockTTL
	}
	return &AuthHandler{
		db:     db,
		tokens: tokens,
		redis:  redisClient,
		guard: &loginGuard{
			redis:         redisClient,
			ratePerHour:   cfg.LoginRateLimitPerHour,
			lockThreshold: cfg.LoginLockThreshold,
			lockTTL:       lockTTL,
			logger:        logger,
			now:           time.Now,
		},
		logger:       logger,
		cookieDomain: strings.TrimSpace(cookieDomain),
	}
}

type userResponse struct {
	ID                 uint   `json:"id"`
	Email              string `json:"email"`
	Name               string `json:"name"`
	SubscriptionTier   string `json:"subscription_tier"`
	SubscriptionStatus string `json:"subscription_status"`
}

func newUserResponse(u database.User) userResponse {
	tier := u.SubscriptionTier
	if tier == "" {
		tier = database.TierFree
	}
	return userResponse{
		ID:                 u.ID,
		Email:              u.Email,
		Name:               u.Name,
		SubscriptionTier:   tier,
		SubscriptionStatus: u.SubscriptionStatus,
	}
}

type sessionResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        userResponse `json:"user"`
}

type registerRequest struct {
	Name     string `json:"name" binding:"max=128"`
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required"`
}

// Register 创建账号并直接登录。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	email := auth.NormalizeEmail(req.Email)
	logger := h.log(c).With(slog.String("email", email))

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		if isPasswordPolicyError(err) {
			BadRequest(c, err.Error())
			return
		}
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	ctx := c.Request.Context()
	var count int64
	if err := h.db.WithContext(ctx).Model(&database.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		logger.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if count > 0 {
		Conflict(c, "email already registered")
		return
	}

	user := database.User{
		Email:            email,
		Name:             strings.TrimSpace(req.Name),
		PasswordHash:     hashed,
		SubscriptionTier: database.TierFree,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		// 并发注册时由唯一索引兜底。
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			Conflict(c, "email already registered")
			return
		}
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	h.issue(c, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 按邮箱校验口令并返回令牌与账号信息。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	email := auth.NormalizeEmail(req.Email)
	ctx := c.Request.Context()
	logger := h.log(c).With(slog.String("email", email))

	if err := h.guard.check(ctx, c.ClientIP(), email); err != nil {
		logger.Info("login blocked", slog.Any("reason", err))
		Error(c, http.StatusTooManyRequests, err.Error())
		return
	}

	var user database.User
	err := h.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	// user.PasswordHash 为空时 VerifyPassword 仍会做一次哈希比较。
	if !auth.VerifyPassword(user.PasswordHash, req.Password) {
		logger.Info("login failed")
		h.guard.recordFailure(ctx, email)
		Error(c, http.StatusUnauthorized, invalidCredentialsMsg)
		return
	}

	h.guard.reset(ctx, email)
	h.issue(c, http.StatusOK, user)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh 轮换刷新令牌。订阅档位从数据库重新读取，升级后续期即可生效。
func (h *AuthHandler) Refresh(c *gin.Context) {
	claims, ok := h.refreshClaims(c)
	if !ok {
		Unauthorized(c)
		return
	}
	ctx := c.Request.Context()
	logger := h.log(c).With(slog.Uint64("user_id", uint64(claims.UserID)))

	revoked, err := h.isRevoked(ctx, claims.ID)
	if err != nil {
		logger.Error("refresh revocation lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if revoked {
		logger.Info("refresh token reused", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		logger.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}
	if err := h.revoke(ctx, claims); err != nil {
		logger.Error("revoke refresh token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.issue(c, http.StatusOK, user)
}

// Logout 作废刷新令牌并清除 Cookie。令牌缺失或已过期也视为成功。
func (h *AuthHandler) Logout(c *gin.Context) {
	if claims, ok := h.refreshClaims(c); ok {
		if err := h.revoke(c.Request.Context(), claims); err != nil {
			h.log(c).Error("logout revoke failed", slog.Any("error", err))
			Internal(c, "internal error")
			return
		}
	}
	h.writeRefreshCookie(c, "", -1)
	c.Status(http.StatusNoContent)
}

// Me 返回当前账号，前端据此展示订阅档位。
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ChangePassword 校验旧口令后更新，并作废请求携带的刷新令牌。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	logger := h.log(c).With(slog.Uint64("user_id", uint64(user.ID)))

	if !auth.VerifyPassword(user.PasswordHash, req.CurrentPassword) {
		Error(c, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if req.NewPassword == req.CurrentPassword {
		BadRequest(c, "new password must differ from the current one")
		return
	}
	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		if isPasswordPolicyError(err) {
			BadRequest(c, err.Error())
			return
		}
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if err := h.db.WithContext(ctx).Model(&user).Update("password_hash", hashed).Error; err != nil {
		logger.Error("update password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if claims, ok := h.refreshClaims(c); ok && claims.UserID == user.ID {
		if err := h.revoke(ctx, claims); err != nil {
			logger.Warn("revoke refresh token after password change failed", slog.Any("error", err))
		}
	}
	logger.Info("password changed")
	h.issue(c, http.StatusOK, user)
}

func (h *AuthHandler) currentUser(c *gin.Context) (database.User, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
		return database.User{}, false
	}
	var user database.User
	if err := h.db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			AbortUnauthorized(c)
			return database.User{}, false
		}
		h.log(c).Error("load user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return database.User{}, false
	}
	return user, true
}

func (h *AuthHandler) issue(c *gin.Context, status int, user database.User) {
	resp := newUserResponse(user)
	pair, err := h.tokens.GenerateTokenPair(user.ID, resp.SubscriptionTier)
	if err != nil {
		h.log(c).Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.writeRefreshCookie(c, pair.RefreshToken, int(h.tokens.RefreshTokenTTL().Seconds()))
	c.JSON(status, sessionResponse{
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.tokens.AccessTokenTTL().Seconds()),
		User:        resp,
	})
}

// refreshClaims 读取 Cookie 或请求体中的刷新令牌并校验类型。
func (h *AuthHandler) refreshClaims(c *gin.Context) (*auth.TokenClaims, bool) {
	token, err := c.Cookie(refreshCookieName)
	if err != nil || token == "" {
		var req refreshRequest
		if c.Request.ContentLength != 0 && c.ShouldBindJSON(&req) == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		return nil, false
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil || claims.TokenType != auth.TokenTypeRefresh || claims.ID == "" {
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) isRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := h.redis.Exists(ctx, revokedRefreshPrefix+jti).Result()
	return n > 0, err
}

// revoke 把 jti 写入黑名单，保留到令牌本身过期。
func (h *AuthHandler) revoke(ctx context.Context, claims *auth.TokenClaims) error {
	ttl := h.tokens.RefreshTokenTTL()
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return h.redis.Set(ctx, revokedRefreshPrefix+claims.ID, "1", ttl).Err()
}

func (h *AuthHandler) writeRefreshCookie(c *gin.Context, value string, maxAge int) {
	secure := c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https")
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.cookieDomain,
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) log(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	return h.logger
}

func isPasswordPolicyError(err error) bool {
	return errors.Is(err, auth.ErrPasswordTooShort) ||
		errors.Is(err, auth.ErrPasswordTooLong) ||
		errors.Is(err, auth.ErrPasswordBlank)
}

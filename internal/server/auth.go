package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
)

// AuthHandler issues API tokens to configured clients.
type AuthHandler struct {
	Config config.ServerConfig
}

func (a *AuthHandler) Register(g *echo.Group) {
	g.POST("/token", a.token)
}

// Token
//
//	@Summary		Issue token
//	@Description	Exchanges client credentials for a bearer token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		TokenRequest	true	"Client credentials"
//	@Success		200		{object}	TokenResponse
//	@Failure		400		{object}	HTTPError
//	@Failure		401		{object}	HTTPError
//	@Failure		404		{object}	HTTPError
//	@Router			/api/auth/token [post]
func (a *AuthHandler) token(c echo.Context) error {
	if !a.Config.AuthEnabled() {
		return echo.NewHTTPError(http.StatusNotFound, "authentication is disabled")
	}
	var req TokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.Client = strings.TrimSpace(req.Client)
	if req.Client == "" || req.Secret == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "client and secret are required")
	}
	hash, ok := a.Config.Clients[req.Client]
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Secret)); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}

	tok, err := runtime.SignJWT(req.Client, []byte(a.Config.JWTSecret), a.Config.TokenTTL, runtime.ScopeRun, runtime.ScopeRead)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, TokenResponse{Token: tok, ExpiresIn: int64(a.Config.TokenTTL.Seconds())})
}

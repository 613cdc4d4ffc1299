// Profile HTTP handlers.
//
// This file exposes REST endpoints for profile resources:
//   - POST /profiles     (signup with display name and phone)
//   - GET  /profiles/me  (the caller's profile)
package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rosebudthorn/circles-backend/internal/services"
)

// SignupRequest is the JSON payload for creating a profile.
type SignupRequest struct {
	// DisplayName is shown to circle members (1–60 chars after normalization).
	DisplayName string `json:"display_name" binding:"required" example:"Ada Lovelace"`
	// Phone is the E.164 number used for SMS notifications.
	Phone string `json:"phone" binding:"required" example:"+15551234567"`
}

// phoneRE is a light E.164 shape check; carriers do the real validation.
var phoneRE = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Signup godoc
// @ID          signup
// @Summary     Create a profile
// @Description Registers a display name and phone number. The phone must be unique.
// @Tags        Profiles
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SignupRequest  true  "Signup payload"
//
// @Success     201  {object}  domain.Profile
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Phone already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /profiles [post]
func (h *Handlers) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "display_name and phone required")
		return
	}
	phone := strings.TrimSpace(req.Phone)
	if !phoneRE.MatchString(phone) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "phone must be E.164, e.g. +15551234567")
		return
	}

	p, err := h.profileSvc.Signup(c.Request.Context(), req.DisplayName, phone)
	if err != nil {
		switch err {
		case services.ErrDuplicatePhone:
			fail(c, http.StatusConflict, ErrCodeConflict, "phone already registered")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, p)
}

// GetMyProfile godoc
// @ID          getMyProfile
// @Summary     Get the caller's profile
// @Tags        Profiles
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {object}  domain.Profile
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /profiles/me [get]
func (h *Handlers) GetMyProfile(c *gin.Context) {
	p, err := h.profileSvc.Get(c.Request.Context(), userID(c))
	if err != nil {
		switch err {
		case services.ErrProfileNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, p)
}

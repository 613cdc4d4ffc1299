// Week and unlock-status HTTP handlers.
//
// This file exposes REST endpoints for the weekly cycle:
//   - GET /weeks/current         (the active reflection cycle)
//   - GET /circles/{id}/unlock   (unlock accounting for a circle's week)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rosebudthorn/circles-backend/internal/services"
)

// UnlockStatusResponse reports a circle's unlock accounting for one week.
type UnlockStatusResponse struct {
	CircleID string `json:"circle_id"`
	WeekID   string `json:"week_id"`
	Unlocked bool   `json:"unlocked"`
	// Submitted and Pending count pre-week members only; mid-week joiners
	// are exempt from the accounting.
	Submitted int `json:"submitted"`
	Pending   int `json:"pending"`
}

// GetCurrentWeek godoc
// @ID          getCurrentWeek
// @Summary     Get the current week
// @Description Returns the reflection cycle covering now, creating it when absent.
// @Tags        Weeks
// @Produce     json
//
// @Success     200  {object}  domain.Week
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /weeks/current [get]
func (h *Handlers) GetCurrentWeek(c *gin.Context) {
	week, err := h.weekSvc.Current(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not resolve the current week")
		return
	}
	ok(c, http.StatusOK, week)
}

// GetUnlockStatus godoc
// @ID          getUnlockStatus
// @Summary     Get a circle's unlock status
// @Description Reports whether every pre-week member has submitted for the week
// @Description (current week unless week_id is given) and how many are pending.
// @Tags        Weeks
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Circle ID (UUID)"       format(uuid)
// @Param       week_id    query   string  false "Week ID (defaults to the current week)"
//
// @Success     200  {object}  handlers.UnlockStatusResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Circle or week not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /circles/{id}/unlock [get]
func (h *Handlers) GetUnlockStatus(c *gin.Context) {
	ctx := c.Request.Context()
	circleID := c.Param("id")
	if _, err := uuid.Parse(circleID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "circle id must be a UUID")
		return
	}

	weekID := strings.TrimSpace(c.Query("week_id"))
	if weekID == "" {
		week, err := h.weekSvc.Current(ctx)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not resolve the current week")
			return
		}
		weekID = week.ID
	}

	st, err := h.unlockSvc.Status(ctx, circleID, weekID)
	if err != nil {
		switch err {
		case services.ErrWeekNotFound, services.ErrCircleNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "circle or week not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, UnlockStatusResponse{
		CircleID:  circleID,
		WeekID:    weekID,
		Unlocked:  st.Unlocked,
		Submitted: len(st.Submitters),
		Pending:   len(st.Missing),
	})
}

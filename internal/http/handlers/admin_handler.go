// Admin HTTP handlers.
//
// This file exposes operational endpoints intended for schedulers and
// on-call use, not end users:
//   - POST /admin/circles/{id}/dispatch  (re-run the unlock broadcast)
//   - POST /admin/reminders              (run a reminder batch)
//
// Both are idempotent at the domain level: the unlock broadcast is claimed
// once per (circle, week), and reminder batches consult the notification log
// before texting anyone.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DispatchRequest selects the week for an unlock re-dispatch.
type DispatchRequest struct {
	// WeekID defaults to the current week when empty.
	WeekID string `json:"week_id"`
}

// RemindersRequest selects which reminder batch to run.
type RemindersRequest struct {
	// Variant is "first" (early week, one SMS per user) or "second"
	// (late week, one SMS per lagging user per circle).
	Variant string `json:"variant" binding:"required" example:"first"`
}

// DispatchUnlock godoc
// @ID          dispatchUnlock
// @Summary     Re-run the unlock broadcast for a circle
// @Description Re-evaluates unlock state and sends the one-time unlock SMS if it has not gone out yet.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Circle ID (UUID)"  format(uuid)
// @Param       body  body  handlers.DispatchRequest  true  "Dispatch payload"
//
// @Success     200  {object}  services.DispatchResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Dispatch failed"
// @Router      /admin/circles/{id}/dispatch [post]
func (h *Handlers) DispatchUnlock(c *gin.Context) {
	ctx := c.Request.Context()
	circleID := c.Param("id")
	if _, err := uuid.Parse(circleID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "circle id must be a UUID")
		return
	}

	var req DispatchRequest
	_ = c.ShouldBindJSON(&req) // empty body is fine; defaults to the current week

	weekID := strings.TrimSpace(req.WeekID)
	if weekID == "" {
		week, err := h.weekSvc.Current(ctx)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not resolve the current week")
			return
		}
		weekID = week.ID
	}

	res, err := h.notifySvc.SendUnlockSMS(ctx, circleID, weekID)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// RunReminders godoc
// @ID          runReminders
// @Summary     Run a reminder batch
// @Description Runs the early-week ("first") or late-week ("second") reminder dispatch across all circles.
// @Tags        Admin
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RemindersRequest  true  "Batch selection"
//
// @Success     200  {object}  services.DispatchResult
// @Failure     400  {object}  handlers.ErrorResponse  "Unknown variant"
// @Failure     500  {object}  handlers.ErrorResponse  "Dispatch failed"
// @Router      /admin/reminders [post]
func (h *Handlers) RunReminders(c *gin.Context) {
	var req RemindersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "variant required")
		return
	}

	ctx := c.Request.Context()
	switch strings.ToLower(strings.TrimSpace(req.Variant)) {
	case "first":
		res, err := h.remindSvc.SendFirstReminders(ctx)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
			return
		}
		ok(c, http.StatusOK, res)
	case "second":
		res, err := h.remindSvc.SendSecondReminders(ctx)
		if err != nil {
			fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
			return
		}
		ok(c, http.StatusOK, res)
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, `variant must be "first" or "second"`)
	}
}

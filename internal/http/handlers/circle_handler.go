// Circle HTTP handlers.
//
// This file exposes REST endpoints for circle resources:
//   - POST   /circles                  (create, creator auto-joins)
//   - GET    /circles                  (list the caller's circles)
//   - POST   /circles/join             (join via invite token)
//   - DELETE /circles/{id}/membership  (leave)
//   - GET    /circles/{id}/members     (member list, ETag support)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"
	"github.com/rosebudthorn/circles-backend/internal/services"
	"github.com/rosebudthorn/circles-backend/internal/sysutil"
	"github.com/rosebudthorn/circles-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// CircleService defines circle lifecycle operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type CircleService interface {
	// Create starts a new circle and joins the creator as its first member.
	Create(ctx context.Context, userID, name string) (*domain.Circle, error)
	// Join adds the user to the circle behind the invite token.
	Join(ctx context.Context, userID, inviteToken string) (*domain.Circle, error)
	// Leave removes the user's membership.
	Leave(ctx context.Context, userID, circleID string) error
	// List returns the circles the user belongs to.
	List(ctx context.Context, userID string) ([]domain.Circle, error)
	// Members returns the circle's member list; the caller must be a member.
	Members(ctx context.Context, userID, circleID string) ([]services.Member, error)
}

// ProfileService defines signup and consent operations consumed by HTTP
// handlers.
type ProfileService interface {
	// Signup creates a profile with a display name and phone number.
	Signup(ctx context.Context, displayName, phone string) (*domain.Profile, error)
	// Get fetches a profile by ID.
	Get(ctx context.Context, userID string) (*domain.Profile, error)
	// SetOptOutByPhone toggles SMS consent for the profile owning the phone.
	SetOptOutByPhone(ctx context.Context, phone string, optedOut bool) error
}

// ReflectionService defines submission, feed, transcript, and comment
// operations consumed by HTTP handlers.
type ReflectionService interface {
	// Submit finalizes the user's weekly reflection in each target circle.
	Submit(ctx context.Context, userID string, circleIDs []string, in services.ReflectionInput) (*services.SubmitResult, error)
	// Feed returns the circle's entries for a week, hidden until unlock.
	Feed(ctx context.Context, userID, circleID, weekID string) ([]services.FeedEntry, bool, error)
	// AttachTranscript backfills audio transcripts on the caller's reflection.
	AttachTranscript(ctx context.Context, userID, reflectionID, rose, bud, thorn string) error
	// Comment appends a comment to a visible reflection.
	Comment(ctx context.Context, userID, reflectionID, body string) (*domain.Comment, error)
	// Comments lists a visible reflection's comments.
	Comments(ctx context.Context, userID, reflectionID string) ([]domain.Comment, error)
	// CommentsPage returns one page of comments plus the total count.
	CommentsPage(ctx context.Context, userID, reflectionID string, page, pageSize int) ([]domain.Comment, int64, error)
}

// WeekService resolves reflection cycles.
type WeekService interface {
	// Current returns the week covering now, creating it when absent.
	Current(ctx context.Context) (*domain.Week, error)
	// Get fetches a week by ID.
	Get(ctx context.Context, id string) (*domain.Week, error)
}

// UnlockService evaluates a circle's unlock state for a week.
type UnlockService interface {
	// Status returns the full unlock accounting for (circle, week).
	Status(ctx context.Context, circleID, weekID string) (*services.UnlockStatus, error)
}

// NotifyService triggers the unlock broadcast.
type NotifyService interface {
	// SendUnlockSMS re-evaluates and broadcasts the unlock for (circle, week).
	SendUnlockSMS(ctx context.Context, circleID, weekID string) (services.DispatchResult, error)
}

// ReminderService runs the scheduled reminder batches.
type ReminderService interface {
	// SendFirstReminders texts non-submitters once per user early in the week.
	SendFirstReminders(ctx context.Context) (services.DispatchResult, error)
	// SendSecondReminders texts non-submitters per circle late in the week.
	SendSecondReminders(ctx context.Context) (services.DispatchResult, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for profiles, circles, reflections, weeks,
// notifications, and webhooks. It depends on abstract service interfaces to
// keep transport concerns separate from business logic.
type Handlers struct {
	profileSvc ProfileService
	circleSvc  CircleService
	reflSvc    ReflectionService
	weekSvc    WeekService
	unlockSvc  UnlockService
	notifySvc  NotifyService
	remindSvc  ReminderService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(profileSvc ProfileService, circleSvc CircleService, reflSvc ReflectionService, weekSvc WeekService, unlockSvc UnlockService, notifySvc NotifyService, remindSvc ReminderService) *Handlers {
	return &Handlers{
		profileSvc: profileSvc,
		circleSvc:  circleSvc,
		reflSvc:    reflSvc,
		weekSvc:    weekSvc,
		unlockSvc:  unlockSvc,
		notifySvc:  notifySvc,
		remindSvc:  remindSvc,
	}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header (tests use it),
// and finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	var header string
	if c != nil && c.Request != nil {
		header = strings.TrimSpace(c.GetHeader("X-User-ID"))
	}
	return sysutil.FirstNonEmpty(header, "demo-user")
}

//
// DTOs
//

// CreateCircleRequest is the JSON payload for creating a circle.
type CreateCircleRequest struct {
	// Name optionally sets the circle name; a default is used when empty.
	Name string `json:"name" example:"Family"`
}

// JoinCircleRequest is the JSON payload for joining via invite token.
type JoinCircleRequest struct {
	// InviteToken is the opaque token embedded in the invite link.
	InviteToken string `json:"invite_token" binding:"required" example:"1f7e9a6c2d4b8e0a3c5f7d9b1e2a4c6d"`
}

// MembersResponse wraps a circle's member list.
type MembersResponse struct {
	Members []services.Member `json:"members"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// CreateCircle godoc
// @ID          createCircle
// @Summary     Create a new circle
// @Description Creates a circle for the current user, mints an invite link, and joins the creator.
// @Tags        Circles
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.CreateCircleRequest  true  "Create circle payload"
//
// @Success     201  {object}  domain.Circle
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Profile not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /circles [post]
func (h *Handlers) CreateCircle(c *gin.Context) {
	var req CreateCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	circle, err := h.circleSvc.Create(c.Request.Context(), userID(c), strings.TrimSpace(req.Name))
	if err != nil {
		switch err {
		case services.ErrProfileNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "profile not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, circle)
}

// ListCircles godoc
// @ID          listCircles
// @Summary     List the caller's circles
// @Description Returns every circle the current user belongs to.
// @Tags        Circles
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
//
// @Success     200  {array}   domain.Circle
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /circles [get]
func (h *Handlers) ListCircles(c *gin.Context) {
	circles, err := h.circleSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, circles)
}

// JoinCircle godoc
// @ID          joinCircle
// @Summary     Join a circle via invite token
// @Description Adds the current user to the circle behind the invite token.
// @Tags        Circles
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       body       body    handlers.JoinCircleRequest  true  "Join payload"
//
// @Success     200  {object}  domain.Circle
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request / unknown token"
// @Failure     409  {object}  handlers.ErrorResponse  "Already a member"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /circles/join [post]
func (h *Handlers) JoinCircle(c *gin.Context) {
	var req JoinCircleRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.InviteToken) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invite_token required")
		return
	}

	circle, err := h.circleSvc.Join(c.Request.Context(), userID(c), req.InviteToken)
	if err != nil {
		switch err {
		case services.ErrInvalidInviteToken:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "unknown invite token")
		case services.ErrAlreadyMember:
			fail(c, http.StatusConflict, ErrCodeConflict, "already a member of this circle")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeJoinFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, circle)
}

// LeaveCircle godoc
// @ID          leaveCircle
// @Summary     Leave a circle
// @Description Removes the current user's membership from the circle.
// @Tags        Circles
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"  example(user123)
// @Param       id         path    string  true  "Circle ID (UUID)"       format(uuid)
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /circles/{id}/membership [delete]
func (h *Handlers) LeaveCircle(c *gin.Context) {
	circleID := c.Param("id")
	if _, err := uuid.Parse(circleID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "circle id must be a UUID")
		return
	}

	if err := h.circleSvc.Leave(c.Request.Context(), userID(c), circleID); err != nil {
		switch err {
		case services.ErrNotMember:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "not a member of this circle")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// ListMembers godoc
// @ID          listMembers
// @Summary     List circle members
// @Description Returns the circle's member list. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Circles
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       id             path    string  true  "Circle ID (UUID)"            format(uuid)
//
// @Success     200  {object}  handlers.MembersResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /circles/{id}/members [get]
func (h *Handlers) ListMembers(c *gin.Context) {
	ctx := c.Request.Context()
	circleID := c.Param("id")
	if _, err := uuid.Parse(circleID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "circle id must be a UUID")
		return
	}

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okSvc := h.circleSvc.(*services.CircleService); okSvc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.MembershipStats(ctx, db, circleID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"members:%s:%d:%d"`, circleID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	members, err := h.circleSvc.Members(ctx, userID(c), circleID)
	if err != nil {
		switch err {
		case services.ErrNotMember:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "not a member of this circle")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, MembersResponse{Members: members})
}

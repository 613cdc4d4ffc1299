// Reflection HTTP handlers.
//
// This file exposes REST endpoints for weekly reflections:
//   - POST /reflections                     (submit to one or more circles)
//   - GET  /circles/{id}/feed               (weekly feed, ETag support)
//   - POST /reflections/{id}/transcript     (backfill audio transcripts)
//   - POST /reflections/{id}/comments       (comment on a visible reflection)
//   - GET  /reflections/{id}/comments       (list comments)
//
// Idempotency:
// If the client supplies an Idempotency-Key header (scoped by the circle_id
// query param) and a previous successful submission exists for that
// (user, circle, key), the endpoint replays the stored reflection and sets
// `Idempotency-Replayed: true` instead of inserting a duplicate.
package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rosebudthorn/circles-backend/internal/domain"
	"github.com/rosebudthorn/circles-backend/internal/repo"
	"github.com/rosebudthorn/circles-backend/internal/services"
)

//
// DTOs
//

// SubmitReflectionRequest is the JSON payload for submitting a reflection.
type SubmitReflectionRequest struct {
	// CircleIDs lists the circles to share this reflection into (at least one).
	CircleIDs []string `json:"circle_ids" binding:"required,min=1"`

	RoseText  string `json:"rose_text" example:"Shipped the big project"`
	BudText   string `json:"bud_text" example:"Trip coming up next month"`
	ThornText string `json:"thorn_text" example:"Flat tire on Tuesday"`

	RoseAudioURL  string `json:"rose_audio_url"`
	BudAudioURL   string `json:"bud_audio_url"`
	ThornAudioURL string `json:"thorn_audio_url"`

	PhotoURL     string `json:"photo_url"`
	PhotoCaption string `json:"photo_caption"`
}

// AttachTranscriptRequest carries backfilled transcripts for audio prompts.
type AttachTranscriptRequest struct {
	RoseTranscript  string `json:"rose_transcript"`
	BudTranscript   string `json:"bud_transcript"`
	ThornTranscript string `json:"thorn_transcript"`
}

// CommentRequest is the JSON payload for commenting on a reflection.
type CommentRequest struct {
	Body string `json:"body" binding:"required,min=1,max=2000" example:"So happy for you!"`
}

// CommentsResponse wraps a page of comments and pagination information.
type CommentsResponse struct {
	Comments   []domain.Comment `json:"comments"`
	Pagination Pagination       `json:"pagination"`
}

// FeedResponse wraps a circle's weekly feed with its unlock state.
type FeedResponse struct {
	WeekID   string               `json:"week_id"`
	Unlocked bool                 `json:"unlocked"`
	Entries  []services.FeedEntry `json:"entries"`
}

// maxReflectionRunes caps each text prompt at the edge.
const maxReflectionRunes = 4000

//
// Handlers
//

// SubmitReflection godoc
// @ID          submitReflection
// @Summary     Submit the weekly reflection
// @Description Finalizes the caller's Rose/Bud/Thorn for the current week in each target circle.
// @Description Supports idempotency via the Idempotency-Key header scoped by the circle_id query param.
// @Tags        Reflections
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "User ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       circle_id        query   string  false "Circle scope for the idempotency key"
// @Param       body             body    handlers.SubmitReflectionRequest  true  "Reflection payload"
//
// @Success     201  {object}  services.SubmitResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request / empty content"
// @Failure     403  {object}  handlers.ErrorResponse  "Joined mid-week"
// @Failure     404  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     409  {object}  handlers.ErrorResponse  "Already submitted this week"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reflections [post]
func (h *Handlers) SubmitReflection(c *gin.Context) {
	ctx := c.Request.Context()
	currentUser := userID(c)

	var req SubmitReflectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.CircleIDs) == 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "circle_ids required")
		return
	}
	for _, txt := range []string{req.RoseText, req.BudText, req.ThornText} {
		if utf8.RuneCountInString(txt) > maxReflectionRunes {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("prompt too long: max %d runes", maxReflectionRunes))
			return
		}
	}

	// Idempotency (replay path) – read validated key if present.
	idemKey, _ := middlewareGetIdempotencyKey(c)
	idemCircle := strings.TrimSpace(c.Query("circle_id"))
	if idemKey != "" && idemCircle != "" {
		if svc, okSvc := h.reflSvc.(*services.ReflectionService); okSvc && svc.DB != nil {
			if rec, err := repo.GetIdempotency(ctx, svc.DB, currentUser, idemCircle, idemKey, time.Now().UTC()); err == nil && rec != nil {
				if prev, err2 := repo.GetReflection(ctx, svc.DB, rec.ReflectionID); err2 == nil {
					c.Header("Idempotency-Replayed", "true")
					ok(c, rec.Status, services.SubmitResult{Reflections: []domain.Reflection{*prev}})
					return
				}
			}
		}
	}

	res, err := h.reflSvc.Submit(ctx, currentUser, req.CircleIDs, services.ReflectionInput{
		RoseText:      req.RoseText,
		BudText:       req.BudText,
		ThornText:     req.ThornText,
		RoseAudioURL:  req.RoseAudioURL,
		BudAudioURL:   req.BudAudioURL,
		ThornAudioURL: req.ThornAudioURL,
		PhotoURL:      req.PhotoURL,
		PhotoCaption:  req.PhotoCaption,
	})
	if err != nil {
		switch err {
		case services.ErrEmptyReflection:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reflection content required")
		case services.ErrMidWeekJoiner:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "joined mid-week; participation starts next week")
		case services.ErrAlreadySubmitted:
			fail(c, http.StatusConflict, ErrCodeConflict, "already submitted this week")
		case services.ErrNotMember, services.ErrCircleNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "not a member of the target circle")
		case services.ErrNoCurrentWeek:
			fail(c, http.StatusInternalServerError, ErrCodeSubmitFailed, "could not resolve the current week")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeSubmitFailed, err.Error())
		}
		return
	}

	// Idempotency (store path) – best effort, one record per created copy.
	if idemKey != "" {
		if svc, okSvc := h.reflSvc.(*services.ReflectionService); okSvc && svc.DB != nil {
			ttl := 24 * time.Hour
			for _, r := range res.Reflections {
				_, _ = repo.CreateIdempotency(ctx, svc.DB, currentUser, r.CircleID, idemKey, r.ID, http.StatusCreated, ttl)
			}
		}
	}

	ok(c, http.StatusCreated, res)
}

// GetFeed godoc
// @ID          getFeed
// @Summary     Get a circle's weekly feed
// @Description Returns the circle's entries for the week (current week unless week_id is given).
// @Description Other members' content is hidden until everyone eligible has submitted.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Reflections
// @Produce     json
//
// @Param       X-User-ID      header  string  false "User ID (demo header)"       example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    string  true  "Circle ID (UUID)"            format(uuid)
// @Param       week_id        query   string  false "Week ID (defaults to the current week)"
//
// @Success     200  {object}  handlers.FeedResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not a member"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /circles/{id}/feed [get]
func (h *Handlers) GetFeed(c *gin.Context) {
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

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okSvc := h.reflSvc.(*services.ReflectionService); okSvc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.FeedStats(ctx, db, circleID, weekID)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"feed:%s:%s:%d:%d"`, circleID, weekID, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	entries, unlocked, err := h.reflSvc.Feed(ctx, userID(c), circleID, weekID)
	if err != nil {
		switch err {
		case services.ErrNotMember:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "not a member of this circle")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, FeedResponse{WeekID: weekID, Unlocked: unlocked, Entries: entries})
}

// AttachTranscript godoc
// @ID          attachTranscript
// @Summary     Backfill audio transcripts
// @Description Attaches transcripts to the caller's own reflection after async transcription completes.
// @Tags        Reflections
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"   example(user123)
// @Param       id         path    string  true  "Reflection ID (UUID)"    format(uuid)
// @Param       body       body    handlers.AttachTranscriptRequest  true  "Transcripts"
//
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Reflection not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reflections/{id}/transcript [post]
func (h *Handlers) AttachTranscript(c *gin.Context) {
	reflectionID := c.Param("id")
	if _, err := uuid.Parse(reflectionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reflection id must be a UUID")
		return
	}

	var req AttachTranscriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.reflSvc.AttachTranscript(c.Request.Context(), userID(c), reflectionID,
		req.RoseTranscript, req.BudTranscript, req.ThornTranscript)
	if err != nil {
		switch err {
		case services.ErrReflectionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reflection not found")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	noContent(c)
}

// PostComment godoc
// @ID          postComment
// @Summary     Comment on a reflection
// @Description Adds a comment to a reflection the caller can see (their own, or any member's once unlocked).
// @Tags        Comments
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"   example(user123)
// @Param       id         path    string  true  "Reflection ID (UUID)"    format(uuid)
// @Param       body       body    handlers.CommentRequest  true  "Comment payload"
//
// @Success     201  {object}  domain.Comment
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Reflection not found"
// @Failure     423  {object}  handlers.ErrorResponse  "Week still locked"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reflections/{id}/comments [post]
func (h *Handlers) PostComment(c *gin.Context) {
	reflectionID := c.Param("id")
	if _, err := uuid.Parse(reflectionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reflection id must be a UUID")
		return
	}

	var req CommentRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Body) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required (1–2000 chars)")
		return
	}

	comment, err := h.reflSvc.Comment(c.Request.Context(), userID(c), reflectionID, req.Body)
	if err != nil {
		switch err {
		case services.ErrReflectionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reflection not found")
		case services.ErrReflectionLocked:
			fail(c, http.StatusLocked, ErrCodeLocked, "circle is still locked this week")
		case services.ErrEmptyReflection:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "body required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, comment)
}

// ListComments godoc
// @ID          listComments
// @Summary     List a reflection's comments
// @Description Returns a page of comments on a reflection the caller can see, oldest first.
// @Tags        Comments
// @Produce     json
//
// @Param       X-User-ID  header  string  false "User ID (demo header)"   example(user123)
// @Param       id         path    string  true  "Reflection ID (UUID)"    format(uuid)
// @Param       page       query   int     false "Page number (default 1)"         minimum(1)
// @Param       page_size  query   int     false "Items per page (default 20, max 100)"  minimum(1) maximum(100)
//
// @Success     200  {object}  handlers.CommentsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Reflection not found"
// @Failure     423  {object}  handlers.ErrorResponse  "Week still locked"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /reflections/{id}/comments [get]
func (h *Handlers) ListComments(c *gin.Context) {
	reflectionID := c.Param("id")
	if _, err := uuid.Parse(reflectionID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "reflection id must be a UUID")
		return
	}

	page, pageSize := clampPagination(c)

	comments, total, err := h.reflSvc.CommentsPage(c.Request.Context(), userID(c), reflectionID, page, pageSize)
	if err != nil {
		switch err {
		case services.ErrReflectionNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "reflection not found")
		case services.ErrReflectionLocked:
			fail(c, http.StatusLocked, ErrCodeLocked, "circle is still locked this week")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		}
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	if comments == nil {
		comments = []domain.Comment{}
	}
	ok(c, http.StatusOK, CommentsResponse{
		Comments: comments,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// middlewareGetIdempotencyKey extracts an idempotency key if an upstream
// middleware has already validated/stashed it. The fallback behavior reads
// the "Idempotency-Key" header directly when no dedicated middleware exists.
func middlewareGetIdempotencyKey(c *gin.Context) (string, bool) {
	if v := strings.TrimSpace(c.GetHeader("Idempotency-Key")); v != "" {
		return v, true
	}
	return "", false
}

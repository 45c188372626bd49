package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/models"
	"github.com/sujalbistaa/confessions/internal/moderation"
	"github.com/sujalbistaa/confessions/internal/store"
	"github.com/sujalbistaa/confessions/internal/ws"
)

const errConfessionNotFound = "Confession not found"

// MirrorEvents receives the writes that are replicated to the mirror store.
// Implementations must not block.
type MirrorEvents interface {
	ConfessionCreated(c models.Confession)
	LikesUpdated(c models.Confession)
}

// LiveFeed pushes feed changes to connected browsers.
type LiveFeed interface {
	Publish(msgType string, data any)
	ServeWs(w http.ResponseWriter, r *http.Request)
}

type Limits struct {
	MaxConfessionLength int
	MaxCommentLength    int
}

// --- Handlers ---
type Env struct {
	Store      *store.Store
	Mirror     MirrorEvents
	Feed       LiveFeed
	Categories moderation.CategoryPolicy
	Limits     Limits
	Log        *zap.Logger
}

// GetConfessions serves the public feed. The body is rebuilt on every
// request; the ETag only spares the client a download.
func (e *Env) GetConfessions(c *gin.Context) {
	posts, err := e.Store.ListApproved(c.Request.Context())
	if err != nil {
		e.internalError(c, err, "Database error")
		return
	}
	body, err := json.Marshal(posts)
	if err != nil {
		e.internalError(c, err, "Database error")
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	c.Header("ETag", etag)
	c.Header("Cache-Control", "no-cache")
	if etagMatches(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func (e *Env) CreateConfession(c *gin.Context) {
	var input models.CreateConfessionInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(input.Content) == "" || strings.TrimSpace(input.Category) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Content and category are required"})
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(input.Content)) > e.Limits.MaxConfessionLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Confession must be at most %d characters", e.Limits.MaxConfessionLength)})
		return
	}
	category, err := e.Categories.Check(input.Category)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown category"})
		return
	}

	post, err := e.Store.CreateConfession(c.Request.Context(), input.Content, category, input.Nickname)
	if err != nil {
		e.respondError(c, err, "Failed to save confession")
		return
	}
	e.Log.Info("confession created",
		zap.Uint("confession_id", post.ID),
		zap.String("category", post.Category),
		zap.String("request_id", c.GetString(requestIDKey)))

	c.JSON(http.StatusOK, gin.H{"id": post.ID})
	e.Mirror.ConfessionCreated(post)
}

func (e *Env) GetComments(c *gin.Context) {
	id, ok := parseID(c, "Invalid confession ID")
	if !ok {
		return
	}
	comments, err := e.Store.ListComments(c.Request.Context(), id)
	if err != nil {
		e.internalError(c, err, "Failed to fetch comments")
		return
	}
	c.JSON(http.StatusOK, comments)
}

func (e *Env) CreateComment(c *gin.Context) {
	id, ok := parseID(c, "Invalid confession ID")
	if !ok {
		return
	}
	var input models.CreateCommentInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if strings.TrimSpace(input.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment content required"})
		return
	}
	if utf8.RuneCountInString(strings.TrimSpace(input.Content)) > e.Limits.MaxCommentLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Comment must be at most %d characters", e.Limits.MaxCommentLength)})
		return
	}

	if _, err := e.Store.CreateComment(c.Request.Context(), id, input.Content, input.Nickname); err != nil {
		e.respondError(c, err, "Failed to save comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (e *Env) ReportConfession(c *gin.Context) {
	id, ok := parseID(c, "Invalid confession ID")
	if !ok {
		return
	}
	if err := e.Store.Report(c.Request.Context(), id); err != nil {
		e.respondError(c, err, "Failed to report confession")
		return
	}
	e.Log.Info("confession reported", zap.Uint("confession_id", id))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (e *Env) LikeConfession(c *gin.Context) {
	id, ok := parseID(c, "Invalid confession ID")
	if !ok {
		return
	}
	post, err := e.Store.Like(c.Request.Context(), id)
	if err != nil {
		e.respondError(c, err, "Failed to like")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
	e.Mirror.LikesUpdated(post)
	if moderation.Visible(post.Status) {
		e.Feed.Publish(ws.TypeLike, gin.H{"id": post.ID, "likes": post.Likes})
	}
}

func (e *Env) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, e.Categories.Categories())
}

// --- Admin handlers ---

func (e *Env) AdminListConfessions(c *gin.Context) {
	posts, err := e.Store.ListAll(c.Request.Context())
	if err != nil {
		e.internalError(c, err, "Failed to fetch confessions for admin")
		return
	}
	c.JSON(http.StatusOK, posts)
}

func (e *Env) AdminUpdateStatus(c *gin.Context) {
	id, ok := parseID(c, "Invalid confession ID")
	if !ok {
		return
	}
	var input models.UpdateStatusInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	status, err := moderation.ParseStatus(input.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	change, err := e.Store.SetStatus(c.Request.Context(), id, status)
	if err != nil {
		e.respondError(c, err, "Failed to update status")
		return
	}
	e.Log.Info("confession status updated",
		zap.Uint("confession_id", id),
		zap.String("from", string(change.Previous)),
		zap.String("to", string(status)),
		zap.String("request_id", c.GetString(requestIDKey)))

	c.JSON(http.StatusOK, gin.H{"success": true})

	wasVisible, isVisible := moderation.Visible(change.Previous), moderation.Visible(status)
	switch {
	case isVisible && !wasVisible:
		e.Feed.Publish(ws.TypeNewConfession, change.Confession)
	case wasVisible && !isVisible:
		e.Feed.Publish(ws.TypeRemove, gin.H{"id": id})
	}
}

func (e *Env) AdminDeleteConfession(c *gin.Context) {
	id, ok := parseID(c, "Invalid confession ID")
	if !ok {
		return
	}
	if err := e.Store.DeleteConfession(c.Request.Context(), id); err != nil {
		e.respondError(c, err, "Failed to delete confession")
		return
	}
	e.Log.Info("confession deleted",
		zap.Uint("confession_id", id),
		zap.String("request_id", c.GetString(requestIDKey)))

	c.JSON(http.StatusOK, gin.H{"success": true})
	e.Feed.Publish(ws.TypeRemove, gin.H{"id": id})
}

func (e *Env) AdminDeleteComment(c *gin.Context) {
	id, ok := parseID(c, "Invalid comment ID")
	if !ok {
		return
	}
	if err := e.Store.DeleteComment(c.Request.Context(), id); err != nil {
		e.internalError(c, err, "Failed to delete comment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (e *Env) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := e.Store.Ping(ctx); err != nil {
		e.Log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps store errors to responses. Only validation and
// not-found messages reach the client.
func (e *Env) respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errConfessionNotFound})
	case errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Confession is being changed, try again"})
	default:
		e.internalError(c, err, fallback)
	}
}

func (e *Env) internalError(c *gin.Context, err error, msg string) {
	e.Log.Error(msg,
		zap.Error(err),
		zap.String("path", c.FullPath()),
		zap.String("request_id", c.GetString(requestIDKey)))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// parseID rejects ids that are not numbers. Zero is a valid number that
// matches no row.
func parseID(c *gin.Context, msg string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return 0, false
	}
	return uint(id), true
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

package handler

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"docbroker/internal/auth"
	"docbroker/internal/editor"
	"docbroker/internal/middleware"
	"docbroker/internal/model"
	"docbroker/internal/registry"
	"docbroker/internal/storage"
	"github.com/gin-gonic/gin"
)

// EditorHandler exposes the editing session API. Portal-facing routes
// authenticate with the portal access token; the document server routes
// (content, status) authenticate with the per-session document token.
type EditorHandler struct {
	Service     *editor.Service
	TokenConfig auth.TokenConfig
}

type createEditorRequest struct {
	Workspace string `json:"workspace" binding:"required"`
	Path      string `json:"path" binding:"required"`
}

func (h *EditorHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var req createEditorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	cfg, err := h.Service.CreateEditor(c.Request.Context(), userID, req.Workspace, req.Path)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, cfg)
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
	case errors.Is(err, registry.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Editor is closing, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cannot create editor"})
	}
}

func (h *EditorHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	workspace := c.Query("workspace")
	path := c.Query("path")
	if workspace == "" || path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workspace and path are required"})
		return
	}

	cfg, err := h.Service.GetEditor(c.Request.Context(), userID, workspace, path)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, cfg)
	case errors.Is(err, registry.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Document is not being edited"})
	case errors.Is(err, registry.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Editor is closing, retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cannot get editor"})
	}
}

func (h *EditorHandler) State(c *gin.Context) {
	userID, ok := middleware.UserIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	state, err := h.Service.GetState(userID, c.Param("key"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Editor not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// Content streams the document to the editing server. Authenticated by
// the document token minted into the editor configuration; with
// access-only mode on, only the editing server's host may call it.
func (h *EditorHandler) Content(c *gin.Context) {
	userID := c.Param("userId")
	key := c.Param("key")

	if _, ok := h.documentUser(c, userID, key); !ok {
		return
	}
	if !h.Service.CanDownloadBy(remoteHost(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Download not allowed from this host"})
		return
	}

	content, err := h.Service.GetContent(c.Request.Context(), userID, key)
	switch {
	case err == nil:
		defer content.Data.Close()
		c.DataFromReader(http.StatusOK, -1, content.MediaType, content.Data, nil)
	case errors.Is(err, editor.ErrKeyNotFound), errors.Is(err, editor.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Editor not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Cannot read document"})
	}
}

// Status receives a callback from the editing server. The response body
// carries the protocol's error field: 0 acknowledges the callback, any
// other value makes the server retry. Stale callbacks for dropped
// sessions are acknowledged so the server stops retrying them.
func (h *EditorHandler) Status(c *gin.Context) {
	userID := c.Param("userId")
	key := c.Param("key")

	if _, ok := h.documentUser(c, userID, key); !ok {
		return
	}

	var report model.StatusReport
	if err := c.ShouldBindJSON(&report); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": 1})
		return
	}
	if report.Key == "" {
		report.Key = key
	}
	if report.Key != key {
		c.JSON(http.StatusBadRequest, gin.H{"error": 1})
		return
	}

	err := h.Service.UpdateStatus(c.Request.Context(), userID, report)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"error": 0})
	case errors.Is(err, editor.ErrKeyNotFound), errors.Is(err, editor.ErrDocumentUnknown):
		// nothing left to process for this key
		c.JSON(http.StatusOK, gin.H{"error": 0})
	case errors.Is(err, editor.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": 1})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": 1})
	}
}

// documentUser verifies the document token on a document server route
// and checks it was minted for the addressed user and key.
func (h *EditorHandler) documentUser(c *gin.Context, userID, key string) (*auth.DocumentClaims, bool) {
	tokenString := c.Query("token")
	if tokenString == "" {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			tokenString = parts[1]
		}
	}
	if tokenString == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid document token"})
		return nil, false
	}

	claims, err := auth.VerifyDocumentToken(tokenString, key, h.TokenConfig)
	if err != nil || claims.UserID != userID {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid document token"})
		return nil, false
	}
	return claims, true
}

func remoteHost(c *gin.Context) string {
	host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
	if err != nil {
		return c.Request.RemoteAddr
	}
	return host
}

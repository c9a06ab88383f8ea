// Package handlers implements the HTTP surface. Handlers validate and
// bind input, call one service operation, and serialize the result; all
// ledger rules live below this layer.
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ledger-service/ledger_service/internal/domain/entities"
	domainerrors "github.com/ledger-service/ledger_service/internal/domain/errors"
)

// Context keys set by the middleware chain.
const (
	ContextUserIDKey    = "user_id"
	ContextRequestIDKey = "request_id"
)

// getUserID returns the authenticated user id set by the auth middleware.
func getUserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get(ContextUserIDKey)
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

// requireUserID resolves the authenticated user or writes a 401.
func requireUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := getUserID(c)
	if !ok {
		c.AbortWithStatusJSON(401, entities.ErrorResponse{
			Code:    "UNAUTHORIZED",
			Message: "authentication required",
		})
		return uuid.Nil, false
	}
	return userID, true
}

// parseUUIDParam parses a path parameter as a UUID or writes a 400.
func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, domainerrors.ValidationError(name, "must be a valid UUID"))
		return uuid.Nil, false
	}
	return id, true
}

// auditMeta captures the actor metadata attached to audit rows.
func auditMeta(c *gin.Context) entities.AuditMeta {
	meta := entities.AuditMeta{}
	if userID, ok := getUserID(c); ok {
		meta.UserID = &userID
	}
	if ip := c.ClientIP(); ip != "" {
		meta.IPAddress = &ip
	}
	if ua := c.Request.UserAgent(); ua != "" {
		meta.UserAgent = &ua
	}
	return meta
}

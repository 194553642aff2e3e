package api

import (
	"errors"
	"net/http"

	"canteen-service/internal/service"
	"canteen-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

var codeStatus = map[codes.Code]int{
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.ResourceExhausted:  http.StatusConflict,
	codes.FailedPrecondition: http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.Internal:           http.StatusInternalServerError,
}

// statusOf maps a kind to HTTP through its gRPC code
func statusOf(kind service.ErrorKind) int {
	if s, ok := codeStatus[kind.Code()]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status of its kind. Internal causes are
// logged, never sent to the client.
func respondError(c *gin.Context, err error) {
	kind := service.KindOf(err)
	message := "internal error"
	var e *service.Error
	if errors.As(err, &e) && kind != service.KindInternal {
		message = e.Message
	}
	if kind == service.KindInternal {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Stringer("grpc_code", kind.Code()),
			zap.Error(err))
	}

	c.JSON(statusOf(kind), gin.H{
		"error":   kind,
		"message": message,
	})
}

func badRequest(c *gin.Context, message string, err error) {
	body := gin.H{
		"error":   service.KindInvalidArgument,
		"message": message,
	}
	if err != nil {
		body["details"] = err.Error()
	}
	c.JSON(http.StatusBadRequest, body)
}

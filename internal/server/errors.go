package server

import (
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/tournevent/fulfillment/internal/oauthstate"
	"github.com/tournevent/fulfillment/pkg/carrier/melhorenvio"
	"github.com/tournevent/fulfillment/pkg/catalog"
	"github.com/tournevent/fulfillment/pkg/finance"
	"github.com/tournevent/fulfillment/pkg/orders"
	"github.com/tournevent/fulfillment/pkg/shipping"
	"go.uber.org/zap"
)

const (
	msgShippingUnavailable = "shipping temporarily unavailable"
	msgProviderUnavailable = "shipping provider unavailable"
	msgInternal            = "internal error"
)

// mapError turns a component error into an HTTP status and a client message.
func mapError(err error) (int, string) {
	var shipErr *shipping.Error
	if errors.As(err, &shipErr) {
		switch shipErr.Code {
		case shipping.CodeInvalidRequest:
			return http.StatusBadRequest, shipErr.Message
		case shipping.CodeNotConnected, shipping.CodeUnauthorized:
			return http.StatusServiceUnavailable, msgShippingUnavailable
		default:
			return http.StatusBadGateway, msgProviderUnavailable
		}
	}

	switch {
	case errors.Is(err, melhorenvio.ErrNotConnected), errors.Is(err, melhorenvio.ErrRefreshFailed):
		return http.StatusServiceUnavailable, msgShippingUnavailable
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound, "order not found"
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, orders.ErrInvalidOrder):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, catalog.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, catalog.ErrFeedUnavailable):
		return http.StatusBadGateway, "catalog feed unavailable"
	case errors.Is(err, finance.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, finance.ErrInvalidConfig):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, oauthstate.ErrUnknownState):
		return http.StatusBadRequest, "invalid or expired state"
	}
	return http.StatusInternalServerError, msgInternal
}

// respondError writes err as JSON. Server-side failures are logged with the
// endpoint so they can be correlated with the generic client message.
func (s *Server) respondError(c *gin.Context, endpoint string, err error) {
	status, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Ctx(c.Request.Context()).Error("Request failed",
			zap.String("endpoint", endpoint),
			zap.String(requestIDKey, requestIDFrom(c)),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

type validationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func respondInvalid(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json"})
		return
	}
	details := make([]validationDetail, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		details = append(details, validationDetail{Field: field, Message: validationMessage(fe)})
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   "request validation failed",
		"details": details,
	})
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must have at least " + fe.Param() + " entries"
		}
		return "must be at least " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "email":
		return "must be a valid email"
	case "postalcode":
		return "must have at least 8 digits"
	default:
		return "is invalid"
	}
}

var validatorsOnce sync.Once

// registerValidators installs the custom binding rules and reports
// validation fields by their JSON names.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("postalcode", validatePostalCode)
	})
}

func validatePostalCode(fl validator.FieldLevel) bool {
	return len(shipping.NormalizePostalCode(fl.Field().String())) >= 8
}

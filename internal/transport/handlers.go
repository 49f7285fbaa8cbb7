package transport

import (
	"errors"
	"net/http"

	"github.com/HarshTuring/docklens/internal/entity"
	"github.com/HarshTuring/docklens/internal/pkg/authclient"
	"github.com/HarshTuring/docklens/internal/service"
)

type ImageHandler struct {
	service       service.ImageService
	auth          authclient.Client
	maxUploadSize int64
}

func NewImageHandler(service service.ImageService, auth authclient.Client, maxUploadSize int64) *ImageHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = 10 << 20
	}
	return &ImageHandler{service: service, auth: auth, maxUploadSize: maxUploadSize}
}

// statusFor maps an error to the HTTP status distinguishing
// caller-fixable input from transient backend trouble from permanent
// transform failures.
func statusFor(err error) int {
	var rangeErr *entity.ParamRangeError
	var transformErr *entity.TransformError

	switch {
	case errors.Is(err, entity.ErrNoImageProvided),
		errors.Is(err, entity.ErrEmptyImage),
		errors.Is(err, entity.ErrInvalidImageType),
		errors.Is(err, entity.ErrImageTooLarge),
		errors.Is(err, entity.ErrUnknownOperation),
		errors.Is(err, entity.ErrNoOperations),
		errors.Is(err, entity.ErrInvalidAngle),
		errors.Is(err, entity.ErrInvalidResizeMode),
		errors.Is(err, entity.ErrInvalidImageURL),
		errors.As(err, &rangeErr):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, entity.ErrImageNotFound),
		errors.Is(err, entity.ErrVersionNotFound):
		return http.StatusNotFound
	case errors.As(err, &transformErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, entity.ErrURLFetchFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

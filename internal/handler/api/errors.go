package api

import (
	"errors"

	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/service/coingecko"
	xhttp "FinCast/pkg/http"
)

// toAppError maps domain and provider errors onto HTTP errors. Unknown errors
// become 500 without exposing their text.
func toAppError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	var fe *coingecko.FetchError
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrInsufficientHistory):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, domrepo.ErrAlreadyExists):
		return xhttp.ConflictError(err.Error()).WithError(err)
	case errors.As(err, &fe):
		return xhttp.BadGatewayError("market data provider unavailable").
			WithParam("kind", string(fe.Kind)).
			WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

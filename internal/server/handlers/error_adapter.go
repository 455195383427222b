package handlers

import (
	"net/http"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/server/middleware"
)

// HTTPErrorResponder renders an error for a request.
type HTTPErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var httpErrorResponder HTTPErrorResponder = middleware.WriteError

// SetHTTPErrorResponder swaps the error rendering used by handlers. A nil
// responder restores the default.
func SetHTTPErrorResponder(fn HTTPErrorResponder) {
	if fn == nil {
		fn = middleware.WriteError
	}
	httpErrorResponder = fn
}

// ResetHTTPErrorResponder restores the default error rendering.
func ResetHTTPErrorResponder() {
	httpErrorResponder = middleware.WriteError
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	httpErrorResponder(w, r, err)
}

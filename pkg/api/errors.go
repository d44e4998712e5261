package api

import (
	echo "github.com/labstack/echo/v5"

	"github.com/agentgov/pipeline/pkg/errs"
)

// mapErr maps a pipeline error to an Echo HTTP error using the fixed
// kind-to-status table of spec.md §7.
func mapErr(err error) *echo.HTTPError {
	kind := errs.KindOf(err)
	return echo.NewHTTPError(errs.HTTPStatus(kind), err.Error())
}

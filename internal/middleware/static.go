package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// Frontend serves the built web app from dir. Unknown paths fall back to
// index.html so client-side routes load. API paths are never served from disk.
func Frontend(dir string) echo.MiddlewareFunc {
	return echomw.StaticWithConfig(echomw.StaticConfig{
		Root:  dir,
		HTML5: true,
		Skipper: func(c echo.Context) bool {
			return underPrefix(c.Request().URL.Path, apiPrefix)
		},
	})
}

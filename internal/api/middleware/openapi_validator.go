package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"oauthbridge.io/bridge/api"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// Error codes returned when a request does not match the OpenAPI document.
const (
	CodeOpenAPIRouteInvalid   = "OPENAPI_ROUTE_INVALID"
	CodeOpenAPIRequestInvalid = "OPENAPI_REQUEST_INVALID"
)

// MustOpenAPIValidator creates an OpenAPI request validator middleware and panics on setup failure.
func MustOpenAPIValidator(basePath string) gin.HandlerFunc {
	mw, err := NewOpenAPIValidator(basePath)
	if err != nil {
		panic(fmt.Sprintf("init openapi validator: %v", err))
	}
	return mw
}

// NewOpenAPIValidator validates requests against the embedded OpenAPI document.
// Paths in the document are relative to basePath. Requests for paths the
// document does not describe pass through untouched.
func NewOpenAPIValidator(basePath string) (gin.HandlerFunc, error) {
	doc, err := api.Load()
	if err != nil {
		return nil, err
	}
	return newOpenAPIValidator(doc, basePath)
}

func newOpenAPIValidator(doc *openapi3.T, basePath string) (gin.HandlerFunc, error) {
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("create openapi router: %w", err)
	}

	basePath = normalizeBasePath(basePath)
	options := &openapi3filter.Options{
		// Sessions are checked by SessionAuth in the router chain.
		AuthenticationFunc: func(context.Context, *openapi3filter.AuthenticationInput) error { return nil },
	}

	return func(c *gin.Context) {
		origPath := c.Request.URL.Path
		origRawPath := c.Request.URL.RawPath

		route, pathParams, routeErr := findRouteWithFallback(router, c.Request, basePath)
		if routeErr != nil {
			c.Request.URL.Path = origPath
			c.Request.URL.RawPath = origRawPath
			if isPathNotFoundError(routeErr) {
				c.Next()
				return
			}
			abortWithOpenAPIError(c, http.StatusBadRequest, CodeOpenAPIRouteInvalid, routeErr.Error())
			return
		}

		err := openapi3filter.ValidateRequest(c.Request.Context(), &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options:    options,
		})
		c.Request.URL.Path = origPath
		c.Request.URL.RawPath = origRawPath
		if err != nil {
			logger.Debug("OpenAPI request validation failed",
				zap.String("method", c.Request.Method),
				zap.String("path", origPath),
				zap.Error(err),
			)
			abortWithOpenAPIError(c, http.StatusBadRequest, CodeOpenAPIRequestInvalid, err.Error())
			return
		}
		c.Next()
	}, nil
}

func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return ""
	}
	return "/" + strings.Trim(basePath, "/")
}

func normalizeValidationPath(basePath, path string) string {
	if basePath == "" {
		if path == "" {
			return "/"
		}
		return path
	}
	if path == basePath {
		return "/"
	}
	if strings.HasPrefix(path, basePath+"/") {
		return "/" + strings.TrimPrefix(path, basePath+"/")
	}
	return path
}

// findRouteWithFallback tries the request path as is, then with basePath
// stripped. The request URL is left rewritten to the matching candidate.
func findRouteWithFallback(router routers.Router, req *http.Request, basePath string) (*routers.Route, map[string]string, error) {
	origPath := req.URL.Path
	origRawPath := req.URL.RawPath

	candidates := [][2]string{{origPath, origRawPath}}
	normalizedPath := normalizeValidationPath(basePath, origPath)
	normalizedRawPath := origRawPath
	if origRawPath != "" {
		normalizedRawPath = normalizeValidationPath(basePath, origRawPath)
	}
	if normalizedPath != origPath || normalizedRawPath != origRawPath {
		candidates = append(candidates, [2]string{normalizedPath, normalizedRawPath})
	}

	var lastErr error
	for _, candidate := range candidates {
		req.URL.Path = candidate[0]
		req.URL.RawPath = candidate[1]

		route, pathParams, err := router.FindRoute(req)
		if err == nil {
			return route, pathParams, nil
		}
		if !isPathNotFoundError(err) {
			return nil, nil, err
		}
		lastErr = err
	}

	req.URL.Path = origPath
	req.URL.RawPath = origRawPath
	return nil, nil, lastErr
}

func isPathNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, routers.ErrPathNotFound) {
		return true
	}
	var routeErr *routers.RouteError
	if errors.As(err, &routeErr) && strings.Contains(routeErr.Reason, routers.ErrPathNotFound.Error()) {
		return true
	}
	return strings.Contains(err.Error(), routers.ErrPathNotFound.Error())
}

func abortWithOpenAPIError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code":       code,
		"message":    message,
		"request_id": GetRequestID(c.Request.Context()),
	})
}

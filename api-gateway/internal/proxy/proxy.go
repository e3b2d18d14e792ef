// Package proxy forwards gateway requests to the backing services.
package proxy

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tbc/persons/shared/middleware"
)

const userIDHeader = "X-User-ID"

// hop-by-hop headers are not forwarded in either direction.
var hopHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Proxy-Connection":  true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Te":                true,
	"Trailer":           true,
}

// To returns a handler that replays the request against serviceURL with the
// same path and query, forwarding the authenticated caller as X-User-ID.
func To(serviceURL string, client *http.Client, logger *slog.Logger) gin.HandlerFunc {
	serviceURL = strings.TrimSuffix(serviceURL, "/")
	return func(c *gin.Context) {
		targetURL := serviceURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			targetURL += "?" + c.Request.URL.RawQuery
		}

		var bodyBytes []byte
		if c.Request.Body != nil {
			b, err := io.ReadAll(c.Request.Body)
			if err != nil {
				logger.WarnContext(c.Request.Context(), "failed to read request body", "target", targetURL, "error", err)
				middleware.RespondWithError(c, http.StatusBadRequest, "Failed to read request body")
				return
			}
			bodyBytes = b
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, bytes.NewReader(bodyBytes))
		if err != nil {
			middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to create request")
			return
		}

		for key, values := range c.Request.Header {
			if hopHeaders[http.CanonicalHeaderKey(key)] {
				continue
			}
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}
		// only the gateway vouches for the caller
		req.Header.Del(userIDHeader)
		if userID, ok := middleware.GetUserID(c); ok {
			req.Header.Set(userIDHeader, userID)
		}

		resp, err := client.Do(req)
		if err != nil {
			logger.ErrorContext(c.Request.Context(), "error proxying request", "target", targetURL, "error", err)
			middleware.RespondWithError(c, http.StatusBadGateway, "Service unavailable")
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			middleware.RespondWithError(c, http.StatusBadGateway, "Failed to read response")
			return
		}

		for key, values := range resp.Header {
			if hopHeaders[key] || key == "Content-Length" {
				continue
			}
			c.Writer.Header()[key] = values
		}

		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}
}

package http

import (
	"encoding/json"
	"log"
	"net/url"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mpetrov/gatehouse/internal/domain"
)

const (
	requestBodyLogKey  = "http.request.body.summary"
	responseBodyLogKey = "http.response.body.summary"
	maxLoggedBody      = 2048
)

func registerLogging(e *echo.Echo) {
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			userID := "anonymous"
			if user, ok := c.Get(contextUserKey).(*domain.User); ok && user != nil {
				userID = user.ID.String()
			}

			payload := struct {
				Time      string `json:"time"`
				UserUUID  string `json:"user_uuid"`
				LatencyMS int64  `json:"latency_ms"`
				Request   struct {
					Method string      `json:"method"`
					URI    string      `json:"uri"`
					Body   interface{} `json:"body,omitempty"`
				} `json:"request"`
				Response struct {
					Status int         `json:"status"`
					Body   interface{} `json:"body,omitempty"`
					Error  string      `json:"error,omitempty"`
				} `json:"response"`
			}{
				Time:      v.StartTime.Format(time.RFC3339),
				UserUUID:  userID,
				LatencyMS: v.Latency.Milliseconds(),
			}

			payload.Request.Method = v.Method
			payload.Request.URI = sanitizeURI(v.URI)
			if summary := c.Get(requestBodyLogKey); summary != nil {
				payload.Request.Body = summary
			}

			payload.Response.Status = v.Status
			if summary := c.Get(responseBodyLogKey); summary != nil {
				payload.Response.Body = summary
			}
			if v.Error != nil {
				payload.Response.Error = v.Error.Error()
			}

			buf, err := json.Marshal(payload)
			if err != nil {
				return err
			}

			log.Println(string(buf))
			return nil
		},
	}))

	e.Use(middleware.BodyDump(func(c echo.Context, reqBody, resBody []byte) {
		if summary := sanitizeBody(reqBody, c.Request().Header.Get(echo.HeaderContentType)); summary != nil {
			c.Set(requestBodyLogKey, summary)
		}
		if summary := sanitizeBody(resBody, c.Response().Header().Get(echo.HeaderContentType)); summary != nil {
			c.Set(responseBodyLogKey, summary)
		}
	}))
}

// sanitizeURI keeps reset tokens out of the logs: the token query parameter
// is itself a credential.
func sanitizeURI(uri string) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	q := parsed.Query()
	if q.Has("token") {
		q.Set("token", "redacted")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}

func sanitizeBody(body []byte, contentType string) interface{} {
	if len(body) == 0 {
		return nil
	}

	loweredType := strings.ToLower(strings.TrimSpace(contentType))

	if strings.HasPrefix(loweredType, "application/json") || json.Valid(body) {
		var data interface{}
		if err := json.Unmarshal(body, &data); err == nil {
			return sanitizeJSON(data, "")
		}
	}

	if strings.HasPrefix(loweredType, "application/x-www-form-urlencoded") {
		if values, err := url.ParseQuery(string(body)); err == nil {
			sanitized := make(map[string]interface{}, len(values))
			for key, vals := range values {
				lowerKey := strings.ToLower(key)
				if isSecretKey(lowerKey) {
					sanitized[key] = "redacted"
					continue
				}
				if len(vals) == 1 {
					sanitized[key] = sanitizeStringValue(vals[0], lowerKey)
				} else {
					slice := make([]interface{}, 0, len(vals))
					for _, v := range vals {
						slice = append(slice, sanitizeStringValue(v, lowerKey))
					}
					sanitized[key] = slice
				}
			}
			if len(sanitized) > 0 {
				return sanitized
			}
		}
	}

	if containsBinaryBytes(body) {
		return "binary"
	}

	text := string(body)
	lowered := strings.ToLower(text)
	if strings.Contains(lowered, "password") || strings.Contains(lowered, "token") {
		return "redacted"
	}

	return clampString(text)
}

func sanitizeJSON(value interface{}, keyHint string) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, val := range v {
			lowerKey := strings.ToLower(key)
			if isSecretKey(lowerKey) {
				result[key] = "redacted"
				continue
			}
			result[key] = sanitizeJSON(val, lowerKey)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = sanitizeJSON(item, keyHint)
		}
		return result
	case string:
		return sanitizeStringValue(v, keyHint)
	default:
		return v
	}
}

func isSecretKey(lowerKey string) bool {
	return strings.Contains(lowerKey, "password") || strings.Contains(lowerKey, "token")
}

func sanitizeStringValue(value string, keyHint string) string {
	if keyHint != "" && isSecretKey(keyHint) {
		return "redacted"
	}
	if containsBinaryBytes([]byte(value)) {
		return "binary"
	}
	return clampString(value)
}

func containsBinaryBytes(data []byte) bool {
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			return true
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return true
		}
		data = data[size:]
	}
	return false
}

func clampString(value string) string {
	if len(value) <= maxLoggedBody {
		return value
	}
	truncated := value[:maxLoggedBody]
	for !utf8.ValidString(truncated) && len(truncated) > 0 {
		truncated = truncated[:len(truncated)-1]
	}
	return truncated + "...(truncated)"
}

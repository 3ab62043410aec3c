package apis

import (
	"net/http"

	"github.com/alwitt/goutils"
	"github.com/alwitt/livetransit/common"
	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// ErrorResponse REST response for a failed request
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// notFoundMessage body text of every 404 response
const notFoundMessage = "Not found"

// ========================================================================================
// MethodHandlers DICT of method-endpoint handler
type MethodHandlers map[string]http.HandlerFunc

// RegisterPathPrefix Register new method handler for an end-point
func RegisterPathPrefix(
	parentRouter *mux.Router, pathPrefix string, methodHandlers MethodHandlers,
) *mux.Router {
	router := parentRouter.PathPrefix(pathPrefix).Subrouter()
	for method, handler := range methodHandlers {
		router.Methods(method).Path("").HandlerFunc(handler)
	}
	return router
}

// ========================================================================================

// defineRestAPIHandler build the REST handler base shared by every API handler
func defineRestAPIHandler(
	logTags log.Fields, logConfig *common.HTTPRequestLogging,
) goutils.RestAPIHandler {
	return goutils.RestAPIHandler{
		Component: goutils.Component{
			LogTags: logTags,
			LogTagModifiers: []goutils.LogMetadataModifier{
				goutils.ModifyLogMetadataByRestRequestParam,
			},
		},
		CallRequestIDHeaderField: &logConfig.RequestIDHeader,
		DoNotLogHeaders: func() map[string]bool {
			result := map[string]bool{}
			for _, v := range logConfig.DoNotLogHeaders {
				result[v] = true
			}
			return result
		}(),
	}
}

// RequestLogger sink for the HTTP access log
type RequestLogger struct {
	common.Component
}

// GetRequestLogger define a RequestLogger
func GetRequestLogger(instance string) RequestLogger {
	return RequestLogger{
		Component: common.Component{
			LogTags: log.Fields{"module": "apis", "component": "access-log", "instance": instance},
		},
	}
}

// Write logging support
func (l RequestLogger) Write(p []byte) (n int, err error) {
	log.WithFields(l.LogTags).Infof("%s", p)
	return len(p), nil
}

// RequestIDMiddleware attach a request ID to every API request and echo it back.
//
// A caller supplied ID is reused, otherwise a new one is generated.
func RequestIDMiddleware(header string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(header)
			if reqID == "" {
				reqID = uuid.New().String()
				r.Header.Set(header, reqID)
			}
			rw.Header().Set(header, reqID)
			next.ServeHTTP(rw, r)
		})
	}
}

package webd

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"

	ghandlers "github.com/gorilla/handlers"
)

// tokenAuthenticationMiddleware is a middleware that checks for a valid token in the AuthorizationOfCats header,
// or an api_token query param.
// If the token is not valid, it returns a 403 Forbidden.
// If no COTOKEN is set, it allows all requests.
func tokenAuthenticationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		validToken := os.Getenv("COTOKEN")
		if validToken == "" {
			slog.Warn("No COTOKEN set, allowing all requests")
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("AuthorizationOfCats")
		if token == "" {
			// eg. catonmap.info:3001/populate/?api_token=asdfasdfb
			token = r.URL.Query().Get("api_token")
		}

		if token != validToken {
			slog.Warn("Invalid token",
				"token", strconv.Quote(token),
				"method", r.Method, "url", r.URL, "proto", r.Proto,
				"host", r.Host, "remote-addr", r.RemoteAddr,
				"content-length", r.ContentLength,
				"user-agent", r.UserAgent())
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func permissiveCorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Add("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization, AuthorizationOfCats")
		next.ServeHTTP(w, r)
	})
}

func contentTypeMiddlewareFunc(contentType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			next.ServeHTTP(w, r)
		})
	}
}

// requestHost is the remote host, plus any proxies it came through.
func requestHost(req *http.Request) string {
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	for _, v := range req.Header.Values("X-Forwarded-For") {
		host += "->" + v
	}
	return host
}

// logRequest logs one served request with the fields of a common log line.
func logRequest(params ghandlers.LogFormatterParams) {
	req := params.Request
	uri := req.RequestURI

	// Requests using the CONNECT method over HTTP/2.0 must use
	// the authority field (aka r.Host) to identify the target.
	if req.ProtoMajor == 2 && req.Method == "CONNECT" {
		uri = req.Host
	}
	if uri == "" {
		uri = params.URL.RequestURI()
	}
	user := "-"
	if params.URL.User != nil && params.URL.User.Username() != "" {
		user = params.URL.User.Username()
	}

	level := slog.LevelInfo
	if params.StatusCode >= http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	slog.Log(req.Context(), level, "HTTP",
		"host", requestHost(req),
		"user", user,
		"method", req.Method,
		"uri", uri,
		"proto", req.Proto,
		"status", params.StatusCode,
		"size", params.Size,
		"ts", params.TimeStamp.Format("02/Jan/2006:15:04:05 -0700"),
	)
}

// https://github.com/gorilla/mux#middleware
func loggingMiddleware(next http.Handler) http.Handler {
	return ghandlers.CustomLoggingHandler(nil, next, func(_ io.Writer, params ghandlers.LogFormatterParams) {
		logRequest(params)
	})
}

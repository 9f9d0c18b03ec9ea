package transport

import (
	"bytes"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type middleware struct {
	log            zerolog.Logger
	writer         writer
	traceExtractor traceExtractor
}

func (m middleware) recoverer(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil && rvr != http.ErrAbortHandler {
				m.writer.error(r.Context(), w, "Internal server error", nil, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// limitReader rejects the request early by looking to the content-length header. This header may not be available
// or even wrong, so the body is capped as well.
func (m middleware) limitReader(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			rawContentLength := r.Header.Get("Content-Length")
			if rawContentLength != "" {
				contentLength, err := strconv.ParseInt(rawContentLength, 10, 64)
				if err != nil {
					m.writer.error(r.Context(), w, "Fail to parse the header content-length", err, http.StatusBadRequest)
					return
				}
				if contentLength > limit {
					m.writer.error(r.Context(), w, "Request payload too large", nil, http.StatusRequestEntityTooLarge)
					return
				}
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

// rateLimit sheds the requests above the limiter budget. The budget is global, not per client.
func (m middleware) rateLimit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				m.writer.error(r.Context(), w, "Too many requests", nil, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

func (m middleware) logger(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if r.RequestURI == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		requestURI := r.RequestURI
		if token := r.URL.Query().Get("token"); token != "" {
			requestURI = strings.ReplaceAll(requestURI, token, "[REDACTED]")
		}

		log, err := m.traceExtractor(r.Context(), m.log)
		if err != nil {
			m.writer.error(r.Context(), w, "Could not extract tracing id", nil, http.StatusInternalServerError)
			return
		}

		t1 := time.Now()
		reqID := chiMiddleware.GetReqID(r.Context())
		entry := log.Info().
			Str("requestID", reqID).
			Str("method", r.Method).
			Str("endpoint", requestURI).
			Str("protocol", r.Proto)
		if r.RemoteAddr != "" {
			entry = entry.Str("ip", r.RemoteAddr)
		}
		entry.Msg("Request started")

		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Str("requestID", reqID).
					Dur("duration", time.Since(t1)).
					Int("status", 500).
					Str("stacktrace", string(debug.Stack())).
					Msg("Request finished with panic")
				panic(err)
			}
		}()

		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		responseBody := bytes.NewBuffer([]byte{})
		ww.Tee(responseBody)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		entry = log.Info().
			Err(r.Context().Err()).
			Str("requestID", reqID).
			Dur("duration", time.Since(t1)).
			Int("contentLength", ww.BytesWritten()).
			Int("status", status)

		if status < 200 || status >= 300 {
			entry = entry.Str("body", responseBody.String())
		}

		if status == http.StatusInternalServerError {
			entry.Str("stacktrace", string(debug.Stack())).Msg("Internal error during request")
		} else {
			entry.Msg("Request finished")
		}
	}

	return http.HandlerFunc(fn)
}

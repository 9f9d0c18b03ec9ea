package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/nitro/lazytemplate/internal/domain"
	"github.com/nitro/lazytemplate/internal/service"
)

type handlerTemplateService interface {
	Save(context.Context, domain.Template) (service.SaveResult, error)
	Load(context.Context, string) (domain.Template, error)
	List(context.Context) ([]string, error)
	Delete(context.Context, string) error
	Definition(context.Context, string, string) ([]byte, error)
}

type handlerDocumentService interface {
	Text(context.Context, []byte) (service.DocumentText, error)
	Viewport(context.Context, []byte, int, int) (domain.Viewport, error)
	Preview(context.Context, []byte, int, int, float32, io.Writer) error
}

type handler struct {
	writer          writer
	logger          zerolog.Logger
	traceExtractor  traceExtractor
	templateService handlerTemplateService
	documentService handlerDocumentService
}

func (h handler) notFound(w http.ResponseWriter, r *http.Request) {
	h.writer.error(r.Context(), w, "Endpoint not found", nil, http.StatusNotFound)
}

func (h handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writer.error(r.Context(), w, "Method not allowed", nil, http.StatusMethodNotAllowed)
}

func (h handler) health(w http.ResponseWriter, r *http.Request) {
	h.writer.response(r.Context(), w, map[string]interface{}{"status": "healthy"}, http.StatusOK)
}

func (h handler) templateList(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}

	names, err := h.templateService.List(r.Context())
	if err != nil {
		h.serviceError(w, r, logger, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.writer.response(r.Context(), w, map[string]interface{}{"templates": names}, http.StatusOK)
}

func (h handler) templateLoad(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	name, ok := h.nameParameter(w, r, logger)
	if !ok {
		return
	}

	template, err := h.templateService.Load(r.Context(), name)
	if err != nil {
		h.serviceError(w, r, logger, err)
		return
	}
	h.writer.response(r.Context(), w, template, http.StatusOK)
}

func (h handler) templateSave(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	reqID := chiMiddleware.GetReqID(r.Context())

	var template domain.Template
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&template); err != nil {
		logger.Err(err).Str("requestID", reqID).Msg("Invalid template payload")
		h.writer.error(r.Context(), w, "Invalid template payload", err, http.StatusBadRequest)
		return
	}

	result, err := h.templateService.Save(r.Context(), template)
	if err != nil {
		h.serviceError(w, r, logger, err)
		return
	}
	h.writer.response(r.Context(), w, result, http.StatusOK)
}

func (h handler) templateDelete(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	name, ok := h.nameParameter(w, r, logger)
	if !ok {
		return
	}

	if err := h.templateService.Delete(r.Context(), name); err != nil {
		h.serviceError(w, r, logger, err)
		return
	}
	h.writer.response(r.Context(), w, nil, http.StatusNoContent)
}

func (h handler) templateDownload(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	name, ok := h.nameParameter(w, r, logger)
	if !ok {
		return
	}

	payload, err := h.templateService.Definition(r.Context(), h.urlToVerify(r), name)
	if err != nil {
		h.serviceError(w, r, logger, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".yml"))
	h.writer.raw(r.Context(), w, payload, "application/yaml", http.StatusOK)
}

func (h handler) documentText(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	payload, ok := h.documentPayload(w, r, logger)
	if !ok {
		return
	}

	result, err := h.documentService.Text(r.Context(), payload)
	if err != nil {
		h.serviceError(w, r, logger, err)
		return
	}
	h.writer.response(r.Context(), w, result, http.StatusOK)
}

func (h handler) documentViewport(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	page, ok := h.intParameter(w, r, logger, "page", 1)
	if !ok {
		return
	}
	width, ok := h.intParameter(w, r, logger, "width", 0)
	if !ok {
		return
	}
	payload, ok := h.documentPayload(w, r, logger)
	if !ok {
		return
	}

	viewport, err := h.documentService.Viewport(r.Context(), payload, page, width)
	if err != nil {
		h.serviceError(w, r, logger, err)
		return
	}
	h.writer.response(r.Context(), w, viewport, http.StatusOK)
}

func (h handler) documentPreview(w http.ResponseWriter, r *http.Request) {
	logger, ok := h.requestLogger(w, r)
	if !ok {
		return
	}
	reqID := chiMiddleware.GetReqID(r.Context())

	page, ok := h.intParameter(w, r, logger, "page", 1)
	if !ok {
		return
	}
	width, ok := h.intParameter(w, r, logger, "width", 0)
	if !ok {
		return
	}
	var scale float64
	if rawScale := r.URL.Query().Get("scale"); rawScale != "" {
		var err error
		scale, err = strconv.ParseFloat(rawScale, 32)
		if err != nil {
			logger.Err(err).Str("requestID", reqID).Msg("Invalid 'scale' parameter")
			h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), errors.New("invalid 'scale' parameter"),
				http.StatusBadRequest)
			return
		}
	}
	payload, ok := h.documentPayload(w, r, logger)
	if !ok {
		return
	}

	buf := bytes.NewBuffer([]byte{})
	if err := h.documentService.Preview(r.Context(), payload, page, width, float32(scale), buf); err != nil {
		h.serviceError(w, r, logger, err)
		return
	}
	h.writer.raw(r.Context(), w, buf.Bytes(), "image/png", http.StatusOK)
}

func (h handler) requestLogger(w http.ResponseWriter, r *http.Request) (zerolog.Logger, bool) {
	reqID := chiMiddleware.GetReqID(r.Context())
	logger, err := h.traceExtractor(r.Context(), h.logger)
	if err != nil {
		logger.Err(err).Str("requestID", reqID).Msg("Could not extract tracing id")
		h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), nil, http.StatusInternalServerError)
		return logger, false
	}
	return logger, true
}

func (h handler) nameParameter(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) (string, bool) {
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil || name == "" {
		reqID := chiMiddleware.GetReqID(r.Context())
		logger.Err(err).Str("requestID", reqID).Msg("Invalid 'name' parameter")
		h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), errors.New("invalid template name"),
			http.StatusBadRequest)
		return "", false
	}
	return name, true
}

func (h handler) intParameter(
	w http.ResponseWriter, r *http.Request, logger zerolog.Logger, key string, fallback int,
) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		reqID := chiMiddleware.GetReqID(r.Context())
		logger.Err(err).Str("requestID", reqID).Msgf("Invalid '%s' parameter", key)
		h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), fmt.Errorf("invalid '%s' parameter", key),
			http.StatusBadRequest)
		return 0, false
	}
	return value, true
}

func (h handler) documentPayload(w http.ResponseWriter, r *http.Request, logger zerolog.Logger) ([]byte, bool) {
	reqID := chiMiddleware.GetReqID(r.Context())
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		status := http.StatusBadRequest
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.Err(err).Str("requestID", reqID).Msg("Fail to read the document")
		h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), nil, status)
		return nil, false
	}
	if len(payload) == 0 {
		h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), errors.New("missing the PDF document"),
			http.StatusBadRequest)
		return nil, false
	}
	return payload, true
}

// serviceError maps the service errors into status codes. Only client errors expose their detail.
func (h handler) serviceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	reqID := chiMiddleware.GetReqID(r.Context())
	if ctxErr := r.Context().Err(); ctxErr != nil {
		logger.Err(ctxErr).Str("requestID", reqID).Msg("Context error")
		if ctxErr == context.Canceled {
			return
		}
		h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), nil, http.StatusRequestTimeout)
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrClient):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	}
	logger.Err(err).Str("requestID", reqID).Msg("Error")

	detail := err
	if status == http.StatusInternalServerError {
		detail = nil
	}
	h.writer.error(r.Context(), w, fmt.Sprintf("Request ID '%s'", reqID), detail, status)
}

// Remove all the parameters, but the token, from the path. Other parameters can then be passed without making the
// url signature invalid.
func (handler) urlToVerify(r *http.Request) string {
	q := r.URL.Query()
	for key := range q {
		if slices.Contains([]string{"token"}, key) {
			continue
		}
		q.Del(key)
	}
	u := *r.URL
	u.RawQuery = q.Encode()
	return u.String()
}

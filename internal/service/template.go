package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/Nitro/urlsign"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
	"golang.org/x/sync/errgroup"

	"github.com/nitro/lazytemplate/internal/annotation"
	"github.com/nitro/lazytemplate/internal/domain"
	"github.com/nitro/lazytemplate/internal/extraction"
)

const (
	templateExtension   = ".json"
	definitionExtension = ".yml"
	maxNameLength       = 100

	// SigningBucketSize is the validity window of a signed download URL.
	SigningBucketSize = 8 * time.Hour
)

type templateStorage interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, payload io.Reader) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, suffix string) ([]string, error)
}

// SaveResult is returned after a template is stored.
type SaveResult struct {
	Message     string `json:"message"`
	Template    string `json:"template"`
	Revision    string `json:"revision"`
	DownloadURL string `json:"downloadURL"`
}

// Template stores templates and their extraction definitions.
type Template struct {
	Storage          templateStorage
	Logger           zerolog.Logger
	TraceExtractor   func(context.Context, zerolog.Logger) (zerolog.Logger, error)
	URLSigningSecret string

	now func() time.Time
}

// Init template internal state.
func (t *Template) Init() error {
	if t.Storage == nil {
		return errors.New("internal/service/Template.Storage can't be nil")
	}
	if t.TraceExtractor == nil {
		return errors.New("internal/service/Template.TraceExtractor can't be nil")
	}
	if t.URLSigningSecret == "" {
		return errors.New("internal/service/Template.URLSigningSecret can't be empty")
	}
	if t.now == nil {
		t.now = time.Now
	}
	return nil
}

// Save validates the template and writes it together with its extraction definition.
func (t *Template) Save(ctx context.Context, template domain.Template) (_ SaveResult, err error) {
	span, ctx := startSpan(ctx, "Template.Save")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	model := annotation.New()
	for i, a := range template.Annotations {
		if _, err := model.Add(annotation.CandidateFromAnnotation(a)); err != nil {
			return SaveResult{}, newInvalidError(fmt.Errorf("annotation %d: %w", i, err))
		}
	}
	validated, err := model.Serialize(template.PDFName)
	if err != nil {
		return SaveResult{}, newInvalidError(err)
	}
	name, err := SanitizeName(validated.PDFName)
	if err != nil {
		return SaveResult{}, newInvalidError(err)
	}

	templatePayload, err := json.Marshal(validated)
	if err != nil {
		return SaveResult{}, fmt.Errorf("fail to marshal the template: %w", err)
	}
	definitionPayload, err := extraction.Build(validated).Encode()
	if err != nil {
		return SaveResult{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := t.Storage.Put(gctx, name+templateExtension, bytes.NewReader(templatePayload)); err != nil {
			return fmt.Errorf("fail to store the template: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := t.Storage.Put(gctx, name+definitionExtension, bytes.NewReader(definitionPayload)); err != nil {
			return fmt.Errorf("fail to store the definition: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return SaveResult{}, err
	}

	revision := uuid.New().String()
	span.SetTag("template", name)
	span.SetTag("annotations", len(validated.Annotations))
	if logger, err := t.TraceExtractor(ctx, t.Logger); err == nil {
		logger.Info().Str("template", name).Str("revision", revision).Int("annotations", len(validated.Annotations)).
			Msg("Template saved")
	}

	return SaveResult{
		Message:     "Template saved successfully",
		Template:    name + definitionExtension,
		Revision:    revision,
		DownloadURL: t.DownloadURL(name),
	}, nil
}

// Load a stored template.
func (t *Template) Load(ctx context.Context, name string) (_ domain.Template, err error) {
	span, ctx := startSpan(ctx, "Template.Load")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	key, err := SanitizeName(name)
	if err != nil {
		return domain.Template{}, newClientError(err)
	}

	payload, err := t.read(ctx, key+templateExtension)
	if err != nil {
		return domain.Template{}, err
	}

	var template domain.Template
	if err := json.Unmarshal(payload, &template); err != nil {
		return domain.Template{}, fmt.Errorf("fail to unmarshal the template '%s': %w", key, err)
	}
	return template, nil
}

// List the stored templates by definition name.
func (t *Template) List(ctx context.Context) (_ []string, err error) {
	span, ctx := startSpan(ctx, "Template.List")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	keys, err := t.Storage.List(ctx, definitionExtension)
	if err != nil {
		return nil, fmt.Errorf("fail to list the templates: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Delete a template and its definition.
func (t *Template) Delete(ctx context.Context, name string) (err error) {
	span, ctx := startSpan(ctx, "Template.Delete")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	key, err := SanitizeName(name)
	if err != nil {
		return newClientError(err)
	}

	reader, err := t.Storage.Get(ctx, key+templateExtension)
	if err != nil {
		return fmt.Errorf("fail to fetch the template '%s': %w", key, err)
	}
	if reader == nil {
		return newNotFoundError(fmt.Errorf("template '%s' not found", key))
	}
	reader.Close()

	g, gctx := errgroup.WithContext(ctx)
	for _, k := range []string{key + templateExtension, key + definitionExtension} {
		g.Go(func() error {
			if err := t.Storage.Delete(gctx, k); err != nil {
				return fmt.Errorf("fail to delete '%s': %w", k, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// DownloadURL is the signed path of a template definition.
func (t *Template) DownloadURL(name string) string {
	path := "/templates/download/" + url.PathEscape(name)
	token := urlsign.GenerateToken(t.URLSigningSecret, SigningBucketSize, t.now(), path)
	return path + "?token=" + token
}

// Definition returns the extraction definition after checking the URL signature.
func (t *Template) Definition(ctx context.Context, signedURL, name string) (_ []byte, err error) {
	span, ctx := startSpan(ctx, "Template.Definition")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	if !urlsign.IsValidSignature(t.URLSigningSecret, SigningBucketSize, t.now(), signedURL) {
		return nil, newUnauthorizedError(errors.New("invalid token"))
	}

	key, err := SanitizeName(name)
	if err != nil {
		return nil, newClientError(err)
	}
	return t.read(ctx, key+definitionExtension)
}

func (t *Template) read(ctx context.Context, key string) ([]byte, error) {
	reader, err := t.Storage.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fail to fetch '%s': %w", key, err)
	}
	if reader == nil {
		return nil, newNotFoundError(fmt.Errorf("'%s' not found", key))
	}
	defer reader.Close()

	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("fail to read '%s': %w", key, err)
	}
	return payload, nil
}

// SanitizeName turns a document name into a storage key. Only letters, digits, spaces and "-_.()"
// are kept, spaces become underscores, a trailing ".pdf" or ".yml" is dropped and the result is
// capped at 100 characters.
func SanitizeName(name string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		case strings.ContainsRune("-_.()", r):
			b.WriteRune(r)
		}
	}
	result := b.String()
	for _, extension := range []string{".pdf", definitionExtension} {
		if strings.HasSuffix(strings.ToLower(result), extension) {
			result = result[:len(result)-len(extension)]
			break
		}
	}
	if len(result) > maxNameLength {
		result = result[:maxNameLength]
	}
	if strings.Trim(result, "._") == "" {
		return "", fmt.Errorf("invalid template name '%s'", name)
	}
	return result, nil
}

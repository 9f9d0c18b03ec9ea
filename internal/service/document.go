package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nitro/lazypdf/v2"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	ddTracer "gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/nitro/lazytemplate/internal/domain"
)

const (
	// ReferenceWidth is the page width, in pixels, the builder lays pages out against.
	ReferenceWidth = 780

	maxPreviewWidth = 4096
	maxPreviewScale = 3
)

// PageText is the plain text of one page.
type PageText struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// DocumentText is the text a user can select from.
type DocumentText struct {
	Pages []PageText `json:"pages"`
	Text  string     `json:"text"`
}

// Document inspects the PDF a template is being built for. Nothing is persisted.
type Document struct {
	Logger         zerolog.Logger
	TraceExtractor func(context.Context, zerolog.Logger) (zerolog.Logger, error)

	render func(context.Context, uint16, uint16, float32, io.Reader, io.Writer) error
}

// Init document internal state.
func (d *Document) Init() error {
	if d.TraceExtractor == nil {
		return errors.New("internal/service/Document.TraceExtractor can't be nil")
	}
	if d.render == nil {
		d.render = func(
			ctx context.Context, page, width uint16, scale float32, input io.Reader, output io.Writer,
		) error {
			return lazypdf.SaveToPNG(ctx, page, width, scale, input, output)
		}
	}
	return nil
}

// Text extracts the plain text of every page.
func (d *Document) Text(ctx context.Context, payload []byte) (_ DocumentText, err error) {
	span, ctx := startSpan(ctx, "Document.Text")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	reader, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return DocumentText{}, newClientError(fmt.Errorf("fail to open the PDF: %w", err))
	}

	logger, _ := d.TraceExtractor(ctx, d.Logger)
	var (
		result  DocumentText
		builder strings.Builder
	)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			logger.Warn().Err(err).Int("page", i).Msg("Fail to extract the page text")
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}
		result.Pages = append(result.Pages, PageText{Page: i, Text: content})
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(content)
	}
	span.SetTag("pageCount", reader.NumPage())

	if builder.Len() == 0 {
		return DocumentText{}, newClientError(errors.New(
			"the PDF appears to be an image-based file. Please run OCR before uploading",
		))
	}
	result.Text = builder.String()
	return result, nil
}

// Viewport computes the rendered size of a page laid out in a container of the given width. A zero
// width keeps the page at its natural size.
func (d *Document) Viewport(ctx context.Context, payload []byte, page int, containerWidth int) (_ domain.Viewport, err error) {
	span, _ := startSpan(ctx, "Document.Viewport")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	if containerWidth < 0 {
		return domain.Viewport{}, newClientError(errors.New("invalid width"))
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pdfCtx, err := api.ReadContext(bytes.NewReader(payload), conf)
	if err != nil {
		return domain.Viewport{}, newClientError(fmt.Errorf("fail to read the PDF: %w", err))
	}
	if err := pdfCtx.EnsurePageCount(); err != nil {
		return domain.Viewport{}, newClientError(fmt.Errorf("fail to count the pages: %w", err))
	}
	if page < 1 || page > pdfCtx.PageCount {
		return domain.Viewport{}, newClientError(fmt.Errorf("invalid page, the document has %d pages", pdfCtx.PageCount))
	}

	dims, err := pdfCtx.PageDims()
	if err != nil {
		return domain.Viewport{}, fmt.Errorf("fail to read the page dimensions: %w", err)
	}
	if len(dims) < page {
		return domain.Viewport{}, fmt.Errorf("missing dimensions for page %d", page)
	}

	scale := 1.0
	if containerWidth > 0 {
		scale = float64(containerWidth) / ReferenceWidth
	}
	dim := dims[page-1]
	return domain.Viewport{
		Page:   page,
		Pages:  pdfCtx.PageCount,
		Width:  dim.Width * scale,
		Height: dim.Height * scale,
		Scale:  scale,
	}, nil
}

// Preview renders a page as PNG. Pages start at 1.
func (d *Document) Preview(
	ctx context.Context, payload []byte, page int, width int, scale float32, output io.Writer,
) (err error) {
	span, ctx := startSpan(ctx, "Document.Preview")
	defer func() { span.Finish(ddTracer.WithError(err)) }()

	// lazypdf pages are zero based.
	page--

	if page < 0 {
		return newClientError(errors.New("invalid page"))
	}

	if width < 0 {
		return newClientError(errors.New("invalid width"))
	} else if width > maxPreviewWidth {
		return newClientError(fmt.Errorf("invalid width, can't be bigger than %d", maxPreviewWidth))
	}

	if scale < 0 {
		return newClientError(errors.New("invalid scale"))
	} else if scale > maxPreviewScale {
		return newClientError(fmt.Errorf("invalid scale, can't be bigger than %d", maxPreviewScale))
	}

	if err := d.render(ctx, uint16(page), uint16(width), scale, bytes.NewReader(payload), output); err != nil {
		return fmt.Errorf("fail to extract the PNG from the PDF: %w", err)
	}
	return nil
}

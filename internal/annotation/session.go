package annotation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/nitro/lazytemplate/internal/domain"
)

// Store is the template persistence collaborator.
type Store interface {
	Create(ctx context.Context, template domain.Template) error
}

// Session is one document-editing session: the document being annotated and its model. The saved
// entries are cleared only after the store confirmed a save.
type Session struct {
	Logger zerolog.Logger
	Store  Store

	document string
	model    *Model
	saving   atomic.Bool
}

// Init the session internal state.
func (s *Session) Init() error {
	if s.Store == nil {
		return errors.New("internal/annotation/Session.Store can't be nil")
	}
	s.model = New()
	return nil
}

// Open starts annotating a new document with an empty model.
func (s *Session) Open(document string) {
	s.document = document
	s.model.Reset()
	s.Logger.Debug().Str("document", document).Msg("Document opened")
}

// Document being annotated.
func (s *Session) Document() string {
	return s.document
}

// Model of the document being annotated.
func (s *Session) Model() *Model {
	return s.model
}

// Save submits the full annotation set. A failed save leaves the model untouched so the same set
// can be resubmitted.
func (s *Session) Save(ctx context.Context) (domain.Template, error) {
	if !s.saving.CompareAndSwap(false, true) {
		return domain.Template{}, reject(ErrSaveInProgress, errors.New("a save is already in progress"))
	}
	defer s.saving.Store(false)

	template, err := s.model.Serialize(s.document)
	if err != nil {
		return domain.Template{}, err
	}
	submitted := s.model.Annotations()

	err = s.Store.Create(ctx, template)
	if err != nil {
		s.Logger.Warn().Err(err).Str("document", s.document).Int("annotations", len(template.Annotations)).
			Msg("Template save failed, annotations kept for retry")
		return domain.Template{}, reject(ErrPersistence, fmt.Errorf("fail to save the template: %w", err))
	}

	// Entries added while the store was busy were not part of the template and stay in the model.
	s.model.Discard(submitted)
	s.Logger.Info().Str("document", s.document).Int("annotations", len(template.Annotations)).Msg("Template saved")
	return template, nil
}

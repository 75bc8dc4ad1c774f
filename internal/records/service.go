package records

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/starford/cardsync/internal/apperr"
	"github.com/starford/cardsync/internal/cardid"
)

// OptionInput carries the editable parts of an option.
type OptionInput struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// OptionPatch changes some parts of one option; nil leaves a part as is.
type OptionPatch struct {
	Name  *string `json:"name,omitempty"`
	Value *string `json:"value,omitempty"`
	Unit  *string `json:"unit,omitempty"`
}

// CardPatch is a local edit of a card.
type CardPatch struct {
	Title         *string                `json:"title,omitempty"`
	Options       map[string]OptionPatch `json:"options,omitempty"`
	SelectOptions *[]string              `json:"selectOptions,omitempty"`
}

// Service is the operator editing surface over a mode's cards. In target
// modes a field that was replicated without authorization is read-only
// until the next push.
type Service struct {
	mu        sync.Locker
	repo      *Repository
	modes     *Modes
	validator Validator
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWriteLock makes the service serialize its read-modify-write cycles on
// l. Every component that rewrites cards of the same store must share it,
// otherwise an edit can write back a card loaded before a sync replaced it.
func WithWriteLock(l sync.Locker) ServiceOption {
	return func(s *Service) { s.mu = l }
}

// NewService creates a record service.
func NewService(repo *Repository, modes *Modes, validator Validator, opts ...ServiceOption) *Service {
	if validator == nil {
		validator = ShapeValidator{}
	}
	s := &Service{mu: &sync.Mutex{}, repo: repo, modes: modes, validator: validator}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Modes exposes the mode registry.
func (s *Service) Modes() *Modes { return s.modes }

func (s *Service) requireMode(mode string) error {
	ok, err := s.modes.Exists(mode)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("records: mode %s: %w", mode, apperr.ErrUnknownMode)
	}
	return nil
}

// ListCards returns every card of mode in display order.
func (s *Service) ListCards(_ context.Context, mode string) ([]*Card, error) {
	if err := s.requireMode(mode); err != nil {
		return nil, err
	}
	order, err := s.repo.Order(mode)
	if err != nil {
		return nil, err
	}
	out := make([]*Card, 0, len(order))
	for _, id := range order {
		c, ok, err := s.repo.GetCard(mode, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetCard returns one card.
func (s *Service) GetCard(_ context.Context, mode, id string) (*Card, error) {
	if err := s.requireMode(mode); err != nil {
		return nil, err
	}
	c, ok, err := s.repo.GetCard(mode, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("records: card %s/%s: %w", mode, id, apperr.ErrNotFound)
	}
	return c, nil
}

// CreateCard allocates the next card id in mode and stores a new card.
func (s *Service) CreateCard(_ context.Context, mode, title string, selectOptions []string) (*Card, error) {
	if err := s.requireMode(mode); err != nil {
		return nil, err
	}
	t, err := NormalizeValue(title)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.repo.ListIDs(mode)
	if err != nil {
		return nil, err
	}
	id, err := cardid.NextCardID(ids)
	if err != nil {
		return nil, err
	}
	c := NewCard(id)
	c.Title = t
	if selectOptions != nil {
		c.SelectOptions = slices.Clone(selectOptions)
	}
	if err := s.write(mode, c); err != nil {
		return nil, err
	}
	order, err := s.repo.Order(mode)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetOrder(mode, order); err != nil {
		return nil, err
	}
	return c, nil
}

// AddOption appends an option with the next free option id.
func (s *Service) AddOption(_ context.Context, mode, id string, in OptionInput) (*Card, error) {
	if err := s.requireMode(mode); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(mode, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkEditable(mode, c, FieldOptions); err != nil {
		return nil, err
	}
	optID, err := cardid.NextOptionID(c.OptionIDs())
	if err != nil {
		return nil, err
	}
	opt := Option{ID: optID}
	if opt.Name, err = NormalizeValue(in.Name); err != nil {
		return nil, err
	}
	if opt.Value, err = NormalizeValue(in.Value); err != nil {
		return nil, err
	}
	if opt.Unit, err = NormalizeValue(in.Unit); err != nil {
		return nil, err
	}
	c.Options = append(c.Options, opt)
	if err := s.write(mode, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateCard applies a local edit. Every touched field must be editable in
// mode; otherwise nothing is written.
func (s *Service) UpdateCard(_ context.Context, mode, id string, patch CardPatch) (*Card, error) {
	if err := s.requireMode(mode); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(mode, id)
	if err != nil {
		return nil, err
	}

	if patch.Title != nil {
		if err := s.checkEditable(mode, c, FieldTitle); err != nil {
			return nil, err
		}
		if c.Title, err = NormalizeValue(*patch.Title); err != nil {
			return nil, err
		}
	}
	if patch.SelectOptions != nil {
		if err := s.checkEditable(mode, c, FieldSelectOptions); err != nil {
			return nil, err
		}
		c.SelectOptions = slices.Clone(*patch.SelectOptions)
	}
	for optID, op := range patch.Options {
		idx := slices.IndexFunc(c.Options, func(o Option) bool { return o.ID == optID })
		if idx < 0 {
			return nil, fmt.Errorf("records: option %s%s: %w", id, optID, apperr.ErrNotFound)
		}
		o := &c.Options[idx]
		if err := s.patchPart(mode, c, FieldOptionName, op.Name, &o.Name); err != nil {
			return nil, err
		}
		if err := s.patchPart(mode, c, FieldOptionValue, op.Value, &o.Value); err != nil {
			return nil, err
		}
		if err := s.patchPart(mode, c, FieldOptionUnit, op.Unit, &o.Unit); err != nil {
			return nil, err
		}
	}

	if err := s.write(mode, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCard removes a card and drops it from the display order.
func (s *Service) DeleteCard(_ context.Context, mode, id string) error {
	if err := s.requireMode(mode); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.load(mode, id); err != nil {
		return err
	}
	if err := s.repo.Delete(mode, id); err != nil {
		return err
	}
	order, err := s.repo.Order(mode)
	if err != nil {
		return err
	}
	return s.repo.SetOrder(mode, order)
}

func (s *Service) patchPart(mode string, c *Card, field string, in *string, dst *Value) error {
	if in == nil {
		return nil
	}
	if err := s.checkEditable(mode, c, field); err != nil {
		return err
	}
	v, err := NormalizeValue(*in)
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func (s *Service) load(mode, id string) (*Card, error) {
	if !cardid.IsValidCardID(id) {
		return nil, fmt.Errorf("records: card %q: %w", id, apperr.ErrInvalidID)
	}
	c, ok, err := s.repo.GetCard(mode, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("records: card %s/%s: %w", mode, id, apperr.ErrNotFound)
	}
	return c, nil
}

func (s *Service) checkEditable(mode string, c *Card, field string) error {
	if s.modes.IsSource(mode) || c.Editable(field) {
		return nil
	}
	return fmt.Errorf("records: %s of %s/%s is synced and not authorized for local edits: %w",
		field, mode, c.ID, apperr.ErrForbidden)
}

func (s *Service) write(mode string, c *Card) error {
	doc, err := c.Document()
	if err != nil {
		return err
	}
	res := s.validator.Validate(doc)
	if !res.Pass {
		return fmt.Errorf("records: card %s/%s: %w: %v", mode, c.ID, apperr.ErrValidation, res.Errors)
	}
	return s.repo.Put(mode, c.ID, res.Normalized)
}

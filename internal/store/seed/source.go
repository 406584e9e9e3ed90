// Package seed serves desk records from JSON fixtures, either the embedded
// demo book or a file on disk.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

//go:embed fixtures.json
var embedded []byte

// Fixtures is the on-disk layout of a seed file.
type Fixtures struct {
	Active  []domain.Position       `json:"active"`
	Pending []domain.PendingOrder   `json:"pending"`
	Closed  []domain.ClosedPosition `json:"closed"`
}

// Source implements domain.RecordSource over a parsed fixture set. Each Load
// call returns fresh copies, so sessions never share records.
type Source struct {
	fx Fixtures
}

// Embedded returns a Source over the built-in demo book.
func Embedded() (*Source, error) {
	return Parse(embedded)
}

// Open reads fixtures from path. An empty path selects the embedded book.
func Open(path string) (*Source, error) {
	if path == "" {
		return Embedded()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a fixture document.
func Parse(data []byte) (*Source, error) {
	var fx Fixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	for i := range fx.Closed {
		c := &fx.Closed[i]
		if c.Duration == 0 && !c.OpenTime.IsZero() && c.CloseTime.After(c.OpenTime) {
			c.Duration = c.CloseTime.Sub(c.OpenTime)
		}
		if c.Status == "" {
			c.Status = domain.ClosedStatusCompleted
		}
	}
	return &Source{fx: fx}, nil
}

func (fx Fixtures) validate() error {
	seen := make(map[string]bool)
	for _, p := range fx.Active {
		if p.ID == "" || seen[p.ID] {
			return fmt.Errorf("seed: active position %q: missing or duplicate id: %w", p.ID, domain.ErrInvalidField)
		}
		seen[p.ID] = true
		if p.Quantity <= 0 || p.MarginUsed <= 0 || p.Leverage <= 0 {
			return fmt.Errorf("seed: active position %s: quantity, margin and leverage must be positive: %w", p.ID, domain.ErrInvalidField)
		}
		if !p.Direction.Valid() {
			return fmt.Errorf("seed: active position %s: direction %q: %w", p.ID, p.Direction, domain.ErrInvalidField)
		}
	}
	for _, o := range fx.Pending {
		if o.ID == "" || seen[o.ID] {
			return fmt.Errorf("seed: pending order %q: missing or duplicate id: %w", o.ID, domain.ErrInvalidField)
		}
		seen[o.ID] = true
	}
	for _, c := range fx.Closed {
		if c.ID == "" || seen[c.ID] {
			return fmt.Errorf("seed: closed position %q: missing or duplicate id: %w", c.ID, domain.ErrInvalidField)
		}
		seen[c.ID] = true
	}
	return nil
}

// Fixtures returns a copy of the parsed fixture set.
func (s *Source) Fixtures() Fixtures {
	active, _ := s.LoadActive(context.Background())
	pending, _ := s.LoadPending(context.Background())
	closed, _ := s.LoadClosed(context.Background())
	return Fixtures{Active: active, Pending: pending, Closed: closed}
}

// LoadActive returns the active positions.
func (s *Source) LoadActive(context.Context) ([]domain.Position, error) {
	out := make([]domain.Position, len(s.fx.Active))
	for i, p := range s.fx.Active {
		out[i] = p.Clone()
	}
	return out, nil
}

// LoadPending returns the pending orders.
func (s *Source) LoadPending(context.Context) ([]domain.PendingOrder, error) {
	out := make([]domain.PendingOrder, len(s.fx.Pending))
	for i, o := range s.fx.Pending {
		out[i] = o.Clone()
	}
	return out, nil
}

// LoadClosed returns the closed positions.
func (s *Source) LoadClosed(context.Context) ([]domain.ClosedPosition, error) {
	out := make([]domain.ClosedPosition, len(s.fx.Closed))
	for i, c := range s.fx.Closed {
		out[i] = c.Clone()
	}
	return out, nil
}

var _ domain.RecordSource = (*Source)(nil)

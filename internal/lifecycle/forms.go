package lifecycle

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradedesk/internal/domain"
)

// Editable field names accepted by UpdateEditField.
const (
	FieldTakeProfit = "takeProfit"
	FieldStopLoss   = "stopLoss"
	FieldQuantity   = "quantity"
	FieldRiskLevel  = "riskLevel"
	FieldStrategy   = "strategy"
	FieldTags       = "tags"
)

// Close form field names accepted by UpdateCloseField.
const (
	FieldCloseType     = "closeType"
	FieldClosePrice    = "closePrice"
	FieldCloseQuantity = "closeQuantity"
	FieldCloseReason   = "closeReason"
	FieldCloseComment  = "comment"
)

// FieldValue is one entry of a batch form update.
type FieldValue struct {
	Field string
	Value any
}

// EditForm is the draft copy of a position's mutable fields.
type EditForm struct {
	TakeProfit float64          `json:"takeProfit"`
	StopLoss   float64          `json:"stopLoss"`
	Quantity   float64          `json:"quantity"`
	RiskLevel  domain.RiskLevel `json:"riskLevel"`
	Strategy   string           `json:"strategy"`
	Tags       []string         `json:"tags"`

	// Invalid holds a message per field whose last input was rejected or
	// coerced.
	Invalid map[string]string `json:"invalid,omitempty"`

	// dirty names the fields the operator has touched since the draft was
	// seeded. Only those are merged on commit.
	dirty map[string]bool
}

func seedEditForm(p domain.Position) *EditForm {
	tags := make([]string, len(p.Tags))
	copy(tags, p.Tags)
	return &EditForm{
		TakeProfit: p.TakeProfit,
		StopLoss:   p.StopLoss,
		Quantity:   p.Quantity,
		RiskLevel:  p.RiskLevel,
		Strategy:   p.Strategy,
		Tags:       tags,
	}
}

func (f *EditForm) clone() *EditForm {
	if f == nil {
		return nil
	}
	out := *f
	out.Tags = append([]string(nil), f.Tags...)
	if f.Invalid != nil {
		out.Invalid = make(map[string]string, len(f.Invalid))
		for k, v := range f.Invalid {
			out.Invalid[k] = v
		}
	}
	if f.dirty != nil {
		out.dirty = make(map[string]bool, len(f.dirty))
		for k := range f.dirty {
			out.dirty[k] = true
		}
	}
	return &out
}

// Valid reports whether no field is flagged.
func (f *EditForm) Valid() bool {
	return len(f.Invalid) == 0
}

// mergeInto overwrites the fields of p the operator changed in the draft.
// Untouched fields keep the live value of p.
func (f *EditForm) mergeInto(p domain.Position) domain.Position {
	out := p.Clone()
	if f.dirty[FieldTakeProfit] {
		out.TakeProfit = f.TakeProfit
	}
	if f.dirty[FieldStopLoss] {
		out.StopLoss = f.StopLoss
	}
	if f.dirty[FieldQuantity] {
		out.Quantity = f.Quantity
	}
	if f.dirty[FieldRiskLevel] {
		out.RiskLevel = f.RiskLevel
	}
	if f.dirty[FieldStrategy] {
		out.Strategy = f.Strategy
	}
	if f.dirty[FieldTags] {
		out.Tags = append([]string(nil), f.Tags...)
	}
	return out
}

// rebase refreshes the untouched fields from the live record p. The
// quantity is always reseeded: a settled close changes it underneath any
// pending edit.
func (f *EditForm) rebase(p domain.Position) {
	delete(f.dirty, FieldQuantity)
	f.clear(FieldQuantity)
	seed := seedEditForm(p)
	if !f.dirty[FieldTakeProfit] {
		f.TakeProfit = seed.TakeProfit
	}
	if !f.dirty[FieldStopLoss] {
		f.StopLoss = seed.StopLoss
	}
	f.Quantity = seed.Quantity
	if !f.dirty[FieldRiskLevel] {
		f.RiskLevel = seed.RiskLevel
	}
	if !f.dirty[FieldStrategy] {
		f.Strategy = seed.Strategy
	}
	if !f.dirty[FieldTags] {
		f.Tags = seed.Tags
	}
}

func (f *EditForm) touch(field string) {
	if f.dirty == nil {
		f.dirty = make(map[string]bool)
	}
	f.dirty[field] = true
}

func (f *EditForm) flag(field, msg string) {
	if f.Invalid == nil {
		f.Invalid = make(map[string]string)
	}
	f.Invalid[field] = msg
}

func (f *EditForm) clear(field string) {
	delete(f.Invalid, field)
}

// set applies one field update. Numeric fields never hold a non-numeric
// value: bad input stores 0 and flags the field.
func (f *EditForm) set(field string, value any) error {
	switch field {
	case FieldTakeProfit, FieldStopLoss, FieldQuantity:
		n, ok := toFloat(value)
		if !ok {
			n = 0
			f.flag(field, "must be a number")
		} else if n < 0 {
			f.flag(field, "must not be negative")
		} else if field == FieldQuantity && n == 0 {
			f.flag(field, "must be greater than 0")
		} else {
			f.clear(field)
		}
		switch field {
		case FieldTakeProfit:
			f.TakeProfit = n
		case FieldStopLoss:
			f.StopLoss = n
		default:
			f.Quantity = n
		}
	case FieldRiskLevel:
		s, _ := value.(string)
		r, ok := domain.ParseRiskLevel(s)
		if !ok {
			f.flag(field, "must be one of Low, Medium, High")
			return nil
		}
		f.RiskLevel = r
		f.clear(field)
	case FieldStrategy:
		s, ok := value.(string)
		if !ok {
			f.flag(field, "must be text")
			return nil
		}
		f.Strategy = strings.TrimSpace(s)
		f.clear(field)
	case FieldTags:
		tags, ok := toTags(value)
		if !ok {
			f.flag(field, "must be a list or comma-separated text")
			return nil
		}
		f.Tags = tags
		f.clear(field)
	default:
		return fmt.Errorf("lifecycle: edit field %q: %w", field, domain.ErrUnknownField)
	}
	f.touch(field)
	return nil
}

// CloseForm holds the operator's close request while the close dialog is
// open.
type CloseForm struct {
	CloseType     domain.CloseType   `json:"closeType"`
	ClosePrice    float64            `json:"closePrice"`
	CloseQuantity float64            `json:"closeQuantity"`
	Reason        domain.CloseReason `json:"closeReason"`
	Comment       string             `json:"comment"`
	// Partial is set whenever CloseQuantity is below the full quantity.
	Partial bool `json:"partial"`
}

func seedCloseForm(p domain.Position) *CloseForm {
	return &CloseForm{
		CloseType:     domain.CloseMarket,
		ClosePrice:    p.CurrentPrice,
		CloseQuantity: p.Quantity,
	}
}

// ValidationError reports rejected input per field.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}
	return "lifecycle: invalid input: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return domain.ErrInvalidField }

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	}
	return 0, false
}

func toTags(v any) ([]string, bool) {
	var raw []string
	switch t := v.(type) {
	case []string:
		raw = t
	case []any:
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			raw = append(raw, s)
		}
	case string:
		raw = strings.Split(t, ",")
	case nil:
	default:
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

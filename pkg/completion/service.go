package completion

import (
	"context"
	"errors"

	"github.com/configdesk/configdesk/pkg/position"
	"github.com/configdesk/configdesk/pkg/schema"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

// Result is the outcome of a completion request against raw text.
type Result struct {
	// Context is the resolved cursor context.
	Context position.CursorContext `json:"context"`

	// Items are the ranked suggestions. Never nil.
	Items []Item `json:"items"`

	// Located is false when the cursor's path is unknown to the schema.
	// Items is then empty.
	Located bool `json:"located"`
}

// Service resolves a cursor in text and generates suggestions for it,
// recording metrics and a trace span per request.
type Service struct {
	gen *Generator
	tel *telemetry.Telemetry
}

// NewService returns a Service over root. A nil tel records nothing.
func NewService(root *schema.Node, tel *telemetry.Telemetry) *Service {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	return &Service{gen: NewGenerator(root), tel: tel}
}

// Generator returns the underlying generator.
func (s *Service) Generator() *Generator {
	return s.gen
}

// CompleteAt returns suggestions for the cursor at line and column of text.
// An unknown path is not an error: it returns an empty, unlocated Result.
func (s *Service) CompleteAt(ctx context.Context, text string, line, column int) (*Result, error) {
	timer := telemetry.NewTimer()
	_, span := s.tel.Tracer.StartCompletionSpan(ctx, line, column)
	defer span.End()

	cc := position.Resolve(text, line, column)
	kind := cc.TokenKind.String()
	span.SetAttributes(
		telemetry.AttrTokenKind.String(kind),
		telemetry.AttrPath.String(cc.Path.String()),
	)

	res := &Result{Context: cc, Items: []Item{}, Located: true}
	items, err := s.gen.Complete(cc)
	switch {
	case errors.Is(err, schema.ErrNotFound):
		res.Located = false
		s.tel.Metrics.RecordCompletion(kind, "not_found", 0, timer.Duration())
		s.tel.Logger.Zerolog().Debug().
			Str("path", cc.Path.String()).
			Str("token_kind", kind).
			Msg("completion path not in schema")
		telemetry.RecordSuccess(span)
		return res, nil
	case err != nil:
		telemetry.RecordError(span, err)
		return nil, err
	}

	res.Items = items
	outcome := "ok"
	if len(items) == 0 {
		outcome = "empty"
	}
	s.tel.Metrics.RecordCompletion(kind, outcome, len(items), timer.Duration())
	span.SetAttributes(telemetry.AttrItems.Int(len(items)))
	telemetry.RecordSuccess(span)
	return res, nil
}

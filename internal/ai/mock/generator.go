package mock

import (
	"context"
	"encoding/json"

	"github.com/sibylline/sibyl/internal/ai"
)

// Generator satisfies ai.Generator for testing.
type Generator struct {
	Name_        string
	Models_      []string
	GenerateFunc func(ctx context.Context, marketId string, model string) (*ai.Result, error)
}

func (g *Generator) Name() string { return g.Name_ }

func (g *Generator) Models() []string { return g.Models_ }

func (g *Generator) Generate(ctx context.Context, marketId string, model string) (*ai.Result, error) {
	if g.GenerateFunc != nil {
		return g.GenerateFunc(ctx, marketId, model)
	}
	return DefaultResult(), nil
}

// DefaultResult returns a plausible two-outcome prediction.
func DefaultResult() *ai.Result {
	return &ai.Result{
		Outcomes:      []string{"yes", "no"},
		Probabilities: []float64{0.6, 0.4},
		Raw:           json.RawMessage(`{"outcomes":["yes","no"],"probabilities":[0.6,0.4],"reasoning":"mock"}`),
	}
}

// NewGenerator returns a Generator answering for the given models with DefaultResult.
func NewGenerator(models ...string) *Generator {
	return &Generator{
		Name_:   "mock",
		Models_: models,
	}
}

// NewFailingGenerator returns a Generator that always returns the given error.
func NewFailingGenerator(err error, models ...string) *Generator {
	return &Generator{
		Name_:   "mock-failing",
		Models_: models,
		GenerateFunc: func(_ context.Context, _ string, _ string) (*ai.Result, error) {
			return nil, err
		},
	}
}

// Compile-time check that Generator implements ai.Generator.
var _ ai.Generator = (*Generator)(nil)

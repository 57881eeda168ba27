package report

import (
	"context"

	"github.com/rendis/browseract/internal/expressions"
)

var queryEngine = expressions.NewGoJQEngine()

// Query evaluates a jq expression over the JSON report at path and returns
// every output.
func Query(ctx context.Context, path, expr string) ([]any, error) {
	rep, err := ReadJSON(path)
	if err != nil {
		return nil, err
	}
	return queryEngine.EvaluateValue(ctx, expr, rep)
}

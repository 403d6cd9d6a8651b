package catalog

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/harun/hive/pkg/agent"
)

//go:embed demo.yaml
var demoYAML []byte

type refundRequest struct {
	ItemID string `json:"item_id" jsonschema_description:"Item to refund, of the form item_..."`
	Reason string `json:"reason,omitempty" jsonschema_description:"Why the user wants a refund"`
}

func processRefund(ctx context.Context, in refundRequest, cv agent.ContextVariables) (agent.Output, error) {
	if in.Reason == "" {
		in.Reason = "NOT SPECIFIED"
	}
	return &agent.Result{
		Value:            fmt.Sprintf("Refund for %s processed. Reason: %s", in.ItemID, in.Reason),
		ContextVariables: agent.ContextVariables{"last_refund": in.ItemID},
	}, nil
}

// DemoTools returns the tools used by the demo catalog
func DemoTools() []agent.Function {
	refund, err := agent.NewTypedFunction(
		"process_refund",
		"Refund an item. Make sure you have the item_id of the form item_... Ask for user confirmation before processing the refund.",
		processRefund,
	)
	if err != nil {
		panic(err)
	}

	return []agent.Function{
		refund,
		agent.NewFunction(
			"apply_discount",
			"Apply a discount to the user's cart.",
			func(ctx context.Context, args agent.Arguments) (agent.Output, error) {
				return agent.TextOutput("Applied discount of 11%"), nil
			},
		),
	}
}

// NewDemoRegistry returns a registry with the built-in and demo tools
func NewDemoRegistry() *Registry {
	r := NewRegistry()
	for _, fn := range DemoTools() {
		_ = r.Register(fn)
	}
	return r
}

// Demo builds the built-in support catalog. The demo tools are added to
// opts.Registry when it does not already have them.
func Demo(opts Options) (*Catalog, error) {
	def, err := Parse(demoYAML)
	if err != nil {
		return nil, err
	}
	if opts.Registry == nil {
		opts.Registry = NewDemoRegistry()
	} else {
		for _, fn := range DemoTools() {
			if _, err := opts.Registry.Get(fn.Name); err != nil {
				_ = opts.Registry.Register(fn)
			}
		}
	}
	return Build(def, opts)
}

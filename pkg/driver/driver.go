// Package driver implements component C7: the pipeline that turns one
// already-parsed model (built onto an ast.Builder by a pkg/models parser)
// into Lua source, wiring together the context, analyser, optimiser and
// emitter stages in the order the original's Converter::convert runs them.
package driver

import (
	"fmt"

	"github.com/pmmlc/pmmlc/internal/cerr"
	"github.com/pmmlc/pmmlc/pkg/analyser"
	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/emitter"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/optimiser"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

// BuildFunc constructs one model's expression tree onto b, leaving exactly
// one node (the value to return) on the stack. Model parsers in pkg/models
// satisfy this by value — e.g. func(b *ast.Builder) error { return
// models.BuildRegressionTable(b, table) }.
type BuildFunc func(b *ast.Builder) error

// Options configures a single Compile call.
type Options struct {
	// FunctionName is the emitted Lua function's name, e.g. "score".
	FunctionName string
	// ArgumentFields are, in order, the input fields bound as the emitted
	// function's parameters.
	ArgumentFields []fieldtype.ID
	// Lowercase makes the Writer lower-case string literals in the emitted
	// source; keywords and identifiers are written as they are either way.
	Lowercase bool
}

// Result is the outcome of one Compile call: either Source is populated and
// Errors is empty, or compilation failed and Errors explains why.
type Result struct {
	Source string
	Errors []cerr.Error
}

// Compile runs the full pipeline: builds the tree via build, analyses it,
// folds constants and inlines temporaries, assigns overflow slots, and
// emits the final Lua function text.
func Compile(ctx *pmmlctx.Context, opts Options, build BuildFunc) Result {
	collector := &cerr.Collector{}

	builder := ast.NewBuilder(ctx, collector)
	if err := build(builder); err != nil {
		collector.Report(cerr.New(cerr.MalformedInput, "P0-MODEL", err.Error(), 0))
		return Result{Errors: collector.Errors}
	}
	if builder.StackSize() != 1 {
		collector.Report(cerr.New(cerr.InternalInvariant, "P9-STACK", fmt.Sprintf("build left %d nodes on the stack, expected 1", builder.StackSize()), 0))
		return Result{Errors: collector.Errors}
	}
	body := builder.PopNode()
	fn := wrapReturn(body)

	analysisCtx := analyser.NewContext(ctx.Registry)
	optimiser.FoldConstants(analysisCtx, &fn)

	usage := optimiser.CollectVariableUsage(ctx.Registry, &fn)
	optimiser.InlineSingleUseTemporaries(usage, &fn)

	aliases := optimiser.ComputeAliases(usage, &fn)

	live := map[fieldtype.ID]struct{}{}
	unmovable := 0
	for id := range usage.ReadCount {
		live[id] = struct{}{}
	}
	for id := range usage.WriteCount {
		live[id] = struct{}{}
	}
	for id := range live {
		if _, aliased := aliases[id]; aliased {
			continue // this field now shares another's slot, not a distinct local
		}
		if usage.Origin[id] != fieldtype.OriginTemporary && usage.Origin[id] != fieldtype.OriginTransformedValue {
			unmovable++
		}
	}
	var liveFields []fieldtype.ID
	for id := range live {
		if _, aliased := aliases[id]; !aliased {
			liveFields = append(liveFields, id)
		}
	}
	budget := optimiser.MaxLocals - 2 - unmovable
	overflow := optimiser.AssignOverflowSlots(usage, liveFields, budget)

	if collector.HasErrors() {
		return Result{Errors: collector.Errors}
	}

	w := emitter.NewWriter(opts.Lowercase, optimiser.MaxLocals)
	w.SetAliasedVariables(aliases)
	w.SetOverflowedVariables(overflow)

	w.NamedFunction(opts.FunctionName)
	for i, field := range opts.ArgumentFields {
		if i > 0 {
			w.Comma()
		}
		desc := ctx.Registry.Get(field)
		w.Raw(w.VariableName(field, desc.Name))
	}
	w.FinishedArguments()

	if len(overflow) > 0 {
		w.Keyword("local")
		w.Raw(" overflow = {}")
		w.Endline()
	}

	conv := emitter.NewConverter(ctx, analysisCtx, w)
	conv.EmitStatement(&fn)

	w.EndBlock(true)

	source := BuildPrologue(&fn) + w.String()
	return Result{Source: source}
}

// wrapReturn turns body, the single value BuildFunc left on the stack, into
// the statement tree EmitStatement expects. When body is a Block (a model
// that declared locals before its final value, e.g. a regression table's
// per-term temporaries), its own last child already holds that final value;
// matching the original, whose ReturnStatement emits "return expr" as one
// statement alongside the block's others rather than as a wrapper around
// the whole block, that last child becomes the block's own return
// statement in place. Any other body shape is a bare expression, wrapped
// directly.
func wrapReturn(body ast.Node) ast.Node {
	if body.Kind() == catalog.Block && len(body.Children) > 0 {
		last := len(body.Children) - 1
		body.Children[last] = ast.Node{Children: []ast.Node{body.Children[last]}, Def: &catalog.ReturnDef, Type: fieldtype.Void, Field: fieldtype.InvalidID}
		return body
	}
	return ast.Node{Children: []ast.Node{body}, Def: &catalog.ReturnDef, Type: fieldtype.Void, Field: fieldtype.InvalidID}
}

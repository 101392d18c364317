package driver

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/pmmlc/pmmlc/pkg/ast"
	"github.com/pmmlc/pmmlc/pkg/catalog"
	"github.com/pmmlc/pmmlc/pkg/fieldtype"
	"github.com/pmmlc/pmmlc/pkg/pmmlctx"
)

// setupNumberInputs declares each of names as an active, possibly-missing
// Number input field, returning the context and the fields' IDs in order.
func setupNumberInputs(t *testing.T, names ...string) (*pmmlctx.Context, []fieldtype.ID) {
	t.Helper()
	ctx := pmmlctx.New()
	fields := make([]fieldtype.Description, len(names))
	active := map[string]bool{}
	for i, n := range names {
		fields[i] = fieldtype.Description{Type: fieldtype.Number}
		active[n] = true
	}
	ctx.SetupInputs(fields, names, active, map[string]bool{})

	ids := make([]fieldtype.ID, len(names))
	for i, n := range names {
		ids[i] = ctx.GetFieldDescription(n)
	}
	return ctx, ids
}

// runLua executes source, calls its global fnName with args, and returns
// the single value that call produced.
func runLua(t *testing.T, source, fnName string, args ...lua.LValue) lua.LValue {
	t.Helper()
	L := lua.NewState()
	defer L.Close()
	require.NoError(t, L.DoString(source), "compiled source must be valid Lua:\n%s", source)

	fn := L.GetGlobal(fnName)
	require.NoError(t, L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, args...))
	ret := L.Get(-1)
	L.Pop(1)
	return ret
}

func requireMissing(t *testing.T, v lua.LValue) {
	t.Helper()
	require.Equal(t, lua.LNil, v, "expected a missing (nil) result, got %s", v.String())
}

func requireDefinitelyFalse(t *testing.T, v lua.LValue) {
	t.Helper()
	require.Equal(t, lua.LFalse, v, "expected a definite false result, got %s", v.String())
}

// requireTruthy only checks Lua's own truthiness (not nil, not false):
// once an and-chain's every operand is known true, the restore term the
// emitter appends to guard against a falsely-scaffolded missing operand
// may itself be the last field's own value rather than a literal boolean,
// so the contract a caller can rely on is truthiness, not type purity.
func requireTruthy(t *testing.T, v lua.LValue) {
	t.Helper()
	require.NotEqual(t, lua.LNil, v)
	require.NotEqual(t, lua.LFalse, v)
}

func TestDriverCompilesAGuardedComparison(t *testing.T) {
	ctx, ids := setupNumberInputs(t, "x")
	lessThan, ok := catalog.FindBuiltin("lessThan")
	require.True(t, ok)

	build := func(b *ast.Builder) error {
		b.Field(ids[0])
		b.ConstantFloat(10)
		b.Function(lessThan, 2)
		return nil
	}
	res := Compile(ctx, Options{FunctionName: "score", ArgumentFields: ids, Lowercase: true}, build)
	require.Empty(t, res.Errors)

	require.Equal(t, lua.LTrue, runLua(t, res.Source, "score", lua.LNumber(5)))
	require.Equal(t, lua.LFalse, runLua(t, res.Source, "score", lua.LNumber(15)))
	requireMissing(t, runLua(t, res.Source, "score", lua.LNil))
}

func TestDriverCompilesATernaryWithADefaultFallback(t *testing.T) {
	ctx, ids := setupNumberInputs(t, "x", "y")
	lessThan, ok := catalog.FindBuiltin("lessThan")
	require.True(t, ok)
	ternary, ok := catalog.FindBuiltin("if")
	require.True(t, ok)

	// classify(x, y) = if x < 10 then 1 else (y default 0)
	build := func(b *ast.Builder) error {
		b.Field(ids[0])
		b.ConstantFloat(10)
		b.Function(lessThan, 2)
		b.ConstantFloat(1)
		b.Field(ids[1])
		b.DefaultValue("0")
		b.Function(ternary, 3)
		return nil
	}
	res := Compile(ctx, Options{FunctionName: "classify", ArgumentFields: ids, Lowercase: true}, build)
	require.Empty(t, res.Errors)

	require.Equal(t, lua.LNumber(1), runLua(t, res.Source, "classify", lua.LNumber(5), lua.LNil))
	require.Equal(t, lua.LNumber(7), runLua(t, res.Source, "classify", lua.LNumber(15), lua.LNumber(7)))
	require.Equal(t, lua.LNumber(0), runLua(t, res.Source, "classify", lua.LNumber(15), lua.LNil))
	requireMissing(t, runLua(t, res.Source, "classify", lua.LNil, lua.LNumber(20)))
}

func TestDriverCompilesThreeValuedAnd(t *testing.T) {
	ctx, ids := setupNumberInputs(t, "x", "y")
	lessThan, ok := catalog.FindBuiltin("lessThan")
	require.True(t, ok)
	greaterThan, ok := catalog.FindBuiltin("greaterThan")
	require.True(t, ok)
	andDef, ok := catalog.FindBuiltin("and")
	require.True(t, ok)

	// bothTrue(x, y) = (x < 10) and (y > 5)
	build := func(b *ast.Builder) error {
		b.Field(ids[0])
		b.ConstantFloat(10)
		b.Function(lessThan, 2)
		b.Field(ids[1])
		b.ConstantFloat(5)
		b.Function(greaterThan, 2)
		b.Function(andDef, 2)
		return nil
	}
	res := Compile(ctx, Options{FunctionName: "bothTrue", ArgumentFields: ids, Lowercase: true}, build)
	require.Empty(t, res.Errors)

	requireTruthy(t, runLua(t, res.Source, "bothTrue", lua.LNumber(5), lua.LNumber(10)))          // true and true
	requireDefinitelyFalse(t, runLua(t, res.Source, "bothTrue", lua.LNumber(5), lua.LNumber(3)))  // true and false
	requireDefinitelyFalse(t, runLua(t, res.Source, "bothTrue", lua.LNumber(15), lua.LNumber(10))) // false and true
	requireMissing(t, runLua(t, res.Source, "bothTrue", lua.LNil, lua.LNumber(10)))               // missing and true
	requireDefinitelyFalse(t, runLua(t, res.Source, "bothTrue", lua.LNil, lua.LNumber(3)))        // missing and false: false dominates
	requireMissing(t, runLua(t, res.Source, "bothTrue", lua.LNumber(5), lua.LNil))                // true and missing
	requireDefinitelyFalse(t, runLua(t, res.Source, "bothTrue", lua.LNumber(15), lua.LNil))       // false and missing: false dominates
}

func TestDriverCompilesASurrogateOfTwoFieldRefs(t *testing.T) {
	ctx, ids := setupNumberInputs(t, "x", "y")

	// pick(x, y) = first non-missing of x, y
	build := func(b *ast.Builder) error {
		b.Field(ids[0])
		b.Field(ids[1])
		b.Function(&catalog.SurrogateFunction, 2)
		return nil
	}
	res := Compile(ctx, Options{FunctionName: "pick", ArgumentFields: ids, Lowercase: true}, build)
	require.Empty(t, res.Errors)

	require.Equal(t, lua.LNumber(5), runLua(t, res.Source, "pick", lua.LNumber(5), lua.LNumber(10)))
	require.Equal(t, lua.LNumber(10), runLua(t, res.Source, "pick", lua.LNil, lua.LNumber(10)))
	requireMissing(t, runLua(t, res.Source, "pick", lua.LNil, lua.LNil))
}

// Discretize is out of scope: no ast/models builder exists for it, so no
// round-trip scenario is written for it here.

func TestDriverSpillsLocalsPastMaxLocalsBudget(t *testing.T) {
	const nTemps = 300
	ctx := pmmlctx.New()
	ids := make([]fieldtype.ID, nTemps)
	for i := range ids {
		ids[i] = ctx.CreateVariable(fieldtype.Number, "t"+strconv.Itoa(i), fieldtype.OriginTemporary)
	}
	plus, ok := catalog.FindBuiltin("+")
	require.True(t, ok)

	// sumAll() declares 300 distinct temporaries, all still live by the
	// closing statement (each read twice there, so none is a single-use
	// inlining candidate and none's interval ends before the others
	// start), forcing the optimiser past MaxLocals and into the overflow
	// table.
	build := func(b *ast.Builder) error {
		for i, id := range ids {
			b.ConstantFloat(float64(i))
			b.Declare(id, ast.HasInitialValue)
		}

		sumOnce := func() {
			b.Field(ids[0])
			for _, id := range ids[1:] {
				b.Field(id)
				b.Function(plus, 2)
			}
		}
		sumOnce()
		sumOnce()
		b.Function(plus, 2)

		b.Block(nTemps + 1)
		return nil
	}
	res := Compile(ctx, Options{FunctionName: "sumAll", Lowercase: true}, build)
	require.Empty(t, res.Errors)
	require.Contains(t, res.Source, "overflow[", "300 live temporaries must exceed MaxLocals and spill into the overflow table")

	want := lua.LNumber(0)
	for i := 0; i < nTemps; i++ {
		want += lua.LNumber(2 * i)
	}
	require.Equal(t, want, runLua(t, res.Source, "sumAll"))
}

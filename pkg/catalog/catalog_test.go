package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pmmlc/pmmlc/pkg/fieldtype"
)

func TestFindBuiltinKnownName(t *testing.T) {
	def, ok := FindBuiltin("lessThan")
	require.True(t, ok)
	require.Equal(t, "<", def.TargetName)
	require.Equal(t, Comparison, def.Kind)
	require.Equal(t, MissingIfAnyArgMissing, def.MissingValueRule)
}

func TestFindBuiltinUnknownName(t *testing.T) {
	_, ok := FindBuiltin("notARealPMMLFunction")
	require.False(t, ok)
}

func TestFindBuiltinEveryEntryReachableByItsOwnName(t *testing.T) {
	for _, def := range Table {
		found, ok := FindBuiltin(def.PMMLName)
		require.True(t, ok, "PMMLName %q not found by its own lookup", def.PMMLName)
		require.Equal(t, def.PMMLName, found.PMMLName)
	}
}

func TestTableStaysSortedByPMMLName(t *testing.T) {
	for i := 1; i < len(Table); i++ {
		require.Less(t, Table[i-1].PMMLName, Table[i].PMMLName, "Table must stay sorted for FindBuiltin's binary search")
	}
}

func TestTernaryMacroAcceptsTwoOrThreeArgs(t *testing.T) {
	def, ok := FindBuiltin("if")
	require.True(t, ok)
	require.Equal(t, TernaryMacro, def.Kind)
	require.Equal(t, 2, def.MinArgs)
	require.Equal(t, 3, def.MaxArgs)
	require.Equal(t, fieldtype.Invalid, def.OutputType)
}

func TestSurrogateFunctionIsInternalOnly(t *testing.T) {
	require.Empty(t, SurrogateFunction.PMMLName)
	require.Equal(t, "or", SurrogateFunction.TargetName)
	require.Equal(t, MaybeMissingIfAnyArgMissing, SurrogateFunction.MissingValueRule)

	def, ok := FindBuiltin(SurrogateFunction.TargetName)
	require.True(t, ok, "the surrogate's target symbol is also the PMML boolean or")
	require.NotEqual(t, SurrogateMacro, def.Kind, "looking up the surrogate's target symbol must find boolean or, never the surrogate")
}

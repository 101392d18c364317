package xmldom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const doc = `<Root>
  <Child name="a" value="1.5" flag="true"/>
  <Child name="b" value="notanumber"/>
  text content
</Root>`

func TestParseChildrenAndAttrs(t *testing.T) {
	root, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Equal(t, "Root", root.Name())

	children := root.Children("Child")
	require.Len(t, children, 2)

	first, ok := root.Child("Child")
	require.True(t, ok)
	name, ok := first.Attr("name")
	require.True(t, ok)
	require.Equal(t, "a", name)

	v, status := first.QueryDouble("value")
	require.Equal(t, AttrOK, status)
	require.Equal(t, 1.5, v)

	flag, status := first.QueryBool("flag")
	require.Equal(t, AttrOK, status)
	require.True(t, flag)

	_, status = first.QueryDouble("missing")
	require.Equal(t, AttrMissing, status)

	second := children[1]
	_, status = second.QueryDouble("value")
	require.Equal(t, AttrWrongType, status)
}

func TestRequireAttrMissing(t *testing.T) {
	root, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	_, err = root.RequireAttr("nope")
	require.Error(t, err)
}

func TestParseMalformedDocument(t *testing.T) {
	_, err := Parse(strings.NewReader("<Unclosed"))
	require.Error(t, err)
}

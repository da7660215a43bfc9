package raw

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDictKeysSorted(t *testing.T) {
	d := Dict()
	d.Set("Type", NameLiteral("Page"))
	d.Set("MediaBox", Numbers(0, 0, 595, 842))
	d.Set("Contents", Ref(4, 0))
	require.Equal(t, []string{"Contents", "MediaBox", "Type"}, d.Keys())

	name, ok := d.Name("Type")
	require.True(t, ok)
	require.Equal(t, "Page", name)
	_, ok = d.Int("Type")
	require.False(t, ok)
}

func TestCloneDoesNotAlias(t *testing.T) {
	src := NewStream(Dict(), []byte("q Q"))
	src.Dict.Set("Resources", NewArray(Text("abc"), Ref(2, 0)))

	cp := Clone(src).(*StreamObj)
	cp.Data[0] = 'X'
	cp.Dict.KV["Resources"].(*ArrayObj).Items[0].(StringObj).Bytes[0] = 'z'

	require.Equal(t, "q Q", string(src.Data))
	require.Equal(t, "abc", string(src.Dict.KV["Resources"].(*ArrayObj).Items[0].(StringObj).Bytes))
}

func TestReferencesAndRewrite(t *testing.T) {
	d := Dict()
	d.Set("B", Ref(7, 0))
	d.Set("A", NewArray(Ref(3, 0), Int(1)))
	require.Equal(t, []ObjectRef{{Num: 3}, {Num: 7}}, References(d))

	Rewrite(d, func(r ObjectRef) Object { return Ref(r.Num+10, 0) })
	require.Equal(t, []ObjectRef{{Num: 13}, {Num: 17}}, References(d))
}

func TestDocumentPagesWalksTree(t *testing.T) {
	doc := NewDocument("2.0")
	catalog := Dict()
	catalog.Set("Type", NameLiteral("Catalog"))
	catalog.Set("Pages", Ref(2, 0))
	pages := Dict()
	pages.Set("Type", NameLiteral("Pages"))
	pages.Set("Kids", NewArray(Ref(3, 0), Ref(4, 0)))
	p1 := Dict()
	p1.Set("Type", NameLiteral("Page"))
	p2 := Dict()
	p2.Set("Type", NameLiteral("Page"))
	doc.Objects[ObjectRef{Num: 1}] = catalog
	doc.Objects[ObjectRef{Num: 2}] = pages
	doc.Objects[ObjectRef{Num: 3}] = p1
	doc.Objects[ObjectRef{Num: 4}] = p2
	doc.Trailer.Set("Root", Ref(1, 0))

	got := doc.Pages()
	require.Len(t, got, 2)
	require.Same(t, p1, got[0])
	require.Same(t, p2, got[1])
	require.Equal(t, 4, doc.MaxObjectNumber())
}

func TestHashIgnoresKeyInsertionOrder(t *testing.T) {
	a := Dict()
	a.Set("A", Int(1))
	a.Set("B", Text("x"))
	b := Dict()
	b.Set("B", Text("x"))
	b.Set("A", Int(1))
	require.Equal(t, Hash(a), Hash(b))

	b.Set("A", Int(2))
	require.NotEqual(t, Hash(a), Hash(b))
}

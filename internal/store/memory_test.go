package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateNodeFindOrCreate(t *testing.T) {
	st := NewMemory(nil)

	a, err := st.CreateNode(NodeConcept, "Water")
	require.NoError(t, err)
	require.False(t, a.IsNil())

	b, err := st.CreateNode(NodeConcept, "Water")
	require.NoError(t, err)
	assert.Equal(t, a, b, "same (type,label) must resolve to the same ref")

	c, err := st.CreateNode(NodeConcept, "Fire")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, st.Size())
}

func TestCreateNodeRejectsEmptyType(t *testing.T) {
	st := NewMemory(nil)
	_, err := st.CreateNode("", "x")
	require.Error(t, err)
}

func TestCreateRelationDedup(t *testing.T) {
	st := NewMemory(nil)
	a, _ := st.CreateNode(NodeConcept, "a")
	b, _ := st.CreateNode(NodeConcept, "b")

	r1, err := st.CreateRelation(RelMember, []Ref{a, b})
	require.NoError(t, err)
	r2, err := st.CreateRelation(RelMember, []Ref{a, b})
	require.NoError(t, err)
	assert.Equal(t, r1, r2, "identical (type,members) must dedupe")

	r3, err := st.CreateRelation(RelMember, []Ref{b, a})
	require.NoError(t, err)
	assert.NotEqual(t, r1, r3, "member order is significant")

	r4, err := st.CreateRelation(RelInheritance, []Ref{a, b})
	require.NoError(t, err)
	assert.NotEqual(t, r1, r4)
}

func TestCreateRelationValidatesMembers(t *testing.T) {
	st := NewMemory(nil)
	a, _ := st.CreateNode(NodeConcept, "a")

	_, err := st.CreateRelation(RelMember, nil)
	require.Error(t, err)

	_, err = st.CreateRelation(RelMember, []Ref{a, Ref("nope")})
	require.Error(t, err)
}

func TestTruthValueClampAndRoundTrip(t *testing.T) {
	st := NewMemory(nil)
	a, _ := st.CreateNode(NodeConcept, "a")

	require.NoError(t, st.SetTruthValue(a, TruthValue{Strength: 1.7, Confidence: -0.3}))
	tv, err := st.GetTruthValue(a)
	require.NoError(t, err)
	assert.Equal(t, TruthValue{Strength: 1, Confidence: 0}, tv)

	require.NoError(t, st.SetTruthValue(a, TruthValue{Strength: 0.4, Confidence: 0.9}))
	tv, err = st.GetTruthValue(a)
	require.NoError(t, err)
	assert.InDelta(t, 0.4, tv.Strength, 1e-9)
	assert.InDelta(t, 0.9, tv.Confidence, 1e-9)

	err = st.SetTruthValue(Ref("nope"), TruthValue{})
	require.Error(t, err)
}

func TestIncomingAndMembers(t *testing.T) {
	st := NewMemory(nil)
	a, _ := st.CreateNode(NodeConcept, "a")
	b, _ := st.CreateNode(NodeConcept, "b")
	c, _ := st.CreateNode(NodeConcept, "c")

	r1, _ := st.CreateRelation(RelMember, []Ref{a, b})
	r2, _ := st.CreateRelation(RelEvaluation, []Ref{a, c})

	in, err := st.Incoming(a)
	require.NoError(t, err)
	assert.Equal(t, []Ref{r1, r2}, in)

	in, err = st.Incoming(b)
	require.NoError(t, err)
	assert.Equal(t, []Ref{r1}, in)

	members, err := st.Members(r2)
	require.NoError(t, err)
	assert.Equal(t, []Ref{a, c}, members)
}

func TestQueryByTypeInsertionOrder(t *testing.T) {
	st := NewMemory(nil)
	a, _ := st.CreateNode(NodeConcept, "first")
	b, _ := st.CreateNode("Other", "second")
	c, _ := st.CreateNode(NodeConcept, "third")

	concepts, err := st.QueryByType(NodeConcept)
	require.NoError(t, err)
	assert.Equal(t, []Ref{a, c}, concepts)

	all, err := st.QueryByType("")
	require.NoError(t, err)
	assert.Equal(t, []Ref{a, b, c}, all)
}

func TestQueryByName(t *testing.T) {
	st := NewMemory(nil)
	a, _ := st.CreateNode(NodeConcept, "Water")

	refs, err := st.QueryByName(NodeConcept, "Water")
	require.NoError(t, err)
	assert.Equal(t, []Ref{a}, refs)

	refs, err = st.QueryByName(NodeConcept, "Missing")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestLabelAndTypeOf(t *testing.T) {
	st := NewMemory(nil)
	a, _ := st.CreateNode(NodeConcept, "Water")
	r, _ := st.CreateRelation(RelMember, []Ref{a})

	label, err := st.Label(a)
	require.NoError(t, err)
	assert.Equal(t, "Water", label)

	label, err = st.Label(r)
	require.NoError(t, err)
	assert.Equal(t, "", label)

	typ, err := st.TypeOf(r)
	require.NoError(t, err)
	assert.Equal(t, RelMember, typ)
}

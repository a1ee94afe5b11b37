package knowledge

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentzero/internal/store"
)

func newTestIntegrator(t *testing.T) (*Integrator, *store.Memory) {
	t.Helper()
	st := store.NewMemory(nil)
	ki, err := New("TestAgent", st, nil)
	require.NoError(t, err)
	return ki, st
}

func TestNewCreatesContainers(t *testing.T) {
	_, st := newTestIntegrator(t)
	for _, label := range []string{
		"TestAgent_KnowledgeBase",
		"TestAgent_WorkingKnowledge",
		"TestAgent_Facts",
		"TestAgent_ProceduralMemory",
		"TestAgent_EpisodicMemory",
		"TestAgent_SemanticNetwork",
		"TestAgent_Rules",
		"TestAgent_Temporal",
	} {
		refs, err := st.QueryByName(store.NodeConcept, label)
		require.NoError(t, err)
		assert.Len(t, refs, 1, "missing container %s", label)
	}
}

func TestRegisterConceptIdempotent(t *testing.T) {
	ki, _ := newTestIntegrator(t)

	a := ki.RegisterConcept("Water", "a liquid")
	require.False(t, a.IsNil())
	b := ki.RegisterConcept("Water", "something else")
	assert.Equal(t, a, b)

	assert.True(t, ki.HasKnowledgeAbout("Water"))
	assert.False(t, ki.HasKnowledgeAbout("Fire"))
	assert.Len(t, ki.AllConcepts(), 1)

	// The first registration recorded the description as a fact.
	assert.Equal(t, 1, ki.Statistics()["factual_items"])
	found := ki.QueryKnowledge("Water is a liquid", 10)
	assert.NotEmpty(t, found)
}

func TestAddFactNonIdempotent(t *testing.T) {
	ki, _ := newTestIntegrator(t)

	a := ki.AddFact("sky is blue", High)
	b := ki.AddFact("sky is blue", High)
	require.False(t, a.IsNil())
	require.False(t, b.IsNil())
	assert.NotEqual(t, a, b, "identical facts must create distinct items")
	assert.Equal(t, 2, ki.Statistics()["factual_items"])

	assert.True(t, ki.AddFact("", High).IsNil())
}

func TestAddProcedureChainsSteps(t *testing.T) {
	ki, st := newTestIntegrator(t)

	ref := ki.AddProcedure("make tea", []string{"boil water", "steep leaves"}, Medium)
	require.False(t, ref.IsNil())

	in, err := st.Incoming(ref)
	require.NoError(t, err)
	steps := 0
	for _, rel := range in {
		typ, err := st.TypeOf(rel)
		require.NoError(t, err)
		if typ == store.RelSequential {
			steps++
		}
	}
	assert.Equal(t, 2, steps)
}

func TestAddEpisodeLinksContext(t *testing.T) {
	ki, st := newTestIntegrator(t)
	ctx, _ := st.CreateNode(store.NodeConcept, "kitchen")

	ep := ki.AddEpisode("made tea in the kitchen", []store.Ref{ctx, store.NilRef}, Medium)
	require.False(t, ep.IsNil())

	related := ki.EpisodesRelatedTo([]store.Ref{ctx})
	assert.Contains(t, related, ep)
}

func TestAddSemanticRelation(t *testing.T) {
	ki, _ := newTestIntegrator(t)

	ref := ki.AddSemanticRelation("Dog", "isa", "Animal", High)
	require.False(t, ref.IsNil())
	assert.True(t, ki.HasKnowledgeAbout("Dog"))
	assert.True(t, ki.HasKnowledgeAbout("Animal"))

	animal := ki.RegisterConcept("Animal", "")
	related := ki.SemanticRelations("Dog")
	assert.Contains(t, related, animal)

	assert.Empty(t, ki.SemanticRelations("Unknown"), "unknown concepts fail closed")
	assert.Empty(t, ki.FactsAbout("Unknown"))
}

func TestAddSemanticRelationRespectsToggle(t *testing.T) {
	ki, _ := newTestIntegrator(t)

	ki.SetSemanticIntegrationEnabled(false)
	assert.True(t, ki.AddSemanticRelation("Cat", "isa", "Animal", High).IsNil())
	assert.False(t, ki.HasKnowledgeAbout("Cat"), "disabled integration must not register concepts")
	assert.Equal(t, false, ki.Status()["semantic_integration_enabled"])

	ki.SetSemanticIntegrationEnabled(true)
	assert.False(t, ki.AddSemanticRelation("Cat", "isa", "Animal", High).IsNil())
}

func TestQueryKnowledgeSubstring(t *testing.T) {
	ki, _ := newTestIntegrator(t)
	ki.AddFact("water boils at 100C", High)
	ki.AddFact("water freezes at 0C", High)
	ki.AddFact("iron melts at 1538C", High)

	hits := ki.QueryKnowledge("water", 10)
	assert.Len(t, hits, 2)

	hits = ki.QueryKnowledge("water", 1)
	assert.Len(t, hits, 1)

	assert.Nil(t, ki.QueryKnowledge("", 10))
	assert.Nil(t, ki.QueryKnowledge("water", 0))
}

func TestFormConceptsFromFrequencyThreshold(t *testing.T) {
	ki, st := newTestIntegrator(t)

	var refs []store.Ref
	for i := 0; i < 4; i++ {
		ref, err := st.CreateNode(store.NodeConcept, fmt.Sprintf("observation %d: disk error detected", i))
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	for i := 0; i < 6; i++ {
		ref, err := st.CreateNode(store.NodeConcept, fmt.Sprintf("observation %d: all ok", i+4))
		require.NoError(t, err)
		refs = append(refs, ref)
	}

	// 10 experiences: threshold is max(2, 3) = 3.
	formed := ki.FormConceptsFrom(refs)
	assert.True(t, ki.HasKnowledgeAbout("AutoConcept_error"))
	assert.True(t, ki.HasKnowledgeAbout("AutoConcept_observation"))
	assert.False(t, ki.HasKnowledgeAbout("AutoConcept_ok"), "short terms are skipped")
	assert.NotEmpty(t, formed)

	// Re-forming does not duplicate already-registered concepts.
	again := ki.FormConceptsFrom(refs)
	for _, ref := range again {
		assert.NotContains(t, formed, ref)
	}

	ki.SetConceptFormationEnabled(false)
	assert.Nil(t, ki.FormConceptsFrom(refs))
}

func TestValidateKnowledgeConsistency(t *testing.T) {
	ki, _ := newTestIntegrator(t)

	strong := ki.AddFact("sky is blue", VeryHigh)
	weak := ki.AddFact("sky is green", Low)
	ki.AddFact("grass is green", High)
	ki.AddFact("grass is alive", Medium)

	flagged := ki.ValidateKnowledgeConsistency()
	assert.ElementsMatch(t, []store.Ref{strong, weak}, flagged,
		"only the pair straddling the strength boundary is flagged")
}

func TestUpdateKnowledgeConfidence(t *testing.T) {
	ki, st := newTestIntegrator(t)

	fact := ki.AddFact("reactor is stable", Medium)
	ev1, _ := st.CreateNode(store.NodeConcept, "reading 1")
	ev2, _ := st.CreateNode(store.NodeConcept, "reading 2")
	require.NoError(t, st.SetTruthValue(ev1, store.TruthValue{Strength: 1, Confidence: 0.9}))
	require.NoError(t, st.SetTruthValue(ev2, store.TruthValue{Strength: 1, Confidence: 0.9}))

	level := ki.UpdateKnowledgeConfidence(fact, []store.Ref{ev1, ev2})
	assert.Equal(t, VeryHigh, level)

	tv, err := st.GetTruthValue(fact)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, tv.Strength, 1e-9)
	assert.InDelta(t, 1.0, tv.Confidence, 1e-9)

	// No evidence reports the current bucket without mutating.
	level = ki.UpdateKnowledgeConfidence(fact, nil)
	assert.Equal(t, VeryHigh, level)

	assert.Equal(t, VeryLow, ki.UpdateKnowledgeConfidence(store.NilRef, nil))
}

func TestCleanupOutdatedKnowledge(t *testing.T) {
	ki, st := newTestIntegrator(t)

	fresh := ki.AddFact("still relevant", High)
	stale := ki.AddFact("long forgotten", VeryLow)
	require.NoError(t, st.SetTruthValue(stale, store.TruthValue{Strength: 0.05, Confidence: 0.05}))

	flagged := ki.CleanupOutdatedKnowledge(30)
	assert.Equal(t, []store.Ref{stale}, flagged)
	assert.NotContains(t, flagged, fresh)

	// Flagging never deletes.
	tv, err := st.GetTruthValue(stale)
	require.NoError(t, err)
	assert.InDelta(t, 0.05, tv.Strength, 1e-9)
}

func TestImportAndExportKnowledge(t *testing.T) {
	ki, _ := newTestIntegrator(t)

	n := ki.ImportKnowledge("sensors", map[string]string{
		"temperature": "21C",
		"humidity":    "40%",
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, ki.Statistics()["factual_items"])

	var dump struct {
		Agent      string         `json:"agent"`
		Concepts   int            `json:"concepts"`
		Categories map[string]int `json:"categories"`
		StoreSize  int            `json:"store_size"`
	}
	require.NoError(t, json.Unmarshal([]byte(ki.ExportKnowledge("json", Factual)), &dump))
	assert.Equal(t, "TestAgent", dump.Agent)
	assert.Equal(t, 2, dump.Categories["factual"])
	assert.Greater(t, dump.StoreSize, 0)

	text := ki.ExportKnowledge("text", Factual)
	assert.Contains(t, text, "2 factual items")
}

func TestMostActiveKnowledgeRecencyOrder(t *testing.T) {
	ki, _ := newTestIntegrator(t)

	a := ki.AddFact("first", Medium)
	b := ki.AddFact("second", Medium)
	c := ki.AddFact("third", Medium)

	assert.Equal(t, []store.Ref{c, b}, ki.MostActiveKnowledge(2))
	assert.Equal(t, []store.Ref{c, b, a}, ki.MostActiveKnowledge(10))
	assert.Nil(t, ki.MostActiveKnowledge(0))
}

func TestProcessTickConsolidates(t *testing.T) {
	ki, _ := newTestIntegrator(t)

	for i := 0; i < itemCap+10; i++ {
		ki.AddFact(fmt.Sprintf("fact %d", i), High)
	}
	require.True(t, ki.ProcessTick())
	assert.LessOrEqual(t, len(ki.MostActiveKnowledge(itemCap*2)), itemCap)
}

func TestConfidenceLevelBuckets(t *testing.T) {
	assert.Equal(t, VeryHigh, LevelFromConfidence(0.95))
	assert.Equal(t, VeryHigh, LevelFromConfidence(0.9))
	assert.Equal(t, High, LevelFromConfidence(0.7))
	assert.Equal(t, Medium, LevelFromConfidence(0.4))
	assert.Equal(t, Low, LevelFromConfidence(0.2))
	assert.Equal(t, VeryLow, LevelFromConfidence(0.1))

	assert.InDelta(t, 0.75, High.Strength(), 1e-9)
	assert.InDelta(t, 0.0, VeryLow.Strength(), 1e-9)
}

// Package knowledge maintains typed, confidence-weighted assertions and
// a concept registry layered over the knowledge store. It is the
// reflection-phase collaborator of the cognitive loop.
package knowledge

import (
	"encoding/json"
	"fmt"
	"strings"

	"agentzero/internal/store"

	"go.uber.org/zap"
)

// itemCap bounds the recently-touched knowledge set.
const itemCap = 64

// item is the integrator's local record of one stored assertion.
type item struct {
	ref  store.Ref
	typ  Type
	text string
}

// Integrator classifies, stores, retrieves and validates agent
// knowledge. Local indices (concept registry, per-category counts,
// item list) are owned by the integrator; the entities themselves are
// owned by the store. Calls are not internally synchronized; the host
// serializes access as described in the concurrency contract.
type Integrator struct {
	st    store.Store
	log   *zap.Logger
	agent string

	knowledgeBase    store.Ref
	workingKnowledge store.Ref
	categories       map[Type]store.Ref

	concepts     map[string]store.Ref
	conceptOrder []string

	items  []item
	counts map[Type]int
	serial int

	active []store.Ref

	conceptFormation    bool
	semanticIntegration bool
	memoryConsolidation bool
	threshold           float64
}

// New creates the integrator and its category containers in the store.
func New(agentName string, st store.Store, log *zap.Logger) (*Integrator, error) {
	if log == nil {
		log = zap.NewNop()
	}

	ki := &Integrator{
		st:                  st,
		log:                 log.Named("knowledge"),
		agent:               agentName,
		categories:          make(map[Type]store.Ref),
		concepts:            make(map[string]store.Ref),
		counts:              make(map[Type]int),
		conceptFormation:    true,
		semanticIntegration: true,
		memoryConsolidation: true,
		threshold:           0.5,
	}

	var err error
	if ki.knowledgeBase, err = st.CreateNode(store.NodeConcept, agentName+"_KnowledgeBase"); err != nil {
		return nil, fmt.Errorf("failed to create knowledge base node: %w", err)
	}
	if ki.workingKnowledge, err = st.CreateNode(store.NodeConcept, agentName+"_WorkingKnowledge"); err != nil {
		return nil, fmt.Errorf("failed to create working knowledge node: %w", err)
	}

	containers := map[Type]string{
		Factual:     agentName + "_Facts",
		Procedural:  agentName + "_ProceduralMemory",
		Episodic:    agentName + "_EpisodicMemory",
		Semantic:    agentName + "_SemanticNetwork",
		Conditional: agentName + "_Rules",
		Temporal:    agentName + "_Temporal",
	}
	for _, t := range allTypes {
		ref, err := st.CreateNode(store.NodeConcept, containers[t])
		if err != nil {
			return nil, fmt.Errorf("failed to create %s category node: %w", t, err)
		}
		ki.categories[t] = ref
	}

	ki.log.Info("knowledge integrator initialized", zap.String("agent", agentName))
	return ki, nil
}

// createItem stores one classified assertion and indexes it locally.
// Every call creates a fresh item; identical text never dedupes.
func (ki *Integrator) createItem(text string, typ Type, level ConfidenceLevel) store.Ref {
	ki.serial++
	label := fmt.Sprintf("%s%s#%d", typ.prefix(), text, ki.serial)

	ref, err := ki.st.CreateNode(store.NodeConcept, label)
	if err != nil {
		ki.log.Error("knowledge item creation failed", zap.String("text", text), zap.Error(err))
		return store.NilRef
	}
	if err := ki.st.SetTruthValue(ref, store.TruthValue{Strength: level.Strength(), Confidence: 0.9}); err != nil {
		ki.log.Error("knowledge item truth value failed", zap.Error(err))
	}
	if _, err := ki.st.CreateRelation(store.RelMember, []store.Ref{ki.categories[typ], ref}); err != nil {
		ki.log.Error("category link failed", zap.Error(err))
	}

	ki.items = append(ki.items, item{ref: ref, typ: typ, text: text})
	ki.counts[typ]++
	ki.touch(ref)
	return ref
}

// AddFact records a factual assertion. Re-adding identical text creates
// a new item.
func (ki *Integrator) AddFact(text string, level ConfidenceLevel) store.Ref {
	if text == "" {
		ki.log.Warn("empty fact text")
		return store.NilRef
	}
	ki.log.Debug("adding fact", zap.String("text", text))

	ref := ki.createItem(text, Factual, level)
	if ref.IsNil() {
		return store.NilRef
	}
	if _, err := ki.st.CreateRelation(store.RelMember, []store.Ref{ki.knowledgeBase, ref}); err != nil {
		ki.log.Error("knowledge base link failed", zap.Error(err))
	}
	return ref
}

// AddProcedure records a how-to assertion with ordered steps.
func (ki *Integrator) AddProcedure(text string, steps []string, level ConfidenceLevel) store.Ref {
	if text == "" {
		ki.log.Warn("empty procedure text")
		return store.NilRef
	}
	ki.log.Debug("adding procedure", zap.String("text", text), zap.Int("steps", len(steps)))

	ref := ki.createItem(text, Procedural, level)
	if ref.IsNil() {
		return store.NilRef
	}
	for i, step := range steps {
		stepRef, err := ki.st.CreateNode(store.NodeConcept, fmt.Sprintf("Step_%d_%s", i, step))
		if err != nil {
			ki.log.Error("step node failed", zap.Int("index", i), zap.Error(err))
			continue
		}
		if _, err := ki.st.CreateRelation(store.RelSequential, []store.Ref{ref, stepRef}); err != nil {
			ki.log.Error("step link failed", zap.Int("index", i), zap.Error(err))
		}
	}
	return ref
}

// AddEpisode records an experience memory linked to its context refs.
func (ki *Integrator) AddEpisode(text string, context []store.Ref, level ConfidenceLevel) store.Ref {
	if text == "" {
		ki.log.Warn("empty episode text")
		return store.NilRef
	}
	ki.log.Debug("adding episode", zap.String("text", text), zap.Int("context", len(context)))

	ref := ki.createItem(text, Episodic, level)
	if ref.IsNil() {
		return store.NilRef
	}
	for _, ctx := range context {
		if ctx.IsNil() {
			continue
		}
		if _, err := ki.st.CreateRelation(store.RelEvaluation, []store.Ref{ref, ctx}); err != nil {
			ki.log.Error("episode context link failed", zap.Error(err))
		}
	}
	return ref
}

// AddSemanticRelation asserts a typed relation between two concepts,
// creating both concepts if needed. "isa" and "has" map to the
// inheritance and membership link types; everything else is a generic
// evaluation.
func (ki *Integrator) AddSemanticRelation(concept1, relationType, concept2 string, level ConfidenceLevel) store.Ref {
	if !ki.semanticIntegration {
		ki.log.Warn("semantic integration is disabled")
		return store.NilRef
	}
	if concept1 == "" || relationType == "" || concept2 == "" {
		ki.log.Warn("semantic relation requires two concepts and a relation type")
		return store.NilRef
	}
	ki.log.Debug("adding semantic relation",
		zap.String("concept1", concept1),
		zap.String("relation", relationType),
		zap.String("concept2", concept2))

	c1 := ki.findOrCreateConcept(concept1)
	c2 := ki.findOrCreateConcept(concept2)
	if c1.IsNil() || c2.IsNil() {
		return store.NilRef
	}

	linkType := store.RelEvaluation
	switch relationType {
	case "isa":
		linkType = store.RelInheritance
	case "has":
		linkType = store.RelMember
	}
	if _, err := ki.st.CreateRelation(linkType, []store.Ref{c1, c2}); err != nil {
		ki.log.Error("concept relation failed", zap.Error(err))
	}

	return ki.createItem(fmt.Sprintf("%s_%s_%s", relationType, concept1, concept2), Semantic, level)
}

// RegisterConcept returns the concept ref for name, creating it on
// first use. The call is idempotent by name. A non-empty description is
// recorded as a high-confidence fact about the concept.
func (ki *Integrator) RegisterConcept(name, description string) store.Ref {
	if name == "" {
		ki.log.Warn("empty concept name")
		return store.NilRef
	}
	if ref, ok := ki.concepts[name]; ok {
		return ref
	}

	ref := ki.findOrCreateConcept(name)
	if !ref.IsNil() && description != "" {
		ki.AddFact(name+" is "+description, High)
	}
	return ref
}

// findOrCreateConcept resolves a concept name to its registered ref.
func (ki *Integrator) findOrCreateConcept(name string) store.Ref {
	if ref, ok := ki.concepts[name]; ok {
		return ref
	}
	ref, err := ki.st.CreateNode(store.NodeConcept, name)
	if err != nil {
		ki.log.Error("concept creation failed", zap.String("name", name), zap.Error(err))
		return store.NilRef
	}
	ki.concepts[name] = ref
	ki.conceptOrder = append(ki.conceptOrder, name)
	return ref
}

// HasKnowledgeAbout reports whether a concept name is registered.
func (ki *Integrator) HasKnowledgeAbout(name string) bool {
	_, ok := ki.concepts[name]
	return ok
}

// AllConcepts returns every registered concept in registration order.
func (ki *Integrator) AllConcepts() []store.Ref {
	out := make([]store.Ref, 0, len(ki.conceptOrder))
	for _, name := range ki.conceptOrder {
		out = append(out, ki.concepts[name])
	}
	return out
}

// QueryKnowledge does a linear substring search over stored entity
// names in store-iteration order. Results are not relevance-ranked.
func (ki *Integrator) QueryKnowledge(text string, maxResults int) []store.Ref {
	if text == "" || maxResults <= 0 {
		return nil
	}

	refs, err := ki.st.QueryByType("")
	if err != nil {
		ki.log.Error("knowledge query failed", zap.Error(err))
		return nil
	}

	var out []store.Ref
	for _, ref := range refs {
		label, err := ki.st.Label(ref)
		if err != nil || label == "" {
			continue
		}
		if strings.Contains(label, text) {
			out = append(out, ref)
			if len(out) >= maxResults {
				break
			}
		}
	}
	return out
}

// FactsAbout returns every knowledge entity directly incident on the
// named concept. Unknown names fail closed with an empty result.
func (ki *Integrator) FactsAbout(conceptName string) []store.Ref {
	ref, ok := ki.concepts[conceptName]
	if !ok {
		return nil
	}
	return ki.relatedKnowledge(ref)
}

// SemanticRelations returns the entities related to the named concept.
// Unknown names fail closed with an empty result.
func (ki *Integrator) SemanticRelations(conceptName string) []store.Ref {
	ref, ok := ki.concepts[conceptName]
	if !ok {
		return nil
	}
	return ki.relatedKnowledge(ref)
}

// EpisodesRelatedTo returns the deduplicated union of entities related
// to each context ref.
func (ki *Integrator) EpisodesRelatedTo(context []store.Ref) []store.Ref {
	seen := make(map[store.Ref]bool)
	var out []store.Ref
	for _, ctx := range context {
		if ctx.IsNil() {
			continue
		}
		for _, ref := range ki.relatedKnowledge(ctx) {
			if !seen[ref] {
				seen[ref] = true
				out = append(out, ref)
			}
		}
	}
	return out
}

// relatedKnowledge expands the incoming relations of ref and collects
// the other members. Store failures degrade to an empty result.
func (ki *Integrator) relatedKnowledge(ref store.Ref) []store.Ref {
	incoming, err := ki.st.Incoming(ref)
	if err != nil {
		ki.log.Error("incoming lookup failed", zap.Error(err))
		return nil
	}

	var out []store.Ref
	for _, rel := range incoming {
		members, err := ki.st.Members(rel)
		if err != nil {
			ki.log.Warn("member expansion failed", zap.Error(err))
			continue
		}
		for _, m := range members {
			if m != ref {
				out = append(out, m)
			}
		}
	}
	return out
}

// FormConceptsFrom tokenizes the names of the given experience refs and
// registers an AutoConcept for every term appearing in at least
// max(2, 0.3*N) experiences' worth of tokens. Terms shorter than three
// characters and already-registered concepts are skipped. Returns the
// newly formed concepts; a no-op when concept formation is disabled.
func (ki *Integrator) FormConceptsFrom(experiences []store.Ref) []store.Ref {
	if !ki.conceptFormation || len(experiences) == 0 {
		return nil
	}

	freq := make(map[string]int)
	var order []string
	for _, ref := range experiences {
		label, err := ki.st.Label(ref)
		if err != nil {
			ki.log.Warn("experience label lookup failed", zap.Error(err))
			continue
		}
		for _, term := range tokenize(label) {
			if len(term) <= 2 {
				continue
			}
			if freq[term] == 0 {
				order = append(order, term)
			}
			freq[term]++
		}
	}

	minFreq := int(float64(len(experiences)) * 0.3)
	if minFreq < 2 {
		minFreq = 2
	}

	var formed []store.Ref
	for _, term := range order {
		if freq[term] < minFreq {
			continue
		}
		name := "AutoConcept_" + term
		if ki.HasKnowledgeAbout(name) {
			continue
		}
		ref := ki.RegisterConcept(name, "Auto-formed concept")
		if !ref.IsNil() {
			formed = append(formed, ref)
		}
	}

	if len(formed) > 0 {
		ki.log.Info("concepts formed from experience", zap.Int("count", len(formed)))
	}
	return formed
}

// tokenize lower-cases the text and splits it on anything that is not a
// letter or digit.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// ValidateKnowledgeConsistency groups facts by their leading subject
// word and flags pairs whose strengths straddle the 0.5 boundary. This
// is a heuristic screen, not a logical proof.
func (ki *Integrator) ValidateKnowledgeConsistency() []store.Ref {
	groups := make(map[string][]item)
	for _, it := range ki.items {
		if it.typ != Factual {
			continue
		}
		subject := it.text
		if idx := strings.IndexByte(subject, ' '); idx >= 0 {
			subject = subject[:idx]
		}
		groups[subject] = append(groups[subject], it)
	}

	flagged := make(map[store.Ref]bool)
	var out []store.Ref
	flag := func(ref store.Ref) {
		if !flagged[ref] {
			flagged[ref] = true
			out = append(out, ref)
		}
	}

	for _, group := range groups {
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				si, erri := ki.st.GetTruthValue(group[i].ref)
				sj, errj := ki.st.GetTruthValue(group[j].ref)
				if erri != nil || errj != nil {
					continue
				}
				// One fact at or above 0.5 while the other is below.
				if (si.Strength >= 0.5) != (sj.Strength >= 0.5) {
					flag(group[i].ref)
					flag(group[j].ref)
				}
			}
		}
	}

	if len(out) > 0 {
		ki.log.Warn("inconsistent knowledge detected", zap.Int("count", len(out)))
	}
	return out
}

// UpdateKnowledgeConfidence revises an item's truth value against a set
// of evidence refs. Strength moves to the average of the current value
// and the confidence-weighted evidence mean; confidence gains up to 0.1
// in proportion to evidence strength, capped at 1.0. Returns the bucket
// of the updated confidence.
func (ki *Integrator) UpdateKnowledgeConfidence(itemRef store.Ref, evidence []store.Ref) ConfidenceLevel {
	if itemRef.IsNil() {
		ki.log.Warn("confidence update on undefined ref")
		return VeryLow
	}

	current, err := ki.st.GetTruthValue(itemRef)
	if err != nil {
		ki.log.Error("confidence update lookup failed", zap.Error(err))
		return VeryLow
	}
	if len(evidence) == 0 {
		return LevelFromConfidence(current.Confidence)
	}

	var weighted, totalConf float64
	for _, ev := range evidence {
		tv, err := ki.st.GetTruthValue(ev)
		if err != nil {
			ki.log.Warn("evidence lookup failed", zap.Error(err))
			continue
		}
		weighted += tv.Strength * tv.Confidence
		totalConf += tv.Confidence
	}

	evidenceStrength := 0.0
	if totalConf > 0 {
		evidenceStrength = weighted / totalConf
	}

	updated := store.TruthValue{
		Strength:   (current.Strength + evidenceStrength) / 2,
		Confidence: current.Confidence + 0.1*evidenceStrength,
	}.Clamp()
	if err := ki.st.SetTruthValue(itemRef, updated); err != nil {
		ki.log.Error("confidence update write failed", zap.Error(err))
		return LevelFromConfidence(current.Confidence)
	}

	ki.touch(itemRef)
	return LevelFromConfidence(updated.Confidence)
}

// CleanupOutdatedKnowledge flags items whose strength and confidence
// have both decayed below 0.1. Items are flagged for review, never
// deleted; there are no real timestamps to age against.
func (ki *Integrator) CleanupOutdatedKnowledge(ageThresholdDays int) []store.Ref {
	var flagged []store.Ref
	for _, it := range ki.items {
		tv, err := ki.st.GetTruthValue(it.ref)
		if err != nil {
			continue
		}
		if tv.Strength < 0.1 && tv.Confidence < 0.1 {
			flagged = append(flagged, it.ref)
		}
	}
	if len(flagged) > 0 {
		ki.log.Info("outdated knowledge flagged",
			zap.Int("count", len(flagged)),
			zap.Int("age_threshold_days", ageThresholdDays))
	}
	return flagged
}

// ImportKnowledge bulk-ingests one fact per key/value pair at medium
// confidence. Keys are imported in the map's natural (unspecified)
// order. Returns the number of items created.
func (ki *Integrator) ImportKnowledge(source string, data map[string]string) int {
	imported := 0
	for k, v := range data {
		if ref := ki.AddFact(k+": "+v, Medium); !ref.IsNil() {
			imported++
		}
	}
	ki.log.Info("knowledge imported", zap.String("source", source), zap.Int("count", imported))
	return imported
}

// exportDump is the JSON shape ExportKnowledge emits.
type exportDump struct {
	Agent      string         `json:"agent"`
	Concepts   int            `json:"concepts"`
	Categories map[string]int `json:"categories"`
	StoreSize  int            `json:"store_size"`
}

// ExportKnowledge serializes the concept registry and category counts.
// "json" produces a structured dump; any other format falls back to a
// plain-text summary.
func (ki *Integrator) ExportKnowledge(format string, filter Type) string {
	if format == "json" {
		dump := exportDump{
			Agent:      ki.agent,
			Concepts:   len(ki.concepts),
			Categories: make(map[string]int, len(allTypes)),
			StoreSize:  ki.st.Size(),
		}
		for _, t := range allTypes {
			dump.Categories[t.String()] = ki.counts[t]
		}
		data, err := json.Marshal(dump)
		if err != nil {
			ki.log.Error("export marshal failed", zap.Error(err))
			return "{}"
		}
		return string(data)
	}

	return fmt.Sprintf("knowledge export (%s): %d concepts, %d %s items, %d entities",
		format, len(ki.concepts), ki.counts[filter], filter, ki.st.Size())
}

// MostActiveKnowledge returns up to count recently-touched items,
// most recent first.
func (ki *Integrator) MostActiveKnowledge(count int) []store.Ref {
	if count <= 0 {
		return nil
	}
	out := make([]store.Ref, 0, count)
	for i := len(ki.active) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, ki.active[i])
	}
	return out
}

// Statistics returns counter-style stats for the host snapshot.
func (ki *Integrator) Statistics() map[string]int {
	stats := map[string]int{
		"total_concepts":   len(ki.concepts),
		"active_knowledge": len(ki.active),
		"total_entities":   ki.st.Size(),
	}
	for _, t := range allTypes {
		stats[t.String()+"_items"] = ki.counts[t]
	}
	return stats
}

// Status returns the integrator's host-facing status snapshot.
func (ki *Integrator) Status() map[string]any {
	return map[string]any{
		"total_concepts":               len(ki.concepts),
		"active_knowledge":             len(ki.active),
		"concept_formation_enabled":    ki.conceptFormation,
		"semantic_integration_enabled": ki.semanticIntegration,
		"memory_consolidation_enabled": ki.memoryConsolidation,
		"knowledge_threshold":          ki.threshold,
	}
}

// SetConceptFormationEnabled toggles automatic concept formation.
func (ki *Integrator) SetConceptFormationEnabled(enable bool) { ki.conceptFormation = enable }

// SetSemanticIntegrationEnabled toggles AddSemanticRelation.
func (ki *Integrator) SetSemanticIntegrationEnabled(enable bool) { ki.semanticIntegration = enable }

// SetKnowledgeThreshold sets the minimum confidence for accepting new
// knowledge during consolidation.
func (ki *Integrator) SetKnowledgeThreshold(threshold float64) { ki.threshold = threshold }

// ProcessTick runs one reflection-phase integration step. It reports
// failure instead of propagating; the loop treats the result as a
// degraded phase, never as a fatal error.
func (ki *Integrator) ProcessTick() bool {
	ki.log.Debug("knowledge integration tick")
	if ki.memoryConsolidation {
		ki.consolidate()
	}
	return true
}

// consolidate trims the recently-touched set and drops entries below
// the acceptance threshold from it. No knowledge is deleted.
func (ki *Integrator) consolidate() {
	if len(ki.active) <= itemCap {
		return
	}
	kept := make([]store.Ref, 0, itemCap)
	for _, ref := range ki.active[len(ki.active)-itemCap:] {
		tv, err := ki.st.GetTruthValue(ref)
		if err == nil && tv.Confidence < ki.threshold {
			continue
		}
		kept = append(kept, ref)
	}
	ki.active = kept
}

// touch marks a ref as recently used.
func (ki *Integrator) touch(ref store.Ref) {
	ki.active = append(ki.active, ref)
	if len(ki.active) > itemCap*2 {
		ki.active = append([]store.Ref(nil), ki.active[len(ki.active)-itemCap:]...)
	}
}

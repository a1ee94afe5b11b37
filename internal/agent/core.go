// Package agent assembles the cognitive subsystems into one agent.
//
// The Core owns the store, the cognitive loop, the goal/task manager
// and the knowledge integrator, and is the only surface the host
// process talks to.
package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"agentzero/internal/config"
	"agentzero/internal/knowledge"
	"agentzero/internal/loop"
	"agentzero/internal/store"
	"agentzero/internal/tasks"
)

// Module is the contract every agent component satisfies.
type Module interface {
	Init() error
	Configure(directive string) error
	ID() string
}

// Core is the agent. It satisfies Module itself.
type Core struct {
	mu   sync.Mutex
	name string
	st   store.Store
	cfg  *config.Config
	log  *zap.Logger

	selfNode      store.Ref
	workingMemory store.Ref
	currentGoal   store.Ref

	loop      *loop.Loop
	tasks     *tasks.Manager
	knowledge *knowledge.Integrator

	knowledgeEnabled bool
	initialized      bool
}

var _ Module = (*Core)(nil)

// New creates an uninitialized Core. A nil cfg gets defaults.
func New(name string, st store.Store, cfg *config.Config, log *zap.Logger) *Core {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Core{
		name: name,
		st:   st,
		cfg:  cfg,
		log:  log.Named("agent"),
	}
}

// ID returns the agent name.
func (c *Core) ID() string { return c.name }

// Init creates the agent's identity nodes and constructs the enabled
// subsystems. Calling Init twice is an error.
func (c *Core) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.initialized {
		return fmt.Errorf("agent %s already initialized", c.name)
	}

	var err error
	if c.selfNode, err = c.st.CreateNode(store.NodeConcept, c.name); err != nil {
		return fmt.Errorf("create self node: %w", err)
	}
	if err := c.st.SetTruthValue(c.selfNode, store.TruthValue{Strength: 1, Confidence: 1}); err != nil {
		return fmt.Errorf("mark self node: %w", err)
	}
	if c.workingMemory, err = c.st.CreateNode(store.NodeConcept, c.name+"_WorkingMemory"); err != nil {
		return fmt.Errorf("create working memory: %w", err)
	}
	if c.currentGoal, err = c.st.CreateNode(store.NodeConcept, c.name+"_CurrentGoal"); err != nil {
		return fmt.Errorf("create current goal node: %w", err)
	}

	if c.cfg.Agent.GoalProcessing {
		c.tasks, err = tasks.New(c.st, c.log, c.name)
		if err != nil {
			return fmt.Errorf("init task manager: %w", err)
		}
		c.tasks.SetDecompositionEnabled(c.cfg.Tasks.Decomposition)
		c.tasks.SetPrioritySchedulingEnabled(c.cfg.Tasks.PriorityScheduling)
		c.tasks.SetMaxConcurrentTasks(c.cfg.Tasks.MaxConcurrent)
	}
	if c.cfg.Agent.KnowledgeIntegration {
		c.knowledge, err = knowledge.New(c.name, c.st, c.log)
		if err != nil {
			return fmt.Errorf("init knowledge integrator: %w", err)
		}
		c.knowledgeEnabled = true
	}
	if c.cfg.Agent.CognitiveLoop {
		c.loop = loop.New(c.log, loop.Phases{
			Perceive: c.perceive,
			Plan:     c.plan,
			Act:      c.act,
			Reflect:  c.reflect,
		})
		c.loop.ConfigurePhases(c.cfg.Loop.Perceive, c.cfg.Loop.Plan, c.cfg.Loop.Act, c.cfg.Loop.Reflect)
		c.loop.SetCycleInterval(c.cfg.Loop.CycleInterval)
		c.loop.SetPollInterval(c.cfg.Loop.PollInterval)
	}

	c.initialized = true
	c.log.Info("agent initialized",
		zap.String("agent", c.name),
		zap.Bool("cognitive_loop", c.loop != nil),
		zap.Bool("goal_processing", c.tasks != nil),
		zap.Bool("knowledge_integration", c.knowledge != nil))
	return nil
}

// Configure applies a key=value directive. Directives affecting
// subsystem construction only take effect before Init; the rest apply
// live.
func (c *Core) Configure(directive string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.cfg.ApplyDirective(directive); err != nil {
		return err
	}

	c.knowledgeEnabled = c.cfg.Agent.KnowledgeIntegration && c.knowledge != nil
	if c.tasks != nil {
		c.tasks.SetEnabled(c.cfg.Agent.GoalProcessing)
		c.tasks.SetDecompositionEnabled(c.cfg.Tasks.Decomposition)
		c.tasks.SetPrioritySchedulingEnabled(c.cfg.Tasks.PriorityScheduling)
		c.tasks.SetMaxConcurrentTasks(c.cfg.Tasks.MaxConcurrent)
	}
	if c.loop != nil {
		c.loop.SetCycleInterval(c.cfg.Loop.CycleInterval)
	}
	c.log.Debug("directive applied", zap.String("directive", directive))
	return nil
}

// Start launches the cognitive loop. Fails before Init or when the
// loop subsystem is disabled.
func (c *Core) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.initialized {
		return fmt.Errorf("agent %s not initialized", c.name)
	}
	if c.loop == nil {
		return fmt.Errorf("cognitive loop disabled for agent %s", c.name)
	}
	return c.loop.Start(ctx)
}

// Stop halts the cognitive loop, waiting for the in-flight cycle.
func (c *Core) Stop() {
	c.mu.Lock()
	l := c.loop
	c.mu.Unlock()
	if l != nil {
		l.Stop()
	}
}

// RunCycle executes one synchronous cognitive cycle.
func (c *Core) RunCycle(ctx context.Context) bool {
	c.mu.Lock()
	l := c.loop
	c.mu.Unlock()
	if l == nil {
		c.log.Warn("run cycle requested with cognitive loop disabled")
		return false
	}
	return l.RunCycle(ctx)
}

// SetGoal delegates to the goal/task manager and records the new goal
// against the agent's current-goal node.
func (c *Core) SetGoal(description string, autoDecompose bool) store.Ref {
	c.mu.Lock()
	tm := c.tasks
	goalNode := c.currentGoal
	c.mu.Unlock()
	if tm == nil {
		c.log.Warn("set goal requested with goal processing disabled")
		return store.NilRef
	}
	ref := tm.SetGoal(description, autoDecompose)
	if ref.IsNil() {
		return store.NilRef
	}
	if _, err := c.st.CreateRelation(store.RelEvaluation, []store.Ref{goalNode, ref}); err != nil {
		c.log.Warn("record current goal", zap.Error(err))
	}
	return ref
}

// Store exposes the agent's knowledge store.
func (c *Core) Store() store.Store { return c.st }

// Tasks exposes the goal/task manager, nil when disabled.
func (c *Core) Tasks() *tasks.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tasks
}

// Knowledge exposes the knowledge integrator, nil when disabled.
func (c *Core) Knowledge() *knowledge.Integrator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.knowledge
}

// perceive refreshes the working-memory mark so observers can see the
// agent is cycling.
func (c *Core) perceive(ctx context.Context) error {
	return c.st.SetTruthValue(c.workingMemory, store.TruthValue{Strength: 0.5, Confidence: 0.9})
}

// plan advances the task queue one step.
func (c *Core) plan(ctx context.Context) error {
	c.mu.Lock()
	tm := c.tasks
	c.mu.Unlock()
	if tm != nil {
		tm.ProcessTick()
	}
	return nil
}

// act mirrors whether a task is in flight onto the current-goal node.
func (c *Core) act(ctx context.Context) error {
	c.mu.Lock()
	tm := c.tasks
	goalNode := c.currentGoal
	c.mu.Unlock()
	busy := 0.0
	if tm != nil && !tm.CurrentTask().IsNil() {
		busy = 1.0
	}
	return c.st.SetTruthValue(goalNode, store.TruthValue{Strength: busy, Confidence: 0.9})
}

// reflect runs knowledge consolidation.
func (c *Core) reflect(ctx context.Context) error {
	c.mu.Lock()
	ki := c.knowledge
	enabled := c.knowledgeEnabled
	c.mu.Unlock()
	if ki != nil && enabled {
		ki.ProcessTick()
	}
	return nil
}

// Status reports a per-component snapshot. This is the host's only
// failure observation channel, so every component contributes even
// when disabled.
func (c *Core) Status() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := map[string]any{
		"agent": map[string]any{
			"name":        c.name,
			"initialized": c.initialized,
			"store_size":  c.st.Size(),
		},
	}
	if c.loop != nil {
		out["loop"] = c.loop.Status()
	} else {
		out["loop"] = map[string]any{"enabled": false}
	}
	if c.tasks != nil {
		out["tasks"] = c.tasks.Status()
	} else {
		out["tasks"] = map[string]any{"enabled": false}
	}
	if c.knowledge != nil {
		out["knowledge"] = c.knowledge.Status()
	} else {
		out["knowledge"] = map[string]any{"enabled": false}
	}
	return out
}

// Package tasks manages the agent's goal hierarchy and task queue.
//
// Goals and tasks live in the store as concept nodes whose truth
// values mirror achievement and lifecycle state. The Manager keeps the
// scheduling bookkeeping (priorities, dependencies, hierarchy edges)
// in memory and writes every state change back to the store.
package tasks

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"agentzero/internal/store"
)

const achievementThreshold = 0.8

// Manager owns goal decomposition and task scheduling for one agent.
type Manager struct {
	mu    sync.RWMutex
	st    store.Store
	log   *zap.Logger
	agent string

	taskContext   store.Ref
	goalContext   store.Ref
	execContext   store.Ref
	goalHierarchy store.Ref

	queue    []store.Ref
	status   map[store.Ref]Status
	priority map[store.Ref]Priority
	deps     map[store.Ref][]store.Ref
	children map[store.Ref][]store.Ref
	taskGoal map[store.Ref]store.Ref
	goalTask map[store.Ref]store.Ref

	currentGoal store.Ref
	currentTask store.Ref

	enabled            bool
	decomposition      bool
	priorityScheduling bool
	maxConcurrent      int
	activeCount        int
}

// New creates a Manager and its context nodes in the store.
func New(st store.Store, log *zap.Logger, agent string) (*Manager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		st:                 st,
		log:                log.Named("tasks"),
		agent:              agent,
		status:             make(map[store.Ref]Status),
		priority:           make(map[store.Ref]Priority),
		deps:               make(map[store.Ref][]store.Ref),
		children:           make(map[store.Ref][]store.Ref),
		taskGoal:           make(map[store.Ref]store.Ref),
		goalTask:           make(map[store.Ref]store.Ref),
		enabled:            true,
		decomposition:      true,
		priorityScheduling: true,
		maxConcurrent:      1,
	}
	var err error
	if m.taskContext, err = st.CreateNode(store.NodeConcept, agent+"_TaskContext"); err != nil {
		return nil, fmt.Errorf("create task context: %w", err)
	}
	if m.goalContext, err = st.CreateNode(store.NodeConcept, agent+"_GoalContext"); err != nil {
		return nil, fmt.Errorf("create goal context: %w", err)
	}
	if m.execContext, err = st.CreateNode(store.NodeConcept, agent+"_ExecutionContext"); err != nil {
		return nil, fmt.Errorf("create execution context: %w", err)
	}
	if m.goalHierarchy, err = st.CreateNode(store.NodeConcept, agent+"_GoalHierarchy"); err != nil {
		return nil, fmt.Errorf("create goal hierarchy: %w", err)
	}
	return m, nil
}

// SetGoal creates a top-level goal and makes it current. A previous
// goal is marked suspended rather than removed. With autoDecompose the
// goal is expanded through its archetype; otherwise it gets a single
// high-priority task.
func (m *Manager) SetGoal(description string, autoDecompose bool) store.Ref {
	m.mu.Lock()
	defer m.mu.Unlock()

	if strings.TrimSpace(description) == "" {
		m.log.Warn("ignoring empty goal description")
		return store.NilRef
	}
	if !m.currentGoal.IsNil() {
		if _, err := m.st.CreateRelation(store.RelSuspended, []store.Ref{m.currentGoal, m.goalContext}); err != nil {
			m.log.Warn("suspend previous goal", zap.Error(err))
		}
	}
	ref, err := m.createGoalNode(description)
	if err != nil {
		m.log.Warn("set goal", zap.Error(err))
		return store.NilRef
	}
	if _, err := m.st.CreateRelation(store.RelMember, []store.Ref{ref, m.goalHierarchy}); err != nil {
		m.log.Warn("link goal to hierarchy", zap.Error(err))
		return store.NilRef
	}
	m.currentGoal = ref

	if autoDecompose && m.decomposition {
		if _, err := m.decomposeLocked(ref); err != nil {
			m.log.Warn("decompose goal", zap.Error(err))
		}
	} else {
		if _, err := m.createTaskLocked(description, High, ref); err != nil {
			m.log.Warn("create goal task", zap.Error(err))
		}
	}
	m.log.Info("goal set", zap.String("description", description), zap.Bool("decomposed", autoDecompose && m.decomposition))
	return ref
}

// AddSubgoal creates a child goal under parent. Returns the nil ref
// on an unknown parent or empty description.
func (m *Manager) AddSubgoal(parent store.Ref, description string) store.Ref {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref, err := m.addSubgoalLocked(parent, description)
	if err != nil {
		m.log.Warn("add subgoal", zap.Error(err))
		return store.NilRef
	}
	return ref
}

func (m *Manager) addSubgoalLocked(parent store.Ref, description string) (store.Ref, error) {
	if strings.TrimSpace(description) == "" {
		return store.NilRef, fmt.Errorf("empty subgoal description")
	}
	if _, err := m.st.TypeOf(parent); err != nil {
		return store.NilRef, fmt.Errorf("parent goal: %w", err)
	}
	ref, err := m.createGoalNode(description)
	if err != nil {
		return store.NilRef, err
	}
	if _, err := m.st.CreateRelation(store.RelInheritance, []store.Ref{parent, ref}); err != nil {
		return store.NilRef, fmt.Errorf("link subgoal: %w", err)
	}
	if _, err := m.st.CreateRelation(store.RelEvaluation, []store.Ref{ref, parent}); err != nil {
		return store.NilRef, fmt.Errorf("assert subgoal-of: %w", err)
	}
	m.children[parent] = append(m.children[parent], ref)
	return ref, nil
}

func (m *Manager) createGoalNode(description string) (store.Ref, error) {
	ref, err := m.st.CreateNode(store.NodeConcept, "Goal_"+description)
	if err != nil {
		return store.NilRef, fmt.Errorf("create goal node: %w", err)
	}
	if err := m.st.SetTruthValue(ref, store.TruthValue{Strength: 0, Confidence: 0.9}); err != nil {
		return store.NilRef, fmt.Errorf("init goal truth value: %w", err)
	}
	if _, err := m.st.CreateRelation(store.RelMember, []store.Ref{ref, m.goalContext}); err != nil {
		return store.NilRef, fmt.Errorf("link goal to context: %w", err)
	}
	return ref, nil
}

// DecomposeGoal expands a goal into archetype subgoals, creating one
// task per subgoal. The first task gets high priority, the rest
// medium, and each task depends on the one before it.
func (m *Manager) DecomposeGoal(goal store.Ref) ([]store.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decomposeLocked(goal)
}

func (m *Manager) decomposeLocked(goal store.Ref) ([]store.Ref, error) {
	label, err := m.st.Label(goal)
	if err != nil {
		return nil, fmt.Errorf("decompose goal: %w", err)
	}
	description := strings.TrimPrefix(label, "Goal_")
	arch := matchArchetype(description)
	m.log.Info("decomposing goal",
		zap.String("description", description),
		zap.String("archetype", arch.name),
		zap.Int("subgoals", len(arch.subgoals)))

	subgoals := make([]store.Ref, 0, len(arch.subgoals))
	var prevTask store.Ref
	for i, name := range arch.subgoals {
		sub, err := m.addSubgoalLocked(goal, name)
		if err != nil {
			return nil, err
		}
		prio := Medium
		if i == 0 {
			prio = High
		}
		task, err := m.createTaskLocked(name, prio, sub)
		if err != nil {
			return nil, err
		}
		if !prevTask.IsNil() {
			if err := m.addDependencyLocked(task, prevTask); err != nil {
				return nil, err
			}
		}
		prevTask = task
		subgoals = append(subgoals, sub)
	}
	if _, err := m.st.CreateRelation(store.RelDecomposed, []store.Ref{goal}); err != nil {
		return nil, fmt.Errorf("mark goal decomposed: %w", err)
	}
	return subgoals, nil
}

// CreateTask creates a pending task with the given priority, bound to
// goal when goal is not the nil ref.
func (m *Manager) CreateTask(description string, prio Priority, goal store.Ref) (store.Ref, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createTaskLocked(description, prio, goal)
}

func (m *Manager) createTaskLocked(description string, prio Priority, goal store.Ref) (store.Ref, error) {
	if strings.TrimSpace(description) == "" {
		return store.NilRef, fmt.Errorf("empty task description")
	}
	ref, err := m.st.CreateNode(store.NodeConcept, "Task_"+description)
	if err != nil {
		return store.NilRef, fmt.Errorf("create task node: %w", err)
	}
	if err := m.st.SetTruthValue(ref, store.TruthValue{Strength: prio.strength(), Confidence: 0.9}); err != nil {
		return store.NilRef, fmt.Errorf("init task truth value: %w", err)
	}
	if _, err := m.st.CreateRelation(store.RelMember, []store.Ref{ref, m.taskContext}); err != nil {
		return store.NilRef, fmt.Errorf("link task to context: %w", err)
	}
	if !goal.IsNil() {
		if _, err := m.st.CreateRelation(store.RelEvaluation, []store.Ref{ref, goal}); err != nil {
			return store.NilRef, fmt.Errorf("bind task to goal: %w", err)
		}
		m.taskGoal[ref] = goal
		m.goalTask[goal] = ref
	}
	m.queue = append(m.queue, ref)
	m.status[ref] = Pending
	m.priority[ref] = prio
	return ref, nil
}

// AddTaskDependency makes task wait for dep to complete. Cycles are
// not detected; a cyclic chain simply never becomes ready.
func (m *Manager) AddTaskDependency(task, dep store.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addDependencyLocked(task, dep)
}

func (m *Manager) addDependencyLocked(task, dep store.Ref) error {
	if _, ok := m.status[task]; !ok {
		return fmt.Errorf("unknown task %s", task)
	}
	if _, ok := m.status[dep]; !ok {
		return fmt.Errorf("unknown dependency %s", dep)
	}
	m.deps[task] = append(m.deps[task], dep)
	if _, err := m.st.CreateRelation(store.RelSequential, []store.Ref{task, dep}); err != nil {
		return fmt.Errorf("link dependency: %w", err)
	}
	return nil
}

// ready reports whether all of a task's dependencies completed.
func (m *Manager) ready(task store.Ref) bool {
	for _, dep := range m.deps[task] {
		if m.status[dep] != Completed {
			return false
		}
	}
	return true
}

// NextTask returns the next runnable pending task. With priority
// scheduling on, the highest priority wins and ties break by creation
// order; with it off, the first ready task in creation order wins.
func (m *Manager) NextTask() (store.Ref, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextTaskLocked()
}

func (m *Manager) nextTaskLocked() (store.Ref, bool) {
	best := store.NilRef
	for _, ref := range m.queue {
		if m.status[ref] != Pending || !m.ready(ref) {
			continue
		}
		if !m.priorityScheduling {
			return ref, true
		}
		if best.IsNil() || m.priority[ref] > m.priority[best] {
			best = ref
		}
	}
	return best, !best.IsNil()
}

// ActivateTask moves a pending or suspended task to active.
func (m *Manager) ActivateTask(task store.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activateLocked(task)
}

func (m *Manager) activateLocked(task store.Ref) error {
	if m.activeCount >= m.maxConcurrent {
		return fmt.Errorf("active task limit %d reached", m.maxConcurrent)
	}
	if err := m.transition(task, Active); err != nil {
		return err
	}
	m.activeCount++
	m.currentTask = task
	return nil
}

// CompleteTask finishes a pending or active task. Success credits the
// linked subgoal with full achievement; failure marks the task failed.
// Completing a pending task resolves it without scheduling it.
func (m *Manager) CompleteTask(task store.Ref, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completeLocked(task, success)
}

func (m *Manager) completeLocked(task store.Ref, success bool) error {
	to := Completed
	if !success {
		to = Failed
	}
	wasActive := m.status[task] == Active
	if err := m.transition(task, to); err != nil {
		return err
	}
	if wasActive {
		m.taskFinished(task)
	}
	if goal, ok := m.taskGoal[task]; ok && success {
		if err := m.st.SetTruthValue(goal, store.TruthValue{Strength: 1.0, Confidence: 0.9}); err != nil {
			return fmt.Errorf("credit subgoal: %w", err)
		}
	}
	return nil
}

// CancelTask cancels a pending or active task.
func (m *Manager) CancelTask(task store.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wasActive := m.status[task] == Active
	if err := m.transition(task, Cancelled); err != nil {
		return err
	}
	if wasActive {
		m.taskFinished(task)
	}
	return nil
}

// SuspendTask parks an active task.
func (m *Manager) SuspendTask(task store.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.transition(task, Suspended); err != nil {
		return err
	}
	m.taskFinished(task)
	if _, err := m.st.CreateRelation(store.RelSuspended, []store.Ref{task, m.execContext}); err != nil {
		return fmt.Errorf("record suspension: %w", err)
	}
	return nil
}

// ResumeTask reactivates a suspended task.
func (m *Manager) ResumeTask(task store.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status[task] != Suspended {
		return fmt.Errorf("task %s is not suspended", task)
	}
	return m.activateLocked(task)
}

// taskFinished clears active bookkeeping after a terminal or
// suspending transition. Callers hold the lock.
func (m *Manager) taskFinished(task store.Ref) {
	if m.activeCount > 0 {
		m.activeCount--
	}
	if m.currentTask == task {
		m.currentTask = store.NilRef
	}
}

// transition applies a lifecycle edge and mirrors it into the store.
// Callers hold the lock.
func (m *Manager) transition(task store.Ref, to Status) error {
	from, ok := m.status[task]
	if !ok {
		return fmt.Errorf("unknown task %s", task)
	}
	if !canTransition(from, to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	if err := m.st.SetTruthValue(task, store.TruthValue{Strength: to.strength(), Confidence: 0.9}); err != nil {
		return fmt.Errorf("record status: %w", err)
	}
	m.status[task] = to
	m.log.Debug("task transition",
		zap.String("task", string(task)),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
	return nil
}

// TaskStatusOf returns the lifecycle state of a known task.
func (m *Manager) TaskStatusOf(task store.Ref) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.status[task]
	return s, ok
}

// TasksByStatus returns tasks in creation order filtered by status.
func (m *Manager) TasksByStatus(s Status) []store.Ref {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []store.Ref
	for _, ref := range m.queue {
		if m.status[ref] == s {
			out = append(out, ref)
		}
	}
	return out
}

// PendingCount returns the number of pending tasks.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, ref := range m.queue {
		if m.status[ref] == Pending {
			n++
		}
	}
	return n
}

// ClearPending cancels every pending task and reports how many.
func (m *Manager) ClearPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ref := range m.queue {
		if m.status[ref] != Pending {
			continue
		}
		if err := m.transition(ref, Cancelled); err != nil {
			m.log.Warn("clear pending", zap.Error(err))
			continue
		}
		n++
	}
	return n
}

// GoalAchievement scores a goal by the confidence-weighted average of
// its subgoal scores. Leaf goals score as their bound task's status,
// or as their own stored truth value when taskless. When every
// subgoal scores above the achievement threshold the parent earns a
// small bonus.
func (m *Manager) GoalAchievement(goal store.Ref) store.TruthValue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.achievement(goal, make(map[store.Ref]bool))
}

func (m *Manager) achievement(goal store.Ref, visited map[store.Ref]bool) store.TruthValue {
	if visited[goal] {
		return store.TruthValue{}
	}
	visited[goal] = true

	kids := m.children[goal]
	if len(kids) == 0 {
		return m.leafAchievement(goal)
	}

	var weighted, confSum float64
	allHigh := true
	for _, kid := range kids {
		tv := m.achievement(kid, visited)
		weighted += tv.Strength * tv.Confidence
		confSum += tv.Confidence
		if tv.Strength <= achievementThreshold {
			allHigh = false
		}
	}
	if confSum == 0 {
		return store.TruthValue{}
	}
	tv := store.TruthValue{
		Strength:   weighted / confSum,
		Confidence: confSum / float64(len(kids)),
	}
	if allHigh {
		tv.Strength = min(tv.Strength+0.1, 1.0)
		tv.Confidence = min(tv.Confidence+0.05, 0.95)
	}
	return tv
}

func (m *Manager) leafAchievement(goal store.Ref) store.TruthValue {
	if task, ok := m.goalTask[goal]; ok {
		switch m.status[task] {
		case Completed:
			return store.TruthValue{Strength: 1.0, Confidence: 0.9}
		case Active:
			return store.TruthValue{Strength: 0.5, Confidence: 0.9}
		default:
			return store.TruthValue{Strength: 0, Confidence: 0.9}
		}
	}
	tv, err := m.st.GetTruthValue(goal)
	if err != nil {
		return store.TruthValue{Strength: 0, Confidence: 0.1}
	}
	return tv
}

// IsGoalAchieved reports whether a goal's achievement strength clears
// the threshold.
func (m *Manager) IsGoalAchieved(goal store.Ref) bool {
	return m.GoalAchievement(goal).Strength > achievementThreshold
}

// CurrentGoal returns the active top-level goal, or the nil ref.
func (m *Manager) CurrentGoal() store.Ref {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentGoal
}

// CurrentTask returns the task being worked, or the nil ref.
func (m *Manager) CurrentTask() store.Ref {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentTask
}

// SetEnabled toggles goal processing in ProcessTick.
func (m *Manager) SetEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = on
}

// SetDecompositionEnabled toggles archetype decomposition in SetGoal.
func (m *Manager) SetDecompositionEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decomposition = on
}

// SetPrioritySchedulingEnabled toggles priority ordering in NextTask.
func (m *Manager) SetPrioritySchedulingEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.priorityScheduling = on
}

// SetMaxConcurrentTasks bounds simultaneously active tasks.
func (m *Manager) SetMaxConcurrentTasks(n int) {
	if n < 1 {
		n = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxConcurrent = n
}

// ProcessTick advances the task queue one step. With no task in
// flight it activates the next ready task; otherwise it completes the
// current one. Returns false when disabled or idle with nothing
// ready.
func (m *Manager) ProcessTick() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.enabled {
		return false
	}
	if m.currentTask.IsNil() {
		next, ok := m.nextTaskLocked()
		if !ok {
			return false
		}
		if err := m.activateLocked(next); err != nil {
			m.log.Warn("activate task", zap.Error(err))
			return false
		}
		return true
	}
	if err := m.completeLocked(m.currentTask, true); err != nil {
		m.log.Warn("complete task", zap.Error(err))
		return false
	}
	return true
}

// Status reports queue counters for the agent status surface.
func (m *Manager) Status() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int)
	for _, ref := range m.queue {
		counts[m.status[ref].String()]++
	}
	return map[string]any{
		"enabled":             m.enabled,
		"decomposition":       m.decomposition,
		"priority_scheduling": m.priorityScheduling,
		"total_tasks":         len(m.queue),
		"status_counts":       counts,
		"active_count":        m.activeCount,
		"max_concurrent":      m.maxConcurrent,
		"has_goal":            !m.currentGoal.IsNil(),
		"has_task":            !m.currentTask.IsNil(),
	}
}

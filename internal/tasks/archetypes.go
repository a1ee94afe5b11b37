package tasks

import "strings"

// archetype is a reusable decomposition template. A goal matches the
// first archetype whose keywords appear in its description.
type archetype struct {
	name     string
	keywords []string
	subgoals []string
}

// archetypes are checked in order; the generic template matches last.
var archetypes = []archetype{
	{
		name:     "learning",
		keywords: []string{"learn", "study"},
		subgoals: []string{
			"Identify_Learning_Objectives",
			"Gather_Resources",
			"Acquire_Knowledge",
			"Practice_Skills",
			"Validate_Understanding",
		},
	},
	{
		name:     "problem-solving",
		keywords: []string{"solve", "problem"},
		subgoals: []string{
			"Define_Problem",
			"Analyze_Constraints",
			"Generate_Solutions",
			"Evaluate_Options",
			"Implement_Solution",
			"Test_Result",
		},
	},
	{
		name:     "creation",
		keywords: []string{"create", "build"},
		subgoals: []string{
			"Conceptualize_Design",
			"Plan_Implementation",
			"Gather_Resources",
			"Execute_Construction",
			"Test_Quality",
			"Refine_Output",
		},
	},
	{
		name:     "communication",
		keywords: []string{"communicate", "interact"},
		subgoals: []string{
			"Understand_Context",
			"Plan_Message",
			"Select_Medium",
			"Deliver_Communication",
			"Verify_Understanding",
		},
	},
	{
		name:     "generic",
		keywords: nil,
		subgoals: []string{
			"Analyze_Goal_Context",
			"Plan_Approach",
			"Identify_Resources",
			"Execute_Actions",
			"Monitor_Progress",
			"Verify_Achievement",
		},
	},
}

// matchArchetype selects the decomposition template for a goal
// description. The generic archetype always matches.
func matchArchetype(description string) archetype {
	lower := strings.ToLower(description)
	for _, a := range archetypes {
		if len(a.keywords) == 0 {
			return a
		}
		for _, kw := range a.keywords {
			if strings.Contains(lower, kw) {
				return a
			}
		}
	}
	return archetypes[len(archetypes)-1]
}

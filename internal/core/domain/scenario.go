package domain

import "strings"

// Scenario is a scripted sequence of computation rounds.
type Scenario struct {
	Name   string
	Rounds []Round
}

// Round is one computation cycle. Calls run in order.
type Round struct {
	Calls []ScenarioCall
}

// ScenarioCall is one call in a round. Name binds the result for later calls.
type ScenarioCall struct {
	Name     string
	Function string
	Inputs   map[string]any
}

// ScenarioRefPrefix marks an input string that refers to an earlier call result.
const ScenarioRefPrefix = "$"

// ScenarioRef returns the referenced call name when v is a "$name" string.
// A reference may select a field of a record result with "$name.field".
func ScenarioRef(v any) (string, bool) {
	name, _, ok := ScenarioRefPath(v)
	return name, ok
}

// ScenarioRefPath splits a "$name.field.field" reference into the call name and
// the field path.
func ScenarioRefPath(v any) (string, []string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, ScenarioRefPrefix) {
		return "", nil, false
	}
	parts := strings.Split(strings.TrimPrefix(s, ScenarioRefPrefix), ".")
	if parts[0] == "" {
		return "", nil, false
	}
	return parts[0], parts[1:], true
}

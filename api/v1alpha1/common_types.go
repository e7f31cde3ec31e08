package v1alpha1

type ObjectRef struct {
	Name string `json:"name"`
}

const (
	// ConditionReady is True when a Component is registered at its spec
	// version and its dependency plan resolves.
	ConditionReady = "Ready"
	// ConditionResolved reports the outcome of the last resolution.
	ConditionResolved = "Resolved"
	// ConditionComplete is True once a ComponentSwap reached a final phase.
	ConditionComplete = "Complete"
	// ConditionSucceeded is True when a ComponentSwap committed.
	ConditionSucceeded = "Succeeded"
)

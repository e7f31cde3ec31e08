package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// ComponentSwap requests one hot swap of a Component. A swap runs once; the
// object then records the transaction outcome.
//
// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster,shortName=cswap
// +kubebuilder:printcolumn:name="Component",type=string,JSONPath=`.spec.componentRef.name`
// +kubebuilder:printcolumn:name="Version",type=string,JSONPath=`.spec.version`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
type ComponentSwap struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ComponentSwapSpec   `json:"spec"`
	Status ComponentSwapStatus `json:"status,omitempty"`
}

type ComponentSwapSpec struct {
	ComponentRef ObjectRef `json:"componentRef"`

	// Version is the candidate SemVerX version.
	// +kubebuilder:validation:MinLength=1
	Version string `json:"version"`

	Payload string `json:"payload,omitempty"`

	// Checksum, when set, is the hex SHA-256 the payload must hash to.
	Checksum string `json:"checksum,omitempty"`
}

// Swap phases recorded in ComponentSwapStatus.Phase. The transaction phases
// come from the engine; Rejected marks a swap refused before any mutation.
const (
	SwapPhaseRejected   = "Rejected"
	SwapPhaseCommitted  = "Committed"
	SwapPhaseRolledBack = "RolledBack"
	SwapPhaseFailed     = "Failed"
)

type ComponentSwapStatus struct {
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	Phase         string   `json:"phase,omitempty"`
	TransactionID string   `json:"transactionID,omitempty"`
	History       []string `json:"history,omitempty"`

	// PreviousVersion is the version that was live when the swap started.
	PreviousVersion string `json:"previousVersion,omitempty"`

	CompletionTime *metav1.Time       `json:"completionTime,omitempty"`
	Message        string             `json:"message,omitempty"`
	Conditions     []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
type ComponentSwapList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ComponentSwap `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ComponentSwap{}, &ComponentSwapList{})
}

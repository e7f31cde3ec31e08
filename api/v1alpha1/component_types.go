package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Component is a versioned unit of content registered with the swap core.
// The object name is the component name; dependency targets name other
// Components.
//
// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Cluster,shortName=comp
// +kubebuilder:printcolumn:name="Version",type=string,JSONPath=`.status.version`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`
type Component struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ComponentSpec   `json:"spec"`
	Status ComponentStatus `json:"status,omitempty"`
}

type ComponentSpec struct {
	// Version is a SemVerX version, e.g. 1.stable.2.stable.0.stable.
	// +kubebuilder:validation:MinLength=1
	Version string `json:"version"`

	// Payload is the component content.
	Payload string `json:"payload,omitempty"`

	Dependencies []ComponentDependency `json:"dependencies,omitempty"`
}

type ComponentDependency struct {
	// Target is the name of the Component depended on.
	Target string `json:"target"`

	// Constraint is a version range such as "^1.0.0". Empty accepts any version.
	Constraint string `json:"constraint,omitempty"`

	// Weight is the path cost of the dependency. Zero means 1.
	// +kubebuilder:validation:Minimum=0
	Weight int32 `json:"weight,omitempty"`

	Optional bool `json:"optional,omitempty"`
}

type ComponentStatus struct {
	ObservedGeneration int64 `json:"observedGeneration,omitempty"`

	// Phase is Ready, Pending or Error.
	Phase string `json:"phase,omitempty"`

	// Version is the live version in the registry.
	Version string `json:"version,omitempty"`

	// Checksum is the hex SHA-256 of the live payload.
	Checksum string `json:"checksum,omitempty"`

	// ResolvedOrder lists name@version identifiers, dependencies first.
	ResolvedOrder []string `json:"resolvedOrder,omitempty"`

	Message    string             `json:"message,omitempty"`
	Conditions []metav1.Condition `json:"conditions,omitempty"`
}

// +kubebuilder:object:root=true
type ComponentList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Component `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Component{}, &ComponentList{})
}

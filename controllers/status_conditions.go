package controllers

import (
	"errors"

	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	semverxv1alpha1 "github.com/anvil-platform/semverx/api/v1alpha1"
	"github.com/anvil-platform/semverx/internal/graph"
	"github.com/anvil-platform/semverx/internal/hotswap"
	"github.com/anvil-platform/semverx/internal/registry"
	"github.com/anvil-platform/semverx/internal/resolver"
	"github.com/anvil-platform/semverx/internal/semver"
)

const (
	ComponentPhaseReady   = "Ready"
	ComponentPhasePending = "Pending"
	ComponentPhaseError   = "Error"
)

func setComponentCondition(comp *semverxv1alpha1.Component, condition metav1.Condition) {
	if comp == nil {
		return
	}
	condition.ObservedGeneration = comp.Generation
	meta.SetStatusCondition(&comp.Status.Conditions, condition)
}

func setSwapCondition(swap *semverxv1alpha1.ComponentSwap, condition metav1.Condition) {
	if swap == nil {
		return
	}
	condition.ObservedGeneration = swap.Generation
	meta.SetStatusCondition(&swap.Status.Conditions, condition)
}

// conditionReason classifies core errors into CamelCase condition reasons.
func conditionReason(err error) string {
	var perr *semver.ParseError
	switch {
	case errors.As(err, &perr):
		return "InvalidVersion"
	case errors.Is(err, resolver.ErrCyclicDependency):
		return "CyclicDependency"
	case errors.Is(err, resolver.ErrVersionConflict):
		return "VersionConflict"
	case errors.Is(err, resolver.ErrInvalidConstraint):
		return "InvalidConstraint"
	case errors.Is(err, hotswap.ErrFatal):
		return "Fatal"
	case errors.Is(err, hotswap.ErrRolledBack):
		return "RolledBack"
	case errors.Is(err, hotswap.ErrSwapInProgress):
		return "SwapInProgress"
	case errors.Is(err, hotswap.ErrSwapRejected):
		return "SwapRejected"
	case errors.Is(err, registry.ErrCorruption), errors.Is(err, hotswap.ErrBadSignature):
		return "Corruption"
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, graph.ErrNodeNotFound):
		return "DependencyNotFound"
	case errors.Is(err, registry.ErrInvalidComponent):
		return "InvalidComponent"
	default:
		return "Error"
	}
}

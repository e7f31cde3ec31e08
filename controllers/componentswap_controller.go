package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	semverxv1alpha1 "github.com/anvil-platform/semverx/api/v1alpha1"
	"github.com/anvil-platform/semverx/internal/catalog"
	"github.com/anvil-platform/semverx/internal/hotswap"
	"github.com/anvil-platform/semverx/internal/registry"
)

// ComponentSwapReconciler runs each ComponentSwap through the hot-swap engine
// once. A committed swap is written back to the Component's spec so the
// ComponentReconciler sees no drift.
//
// RBAC:
// +kubebuilder:rbac:groups=semverx.anvil.dev,resources=componentswaps,verbs=get;list;watch
// +kubebuilder:rbac:groups=semverx.anvil.dev,resources=componentswaps/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=semverx.anvil.dev,resources=components,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch;update
type ComponentSwapReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	Catalog *catalog.Catalog
	Engine  *hotswap.Engine
	Store   Persister
}

func (r *ComponentSwapReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	semverxControllerReconcileTotal.WithLabelValues("ComponentSwap").Inc()
	logger := log.FromContext(ctx).WithValues("controller", "ComponentSwap", "swap", req.Name)

	var swap semverxv1alpha1.ComponentSwap
	if err := r.Get(ctx, req.NamespacedName, &swap); err != nil {
		if client.IgnoreNotFound(err) == nil {
			return ctrl.Result{}, nil
		}
		semverxControllerReconcileErrorTotal.WithLabelValues("ComponentSwap").Inc()
		return ctrl.Result{}, err
	}
	if swapFinished(swap.Status.Phase) {
		return ctrl.Result{}, nil
	}

	name := swap.Spec.ComponentRef.Name
	logger = logger.WithValues("component", name, "version", swap.Spec.Version)

	var comp semverxv1alpha1.Component
	if err := r.Get(ctx, types.NamespacedName{Name: name}, &comp); err != nil {
		if apierrors.IsNotFound(err) {
			if perr := r.patchPending(ctx, &swap, "ComponentNotFound", fmt.Sprintf("Component %q not found", name)); perr != nil {
				return ctrl.Result{}, perr
			}
			return ctrl.Result{RequeueAfter: 10 * time.Second}, nil
		}
		semverxControllerReconcileErrorTotal.WithLabelValues("ComponentSwap").Inc()
		return ctrl.Result{}, err
	}
	if !r.Catalog.Registry().Has(name) {
		// The Component has not been reconciled into the catalog yet.
		if perr := r.patchPending(ctx, &swap, "ComponentNotRegistered", fmt.Sprintf("Component %q is not registered yet", name)); perr != nil {
			return ctrl.Result{}, perr
		}
		return ctrl.Result{RequeueAfter: 5 * time.Second}, nil
	}

	previous, err := r.Catalog.Get(name)
	if err != nil {
		return ctrl.Result{}, err
	}
	tx, err := r.Engine.Swap(logr.NewContext(ctx, logger), hotswap.Request{
		Name:     name,
		Version:  swap.Spec.Version,
		Payload:  []byte(swap.Spec.Payload),
		Checksum: swap.Spec.Checksum,
	})
	if errors.Is(err, hotswap.ErrSwapInProgress) {
		return ctrl.Result{RequeueAfter: time.Second}, nil
	}

	phase := string(tx.Phase)
	if err != nil && tx.Phase == hotswap.PhaseValidating {
		phase = semverxv1alpha1.SwapPhaseRejected
	}
	componentSwapsTotal.WithLabelValues(phase).Inc()

	if tx.Phase == hotswap.PhaseCommitted {
		if perr := r.syncComponent(ctx, &comp, swap.Spec); perr != nil {
			logger.Error(perr, "failed to update component spec after swap")
			r.recordEventf(&swap, corev1.EventTypeWarning, "ComponentUpdateFailed", "Failed to update Component %q: %v", name, perr)
		}
		if r.Store != nil {
			if live, gerr := r.Catalog.Get(name); gerr == nil {
				if perr := r.Store.Put(registry.ToRecord(live)); perr != nil {
					logger.Error(perr, "failed to persist component")
				}
			}
		}
	}

	before := swap.DeepCopy()
	now := metav1.Now()
	swap.Status.ObservedGeneration = swap.Generation
	swap.Status.Phase = phase
	swap.Status.TransactionID = tx.ID.String()
	swap.Status.PreviousVersion = previous.Version.String()
	swap.Status.History = swap.Status.History[:0]
	for _, p := range tx.History {
		swap.Status.History = append(swap.Status.History, string(p))
	}
	swap.Status.CompletionTime = &now
	swap.Status.Message = ""
	setSwapCondition(&swap, metav1.Condition{
		Type:   semverxv1alpha1.ConditionComplete,
		Status: metav1.ConditionTrue,
		Reason: phase,
	})
	if err != nil {
		swap.Status.Message = err.Error()
		setSwapCondition(&swap, metav1.Condition{
			Type:    semverxv1alpha1.ConditionSucceeded,
			Status:  metav1.ConditionFalse,
			Reason:  conditionReason(err),
			Message: err.Error(),
		})
		r.recordEventf(&swap, corev1.EventTypeWarning, conditionReason(err), "Swap of %s to %s ended in %s: %v", name, swap.Spec.Version, phase, err)
		logger.Info("swap did not commit", "phase", phase, "error", err.Error())
	} else {
		setSwapCondition(&swap, metav1.Condition{
			Type:    semverxv1alpha1.ConditionSucceeded,
			Status:  metav1.ConditionTrue,
			Reason:  phase,
			Message: fmt.Sprintf("%s -> %s", previous.ID(), tx.Candidate.ID()),
		})
		r.recordEventf(&swap, corev1.EventTypeNormal, phase, "Swapped %s from %s to %s", name, previous.Version.String(), swap.Spec.Version)
	}
	if perr := r.Status().Patch(ctx, &swap, client.MergeFrom(before)); perr != nil {
		semverxControllerReconcileErrorTotal.WithLabelValues("ComponentSwap").Inc()
		return ctrl.Result{}, perr
	}
	if errors.Is(err, hotswap.ErrFatal) {
		semverxControllerReconcileErrorTotal.WithLabelValues("ComponentSwap").Inc()
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

// syncComponent writes a committed swap into the Component's spec.
func (r *ComponentSwapReconciler) syncComponent(ctx context.Context, comp *semverxv1alpha1.Component, spec semverxv1alpha1.ComponentSwapSpec) error {
	before := comp.DeepCopy()
	comp.Spec.Version = spec.Version
	comp.Spec.Payload = spec.Payload
	return r.Patch(ctx, comp, client.MergeFrom(before))
}

func (r *ComponentSwapReconciler) patchPending(ctx context.Context, swap *semverxv1alpha1.ComponentSwap, reason, message string) error {
	before := swap.DeepCopy()
	swap.Status.ObservedGeneration = swap.Generation
	swap.Status.Phase = "Pending"
	swap.Status.Message = message
	setSwapCondition(swap, metav1.Condition{
		Type:    semverxv1alpha1.ConditionComplete,
		Status:  metav1.ConditionFalse,
		Reason:  reason,
		Message: message,
	})
	return r.Status().Patch(ctx, swap, client.MergeFrom(before))
}

func (r *ComponentSwapReconciler) recordEventf(obj client.Object, eventType, reason, messageFmt string, args ...any) {
	if r.Recorder == nil || obj == nil {
		return
	}
	r.Recorder.Eventf(obj, eventType, reason, messageFmt, args...)
}

func (r *ComponentSwapReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&semverxv1alpha1.ComponentSwap{}).
		Complete(r)
}

func swapFinished(phase string) bool {
	switch phase {
	case semverxv1alpha1.SwapPhaseRejected,
		semverxv1alpha1.SwapPhaseCommitted,
		semverxv1alpha1.SwapPhaseRolledBack,
		semverxv1alpha1.SwapPhaseFailed:
		return true
	}
	return false
}

package controllers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/handler"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	semverxv1alpha1 "github.com/anvil-platform/semverx/api/v1alpha1"
	"github.com/anvil-platform/semverx/internal/catalog"
	"github.com/anvil-platform/semverx/internal/hotswap"
	"github.com/anvil-platform/semverx/internal/registry"
	"github.com/anvil-platform/semverx/internal/resolver"
	"github.com/anvil-platform/semverx/internal/semver"
)

const (
	labelManagedBy = "semverx.anvil.dev/managed-by"
	labelComponent = "semverx.anvil.dev/component"

	managedByComponentController = "component-controller"

	indexDependencyTarget = ".spec.dependencies[*].target"
)

// Persister mirrors catalog changes into durable storage. *store.Badger
// satisfies it.
type Persister interface {
	Put(registry.Record) error
	Delete(name string) error
}

// ComponentReconciler keeps the in-process catalog in step with Component
// objects. Spec changes to a registered component go through the hot-swap
// engine; dependency changes relink it.
//
// RBAC:
// +kubebuilder:rbac:groups=semverx.anvil.dev,resources=components,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=semverx.anvil.dev,resources=components/status,verbs=get;update;patch
// +kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch;update
type ComponentReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder

	Catalog  *catalog.Catalog
	Resolver resolver.Resolver
	Engine   *hotswap.Engine
	Store    Persister

	// Namespace receives one ConfigMap per component carrying its live
	// payload. Empty disables publishing.
	Namespace string
}

func (r *ComponentReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	semverxControllerReconcileTotal.WithLabelValues("Component").Inc()
	logger := log.FromContext(ctx).WithValues("controller", "Component", "component", req.Name)
	ctx = logr.NewContext(ctx, logger)

	var comp semverxv1alpha1.Component
	if err := r.Get(ctx, req.NamespacedName, &comp); err != nil {
		if client.IgnoreNotFound(err) != nil {
			semverxControllerReconcileErrorTotal.WithLabelValues("Component").Inc()
			return ctrl.Result{}, err
		}
		err := r.forget(ctx, req.Name)
		if errors.Is(err, hotswap.ErrSwapInProgress) {
			return ctrl.Result{RequeueAfter: time.Second}, nil
		}
		return ctrl.Result{}, err
	}

	desired, err := desiredComponent(&comp)
	if err != nil {
		return ctrl.Result{}, r.fail(ctx, &comp, ComponentPhaseError, err, nil)
	}

	live, err := r.apply(ctx, &comp, desired)
	if err != nil {
		if errors.Is(err, hotswap.ErrSwapInProgress) {
			return ctrl.Result{RequeueAfter: time.Second}, nil
		}
		ferr := r.fail(ctx, &comp, ComponentPhaseError, err, nil)
		if errors.Is(err, hotswap.ErrFatal) {
			semverxControllerReconcileErrorTotal.WithLabelValues("Component").Inc()
			return ctrl.Result{}, errors.Join(err, ferr)
		}
		return ctrl.Result{}, ferr
	}
	componentsRegistered.Set(float64(r.Catalog.Registry().Len()))

	start := time.Now()
	plan, err := r.Resolver.Resolve(ctx, resolver.Request{Name: live.Name, Version: live.Version})
	componentResolutionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		phase := ComponentPhaseError
		if conditionReason(err) == "DependencyNotFound" {
			phase = ComponentPhasePending
		}
		return ctrl.Result{}, r.fail(ctx, &comp, phase, err, &live)
	}

	if err := r.publish(ctx, &comp, live); err != nil {
		logger.Error(err, "failed to publish configmap")
		r.recordEventf(&comp, corev1.EventTypeWarning, "PublishFailed", "Failed to publish ConfigMap: %v", err)
		semverxControllerReconcileErrorTotal.WithLabelValues("Component").Inc()
		return ctrl.Result{}, err
	}

	before := comp.DeepCopy()
	comp.Status.ObservedGeneration = comp.Generation
	comp.Status.Phase = ComponentPhaseReady
	comp.Status.Version = live.Version.String()
	comp.Status.Checksum = live.Checksum.String()
	comp.Status.ResolvedOrder = plan.IDs()
	comp.Status.Message = ""
	setComponentCondition(&comp, metav1.Condition{
		Type:    semverxv1alpha1.ConditionResolved,
		Status:  metav1.ConditionTrue,
		Reason:  "Resolved",
		Message: fmt.Sprintf("%d component(s) in plan", len(plan.Order)),
	})
	setComponentCondition(&comp, metav1.Condition{
		Type:   semverxv1alpha1.ConditionReady,
		Status: metav1.ConditionTrue,
		Reason: "Registered",
	})
	if err := r.Status().Patch(ctx, &comp, client.MergeFrom(before)); err != nil {
		semverxControllerReconcileErrorTotal.WithLabelValues("Component").Inc()
		return ctrl.Result{}, err
	}
	logger.V(1).Info("component ready", "version", live.Version.String(), "plan", plan.String())
	return ctrl.Result{}, nil
}

// apply brings the catalog entry for comp to desired and returns the live
// component.
func (r *ComponentReconciler) apply(ctx context.Context, comp *semverxv1alpha1.Component, desired registry.Component) (registry.Component, error) {
	current, err := r.Catalog.Get(desired.Name)
	if errors.Is(err, registry.ErrNotFound) {
		stored, err := r.Catalog.Register(desired)
		if err != nil {
			return registry.Component{}, err
		}
		r.persist(ctx, stored)
		r.recordEventf(comp, corev1.EventTypeNormal, "Registered", "Registered %s", stored.ID())
		return stored, nil
	}
	if err != nil {
		return registry.Component{}, err
	}

	live := current
	if !current.Version.Equal(desired.Version) || current.Checksum != desired.Checksum {
		tx, err := r.Engine.Swap(ctx, hotswap.Request{
			Name:    desired.Name,
			Version: desired.Version.String(),
			Payload: desired.Payload,
		})
		if err != nil {
			return registry.Component{}, err
		}
		if live, err = r.Catalog.Get(desired.Name); err != nil {
			return registry.Component{}, err
		}
		r.persist(ctx, live)
		r.recordEventf(comp, corev1.EventTypeNormal, "Swapped", "Swapped %s to %s (transaction %s)",
			desired.Name, live.Version.String(), tx.ID.String())
	}

	if !sameDependencies(live.Dependencies, desired.Dependencies) {
		// Relinking shares the swap slot so it never interleaves with a
		// transaction on the same component.
		err := r.Engine.Exclusive(desired.Name, func() error {
			relinked, err := r.Catalog.Relink(desired.Name, desired.Dependencies)
			if err != nil {
				return err
			}
			live = relinked
			return nil
		})
		if err != nil {
			return registry.Component{}, err
		}
		r.persist(ctx, live)
		r.recordEventf(comp, corev1.EventTypeNormal, "Relinked", "Dependencies of %s updated", desired.Name)
	}
	return live, nil
}

// forget removes a deleted Component from the catalog and the store. It
// fails with ErrSwapInProgress while the component is being swapped.
func (r *ComponentReconciler) forget(ctx context.Context, name string) error {
	err := r.Engine.Exclusive(name, func() error {
		return r.Catalog.Deregister(name)
	})
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return err
	}
	componentsRegistered.Set(float64(r.Catalog.Registry().Len()))
	if r.Store != nil {
		if err := r.Store.Delete(name); err != nil {
			log.FromContext(ctx).Error(err, "failed to delete stored component", "component", name)
		}
	}
	return nil
}

func (r *ComponentReconciler) persist(ctx context.Context, c registry.Component) {
	if r.Store == nil {
		return
	}
	if err := r.Store.Put(registry.ToRecord(c)); err != nil {
		log.FromContext(ctx).Error(err, "failed to persist component", "component", c.Name)
	}
}

// publish writes the live payload into a ConfigMap owned by comp.
func (r *ComponentReconciler) publish(ctx context.Context, comp *semverxv1alpha1.Component, live registry.Component) error {
	if r.Namespace == "" {
		return nil
	}
	cm := &corev1.ConfigMap{ObjectMeta: metav1.ObjectMeta{
		Name:      configMapName(comp.Name),
		Namespace: r.Namespace,
	}}
	_, err := controllerutil.CreateOrUpdate(ctx, r.Client, cm, func() error {
		if cm.Labels == nil {
			cm.Labels = map[string]string{}
		}
		cm.Labels[labelManagedBy] = managedByComponentController
		cm.Labels[labelComponent] = comp.Name
		cm.Data = map[string]string{
			"name":     live.Name,
			"version":  live.Version.String(),
			"checksum": live.Checksum.String(),
		}
		cm.BinaryData = map[string][]byte{"payload": live.Payload}
		return controllerutil.SetControllerReference(comp, cm, r.Scheme)
	})
	return err
}

// fail records cause on comp's status. live, when known, is the component the
// catalog holds.
func (r *ComponentReconciler) fail(ctx context.Context, comp *semverxv1alpha1.Component, phase string, cause error, live *registry.Component) error {
	reason := conditionReason(cause)
	log.FromContext(ctx).Info("component not ready", "reason", reason, "error", cause.Error())
	r.recordEventf(comp, corev1.EventTypeWarning, reason, "%v", cause)

	before := comp.DeepCopy()
	comp.Status.ObservedGeneration = comp.Generation
	comp.Status.Phase = phase
	comp.Status.Message = cause.Error()
	comp.Status.ResolvedOrder = nil
	if live != nil {
		comp.Status.Version = live.Version.String()
		comp.Status.Checksum = live.Checksum.String()
	}
	cond := metav1.Condition{
		Type:    semverxv1alpha1.ConditionReady,
		Status:  metav1.ConditionFalse,
		Reason:  reason,
		Message: cause.Error(),
	}
	setComponentCondition(comp, cond)
	cond.Type = semverxv1alpha1.ConditionResolved
	setComponentCondition(comp, cond)
	return r.Status().Patch(ctx, comp, client.MergeFrom(before))
}

func (r *ComponentReconciler) recordEventf(obj client.Object, eventType, reason, messageFmt string, args ...any) {
	if r.Recorder == nil || obj == nil {
		return
	}
	r.Recorder.Eventf(obj, eventType, reason, messageFmt, args...)
}

func (r *ComponentReconciler) SetupWithManager(mgr ctrl.Manager) error {
	if err := mgr.GetFieldIndexer().IndexField(context.Background(), &semverxv1alpha1.Component{}, indexDependencyTarget, func(obj client.Object) []string {
		c, ok := obj.(*semverxv1alpha1.Component)
		if !ok {
			return nil
		}
		out := make([]string, 0, len(c.Spec.Dependencies))
		for _, d := range c.Spec.Dependencies {
			if d.Target != "" {
				out = append(out, d.Target)
			}
		}
		return out
	}); err != nil {
		return err
	}

	b := ctrl.NewControllerManagedBy(mgr).
		For(&semverxv1alpha1.Component{}).
		// A component's plan depends on its dependencies; re-resolve dependents
		// whenever one of them changes.
		Watches(&semverxv1alpha1.Component{}, enqueueDependents(mgr.GetClient()))
	if r.Namespace != "" {
		b = b.Owns(&corev1.ConfigMap{})
	}
	return b.Complete(r)
}

func enqueueDependents(c client.Client) handler.EventHandler {
	return handler.EnqueueRequestsFromMapFunc(func(ctx context.Context, obj client.Object) []reconcile.Request {
		var dependents semverxv1alpha1.ComponentList
		if err := c.List(ctx, &dependents, client.MatchingFields{indexDependencyTarget: obj.GetName()}); err != nil {
			return nil
		}
		out := make([]reconcile.Request, 0, len(dependents.Items))
		for i := range dependents.Items {
			out = append(out, reconcile.Request{NamespacedName: types.NamespacedName{Name: dependents.Items[i].Name}})
		}
		return out
	})
}

// desiredComponent converts a Component object into the catalog's form.
func desiredComponent(comp *semverxv1alpha1.Component) (registry.Component, error) {
	v, err := semver.Parse(comp.Spec.Version)
	if err != nil {
		return registry.Component{}, err
	}
	out := registry.Component{
		Name:     comp.Name,
		Version:  v,
		Payload:  []byte(comp.Spec.Payload),
		Checksum: registry.Checksum([]byte(comp.Spec.Payload)),
	}
	for _, d := range comp.Spec.Dependencies {
		out.Dependencies = append(out.Dependencies, registry.Dependency{
			Target:     d.Target,
			Constraint: d.Constraint,
			Weight:     float64(d.Weight),
			Optional:   d.Optional,
		})
	}
	return out, nil
}

func sameDependencies(a, b []registry.Dependency) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func configMapName(component string) string {
	return "semverx-" + component
}

package compute

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/compute/container"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/repo"
)

// Reconciler is the periodic state-reconciliation worker: for every
// non-terminated instance, inspect the container and write through any
// observed drift. Operator-initiated transitions take precedence while
// in-flight, via the same per-instance mutex the Service holds for its
// own state changes.
type Reconciler struct {
	instances *repo.InstanceRepo
	driver    container.Driver
	locks     *cluster.KeyLock
	interval  time.Duration
	timeout   time.Duration
}

func NewReconciler(instances *repo.InstanceRepo, driver container.Driver, locks *cluster.KeyLock, interval, timeout time.Duration) *Reconciler {
	return &Reconciler{instances: instances, driver: driver, locks: locks, interval: interval, timeout: timeout}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// RunOnce reconciles every non-terminated instance a single time,
// exposed for the standalone "reconcile" CLI invocation.
func (r *Reconciler) RunOnce(ctx context.Context) { r.tick(ctx) }

func (r *Reconciler) tick(ctx context.Context) {
	instances, err := r.instances.ListAllNonTerminated()
	if err != nil {
		glog.Errorf("reconciler: list instances: %v", err)
		return
	}
	for _, in := range instances {
		r.reconcileOne(ctx, in)
	}
}

func (r *Reconciler) reconcileOne(ctx context.Context, in *model.Instance) {
	// A non-blocking TryLock would be ideal here so an operator-initiated
	// transition in flight is never delayed by the reconciler; KeyLock
	// only exposes blocking Lock, so a short timeout on the inspect call
	// itself bounds how long reconciliation can be held up instead.
	r.locks.WithLock(in.ID, func() error {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		if in.ContainerHandle == "" {
			return nil
		}
		state, err := r.driver.InspectContainer(cctx, in.ContainerHandle)
		if err != nil {
			glog.Warningf("reconciler: inspect instance %s: %v", in.Name, err)
			return nil
		}
		observed := ReconcileStatus(state.Status)
		if observed == in.Status {
			return nil
		}
		glog.Infof("reconciler: instance %s drifted %s -> %s", in.Name, in.Status, observed)
		in.Status = observed
		return r.instances.Update(in)
	})
}

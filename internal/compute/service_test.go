package compute

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/repo"
	"github.com/cloudemu/cloudemu/internal/testutil/fakedriver"
	"github.com/cloudemu/cloudemu/internal/testutil/tassert"
)

// stubBinder hands out sequential IPs from a fixed default subnet.
type stubBinder struct {
	next int
}

func (b *stubBinder) DefaultSubnet(ctx context.Context, projectID, region string) (string, string, string, error) {
	return "subnet-default", "default", region + "-default", nil
}

func (b *stubBinder) AllocateInternalIP(ctx context.Context, subnetID string) (string, error) {
	b.next++
	return fmt.Sprintf("10.128.0.%d", b.next+3), nil
}

func (b *stubBinder) ResolveSubnet(ctx context.Context, projectID, networkName, subnetName, region string) (string, string, error) {
	if networkName == "missing" {
		return "", "", cmn.NewNotFound("no network %s in project %s", networkName, projectID)
	}
	if subnetName == "" {
		subnetName = region + "-sub"
	}
	return "subnet-" + networkName, subnetName, nil
}

func (b *stubBinder) ReleaseInternalIP(ctx context.Context, subnetID, ip string) error { return nil }

func (b *stubBinder) AllocateEphemeralExternalIP(ctx context.Context, projectID, region string) (string, error) {
	return "34.1.2.3", nil
}

func (b *stubBinder) ReleaseEphemeralExternalIP(ctx context.Context, ip string) error { return nil }

type computeEnv struct {
	instances *repo.InstanceRepo
	driver    *fakedriver.Driver
	locks     *cluster.KeyLock
	svc       *Service
}

func newComputeEnv(t *testing.T) *computeEnv {
	store, err := repo.Open(":memory:")
	tassert.CheckFatal(t, err)
	t.Cleanup(func() { store.Close() })

	instances := repo.NewInstanceRepo(store)
	nics := repo.NewNICRepo(store)
	driver := fakedriver.New()
	locks := cluster.NewKeyLock(64)
	svc := New(instances, nics, driver, &stubBinder{}, cmn.RealClock{}, locks, 5*time.Second)
	return &computeEnv{instances: instances, driver: driver, locks: locks, svc: svc}
}

func run(t *testing.T, e *computeEnv, name string) *model.Instance {
	in, err := e.svc.RunInstance(context.Background(), RunInstanceParams{
		ProjectID: "p1", Name: name, Zone: "us-central1-a", MachineType: "e2-micro",
	})
	tassert.CheckFatal(t, err)
	return in
}

func TestRunInstanceHappyPath(t *testing.T) {
	e := newComputeEnv(t)
	in := run(t, e, "vm1")

	tassert.Fatalf(t, in.Status == model.InstanceRunning, "status = %s, want RUNNING", in.Status)
	tassert.Errorf(t, in.InternalIP == "10.128.0.4", "internal IP = %s", in.InternalIP)
	tassert.Errorf(t, in.ContainerHandle != "", "no container handle recorded")

	nics, err := e.svc.NICs(in.ID)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(nics) == 1, "nic count = %d", len(nics))
	tassert.Errorf(t, nics[0].Name == "nic0" && nics[0].NICIndex == 0, "primary nic = %+v", nics[0])
}

func TestRunInstanceWithExplicitInterfaces(t *testing.T) {
	e := newComputeEnv(t)
	in, err := e.svc.RunInstance(context.Background(), RunInstanceParams{
		ProjectID: "p1", Name: "vm1", Zone: "us-central1-a", MachineType: "e2-micro",
		NetworkInterfaces: []NICSpec{
			{Network: "net-a", Subnetwork: "sub-a"},
			{Network: "net-b"},
		},
	})
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, in.NetworkRef == "net-a" && in.SubnetRef == "sub-a", "primary attachment = %s/%s", in.NetworkRef, in.SubnetRef)

	nics, err := e.svc.NICs(in.ID)
	tassert.CheckFatal(t, err)
	tassert.Fatalf(t, len(nics) == 2, "nic count = %d", len(nics))
	tassert.Errorf(t, nics[0].Name == "nic0" && nics[0].NetworkRef == "net-a", "nic0 = %+v", nics[0])
	tassert.Errorf(t, nics[1].Name == "nic1" && nics[1].SubnetRef == "us-central1-sub", "nic1 = %+v", nics[1])
	tassert.Errorf(t, nics[0].InternalIP != nics[1].InternalIP, "interfaces share an IP")
}

func TestRunInstanceRejectsUnknownInterfaceNetwork(t *testing.T) {
	e := newComputeEnv(t)
	_, err := e.svc.RunInstance(context.Background(), RunInstanceParams{
		ProjectID: "p1", Name: "vm1", Zone: "us-central1-a", MachineType: "e2-micro",
		NetworkInterfaces: []NICSpec{{Network: "missing"}},
	})
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeNotFound, "unknown network accepted: %v", err)
}

func TestRunInstanceValidatesCatalogs(t *testing.T) {
	e := newComputeEnv(t)
	ctx := context.Background()

	_, err := e.svc.RunInstance(ctx, RunInstanceParams{ProjectID: "p1", Name: "vm1", Zone: "us-central1-a", MachineType: "mega"})
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeInvalidArgument, "bad machine type: %v", err)

	_, err = e.svc.RunInstance(ctx, RunInstanceParams{ProjectID: "p1", Name: "vm1", Zone: "nowhere-1-a", MachineType: "e2-micro"})
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeInvalidArgument, "bad zone: %v", err)
}

func TestRunInstanceRejectsDuplicateName(t *testing.T) {
	e := newComputeEnv(t)
	run(t, e, "vm1")
	_, err := e.svc.RunInstance(context.Background(), RunInstanceParams{
		ProjectID: "p1", Name: "vm1", Zone: "us-central1-a", MachineType: "e2-micro",
	})
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeAlreadyExists, "duplicate accepted: %v", err)
}

func TestRunInstanceCreateFailureTerminates(t *testing.T) {
	e := newComputeEnv(t)
	e.driver.FailCreate = true
	in, err := e.svc.RunInstance(context.Background(), RunInstanceParams{
		ProjectID: "p1", Name: "vm1", Zone: "us-central1-a", MachineType: "e2-micro",
	})
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, in.Status == model.InstanceTerminated, "status = %s, want TERMINATED", in.Status)

	// the row is kept, marked terminated
	got, err := e.svc.GetInstance("p1", "us-central1-a", "vm1")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, got.Status == model.InstanceTerminated, "persisted status = %s", got.Status)
}

func TestStopStartLifecycle(t *testing.T) {
	e := newComputeEnv(t)
	ctx := context.Background()
	in := run(t, e, "vm1")

	in, err := e.svc.StopInstance(ctx, in)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, in.Status == model.InstanceStopped, "after stop: %s", in.Status)

	// stopping a stopped instance is outside the FSM
	_, err = e.svc.StopInstance(ctx, in)
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeInvalidArgument, "double stop allowed: %v", err)

	in, err = e.svc.StartInstance(ctx, in)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, in.Status == model.InstanceRunning, "after start: %s", in.Status)
}

func TestDeleteInstanceFromAnyState(t *testing.T) {
	e := newComputeEnv(t)
	ctx := context.Background()

	running := run(t, e, "vm-running")
	tassert.CheckFatal(t, e.svc.DeleteInstance(ctx, running))
	tassert.Errorf(t, running.Status == model.InstanceTerminated, "running delete: %s", running.Status)

	st, err := e.driver.InspectContainer(ctx, running.ContainerHandle)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, st.Status == "not-found", "container survived delete: %s", st.Status)

	stopped := run(t, e, "vm-stopped")
	stopped, err = e.svc.StopInstance(ctx, stopped)
	tassert.CheckFatal(t, err)
	tassert.CheckFatal(t, e.svc.DeleteInstance(ctx, stopped))
	tassert.Errorf(t, stopped.Status == model.InstanceTerminated, "stopped delete: %s", stopped.Status)

	// deleting a terminated instance is rejected
	err = e.svc.DeleteInstance(ctx, stopped)
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeInvalidArgument, "double delete allowed: %v", err)
}

func TestExternalIPAttachDetach(t *testing.T) {
	e := newComputeEnv(t)
	in := run(t, e, "vm1")

	tassert.CheckFatal(t, e.svc.SetExternalIP(in, "34.9.9.9"))
	err := e.svc.SetExternalIP(in, "34.9.9.8")
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeAlreadyExists, "second access config allowed")

	ip, err := e.svc.ClearExternalIP(in)
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, ip == "34.9.9.9", "cleared %s", ip)
	_, err = e.svc.ClearExternalIP(in)
	tassert.Errorf(t, cmn.AsTaxonomy(err).Code() == cmn.CodeNotFound, "clearing absent config allowed")
}

func TestReconcilerWritesThroughDrift(t *testing.T) {
	e := newComputeEnv(t)
	ctx := context.Background()
	in := run(t, e, "vm1")
	r := NewReconciler(e.instances, e.driver, e.locks, time.Second, time.Second)

	// container dies out-of-band
	e.driver.SetStatus(in.ContainerHandle, "exited")
	r.RunOnce(ctx)
	got, err := e.svc.GetInstance("p1", "us-central1-a", "vm1")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, got.Status == model.InstanceStopped, "after exit: %s", got.Status)

	// container disappears entirely
	e.driver.SetStatus(in.ContainerHandle, "gone")
	r.RunOnce(ctx)
	got, err = e.svc.GetInstance("p1", "us-central1-a", "vm1")
	tassert.CheckFatal(t, err)
	tassert.Errorf(t, got.Status == model.InstanceTerminated, "after removal: %s", got.Status)

	// terminated instances are left alone afterwards
	r.RunOnce(ctx)
}

package compute

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/cloudemu/cloudemu/internal/cluster"
	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/compute/container"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/repo"
)

// NetworkBinder is the narrow slice of the VPC control plane the
// orchestrator needs: subnet resolution and per-subnet IP allocation.
// Implemented by internal/vpc, injected here to avoid a compute<->vpc
// import cycle.
type NetworkBinder interface {
	DefaultSubnet(ctx context.Context, projectID, region string) (subnetID, networkName, subnetName string, err error)
	ResolveSubnet(ctx context.Context, projectID, networkName, subnetName, region string) (subnetID, resolvedSubnetName string, err error)
	AllocateInternalIP(ctx context.Context, subnetID string) (ip string, err error)
	ReleaseInternalIP(ctx context.Context, subnetID, ip string) error
	AllocateEphemeralExternalIP(ctx context.Context, projectID, region string) (ip string, err error)
	ReleaseEphemeralExternalIP(ctx context.Context, ip string) error
}

// Service orchestrates instances against the container driver and the
// VPC control plane, holding a per-instance mutex so state transitions
// are totally ordered.
type Service struct {
	instances *repo.InstanceRepo
	nics      *repo.NICRepo
	driver    container.Driver
	net       NetworkBinder
	clock     cmn.Clock
	locks     *cluster.KeyLock
	callTimeout time.Duration
}

func New(instances *repo.InstanceRepo, nics *repo.NICRepo, driver container.Driver, net NetworkBinder, clock cmn.Clock, locks *cluster.KeyLock, callTimeout time.Duration) *Service {
	return &Service{instances: instances, nics: nics, driver: driver, net: net, clock: clock, locks: locks, callTimeout: callTimeout}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

// NICSpec names the network (and optionally the subnet) a caller-supplied
// interface attaches to. An empty Subnetwork picks the network's subnet in
// the instance's region.
type NICSpec struct {
	Network    string
	Subnetwork string
}

// RunInstanceParams is the input to RunInstance.
type RunInstanceParams struct {
	ProjectID         string
	Name              string
	Zone              string
	MachineType       string
	Image             string
	Metadata          map[string]string
	Labels            map[string]string
	Tags              []string
	NetworkInterfaces []NICSpec
	AllocateExternal  bool
}

// nicPlan is one resolved interface attachment: which subnet, which
// names, which IP.
type nicPlan struct {
	subnetID    string
	networkName string
	subnetName  string
	internalIP  string
}

// RunInstance validates name/zone/machine-type against the static
// catalogs, creates the DB row in PROVISIONING, attaches the caller's
// interfaces (or nic0 on the project's default network when none are
// supplied), then creates and starts the backing container.
// Container-create failure is a legal transition to TERMINATED, not a
// propagated error to the caller's state.
func (s *Service) RunInstance(ctx context.Context, p RunInstanceParams) (*model.Instance, error) {
	if _, err := ValidateMachineType(p.MachineType); err != nil {
		return nil, err
	}
	region, err := ValidateZone(p.Zone)
	if err != nil {
		return nil, err
	}
	if _, err := s.instances.GetByName(p.ProjectID, p.Zone, p.Name); err == nil {
		return nil, cmn.NewAlreadyExists("instance %s already exists in %s/%s", p.Name, p.ProjectID, p.Zone)
	}

	var plans []nicPlan
	if len(p.NetworkInterfaces) == 0 {
		subnetID, networkName, subnetName, err := s.net.DefaultSubnet(ctx, p.ProjectID, region)
		if err != nil {
			return nil, err
		}
		plans = append(plans, nicPlan{subnetID: subnetID, networkName: networkName, subnetName: subnetName})
	} else {
		for _, spec := range p.NetworkInterfaces {
			if spec.Network == "" {
				return nil, cmn.NewInvalidArgument("networkInterfaces entries must name a network")
			}
			subnetID, subnetName, err := s.net.ResolveSubnet(ctx, p.ProjectID, spec.Network, spec.Subnetwork, region)
			if err != nil {
				return nil, err
			}
			plans = append(plans, nicPlan{subnetID: subnetID, networkName: spec.Network, subnetName: subnetName})
		}
	}
	for i := range plans {
		ip, err := s.net.AllocateInternalIP(ctx, plans[i].subnetID)
		if err != nil {
			return nil, err
		}
		plans[i].internalIP = ip
	}

	now := s.clock.Now()
	in := &model.Instance{
		ID: cmn.NewID(), ProjectID: p.ProjectID, Name: p.Name, Zone: p.Zone,
		MachineType: p.MachineType, Status: model.InstanceProvisioning,
		InternalIP: plans[0].internalIP, NetworkRef: plans[0].networkName, SubnetRef: plans[0].subnetName,
		Metadata: p.Metadata, Labels: p.Labels, Tags: p.Tags,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.instances.Create(in); err != nil {
		for _, pl := range plans {
			s.net.ReleaseInternalIP(ctx, pl.subnetID, pl.internalIP)
		}
		return nil, err
	}
	for i, pl := range plans {
		nic := &model.NetworkInterface{
			ID: cmn.NewID(), InstanceRef: in.ID, NetworkRef: pl.networkName, SubnetRef: pl.subnetName,
			Name: fmt.Sprintf("nic%d", i), InternalIP: pl.internalIP, NICIndex: i, CreatedAt: now,
		}
		if err := s.nics.Put(nic); err != nil {
			return nil, err
		}
	}

	if p.AllocateExternal {
		ext, err := s.net.AllocateEphemeralExternalIP(ctx, p.ProjectID, region)
		if err == nil {
			in.ExternalIP = ext
			s.instances.Update(in)
		} else {
			glog.Warningf("instance %s: ephemeral external IP allocation failed: %v", in.Name, err)
		}
	}

	s.provisionContainer(ctx, in, p.Image)
	return in, nil
}

// provisionContainer drives PROVISIONING -> RUNNING or -> TERMINATED on
// create failure, holding the instance's stripe for the whole sequence so
// no other writer can interleave.
func (s *Service) provisionContainer(ctx context.Context, in *model.Instance, image string) {
	s.locks.WithLock(in.ID, func() error {
		mt := MachineTypes[in.MachineType]
		if image == "" {
			image = "alpine:latest"
		}
		cctx, cancel := s.withTimeout(ctx)
		defer cancel()

		if err := s.driver.EnsureImage(cctx, image); err != nil {
			return s.failProvisioning(in, err)
		}
		if err := s.driver.EnsureNetwork(cctx, in.NetworkRef); err != nil {
			return s.failProvisioning(in, err)
		}
		handle, err := s.driver.CreateContainer(cctx, image, fmt.Sprintf("%s-%s", in.Zone, in.Name), float64(mt.VCPUs), int64(mt.MemMB), in.Metadata)
		if err != nil {
			return s.failProvisioning(in, err)
		}
		in.ContainerHandle = handle
		if err := s.driver.AttachToNetwork(cctx, handle, in.NetworkRef); err != nil {
			return s.failProvisioning(in, err)
		}
		if err := s.driver.StartContainer(cctx, handle); err != nil {
			return s.failProvisioning(in, err)
		}

		to, err := Transition(in.Status, EventContainerStarted)
		if err != nil {
			return err
		}
		in.Status = to
		in.UpdatedAt = s.clock.Now()
		return s.instances.Update(in)
	})
}

func (s *Service) failProvisioning(in *model.Instance, cause error) error {
	glog.Errorf("instance %s: provisioning failed: %v", in.Name, cause)
	to, err := Transition(in.Status, EventContainerCreateFailed)
	if err != nil {
		return err
	}
	in.Status = to
	in.UpdatedAt = s.clock.Now()
	return s.instances.Update(in)
}

// StopInstance drives RUNNING -> STOPPING -> STOPPED once the container
// actually stops.
func (s *Service) StopInstance(ctx context.Context, in *model.Instance) (*model.Instance, error) {
	err := s.locks.WithLock(in.ID, func() error {
		to, err := Transition(in.Status, EventStop)
		if err != nil {
			return err
		}
		in.Status = to
		in.UpdatedAt = s.clock.Now()
		if err := s.instances.Update(in); err != nil {
			return err
		}
		cctx, cancel := s.withTimeout(ctx)
		defer cancel()
		if err := s.driver.StopContainer(cctx, in.ContainerHandle, 10); err != nil {
			return err
		}
		to, err = Transition(in.Status, EventContainerStopped)
		if err != nil {
			return err
		}
		in.Status = to
		in.UpdatedAt = s.clock.Now()
		return s.instances.Update(in)
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

// StartInstance drives STOPPED -> RUNNING, re-allocating the external IP
// if one was previously set.
func (s *Service) StartInstance(ctx context.Context, in *model.Instance) (*model.Instance, error) {
	err := s.locks.WithLock(in.ID, func() error {
		to, err := Transition(in.Status, EventStart)
		if err != nil {
			return err
		}
		cctx, cancel := s.withTimeout(ctx)
		defer cancel()
		if err := s.driver.StartContainer(cctx, in.ContainerHandle); err != nil {
			return err
		}
		if in.ExternalIP != "" {
			region := Zones[in.Zone]
			if ext, err := s.net.AllocateEphemeralExternalIP(ctx, in.ProjectID, region); err == nil {
				in.ExternalIP = ext
			}
		}
		in.Status = to
		in.UpdatedAt = s.clock.Now()
		return s.instances.Update(in)
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

// DeleteInstance is legal from any non-terminated state: removes the
// container, releases NICs/IPs, and transitions to the TERMINATED sink.
func (s *Service) DeleteInstance(ctx context.Context, in *model.Instance) error {
	return s.locks.WithLock(in.ID, func() error {
		to, err := Transition(in.Status, EventDelete)
		if err != nil {
			return err
		}
		cctx, cancel := s.withTimeout(ctx)
		defer cancel()
		if in.ContainerHandle != "" {
			if err := s.driver.RemoveContainer(cctx, in.ContainerHandle, true); err != nil {
				glog.Warningf("instance %s: remove container: %v (teardown continues)", in.Name, err)
			}
		}
		nics, err := s.nics.ListByInstance(in.ID)
		if err == nil {
			for _, n := range nics {
				s.net.ReleaseInternalIP(ctx, n.SubnetRef, n.InternalIP)
			}
		}
		s.nics.DeleteByInstance(in.ID)
		if in.ExternalIP != "" {
			s.net.ReleaseEphemeralExternalIP(ctx, in.ExternalIP)
		}
		in.Status = to
		in.UpdatedAt = s.clock.Now()
		return s.instances.Update(in)
	})
}

// SetExternalIP records an access config on the instance; callers hand in
// the IP they allocated (ephemeral pool draw or a bound static Address).
func (s *Service) SetExternalIP(in *model.Instance, ip string) error {
	return s.locks.WithLock(in.ID, func() error {
		if in.ExternalIP != "" {
			return cmn.NewAlreadyExists("instance %s already has an access config (%s)", in.Name, in.ExternalIP)
		}
		in.ExternalIP = ip
		in.UpdatedAt = s.clock.Now()
		return s.instances.Update(in)
	})
}

// ClearExternalIP removes the instance's access config and returns the
// IP that was attached, so the caller can release a static Address.
func (s *Service) ClearExternalIP(in *model.Instance) (string, error) {
	var ip string
	err := s.locks.WithLock(in.ID, func() error {
		if in.ExternalIP == "" {
			return cmn.NewNotFound("instance %s has no access config", in.Name)
		}
		ip = in.ExternalIP
		in.ExternalIP = ""
		in.UpdatedAt = s.clock.Now()
		return s.instances.Update(in)
	})
	if err != nil {
		return "", err
	}
	return ip, nil
}

func (s *Service) GetInstance(projectID, zone, name string) (*model.Instance, error) {
	return s.instances.GetByName(projectID, zone, name)
}

func (s *Service) ListInstances(projectID, zone string) ([]*model.Instance, error) {
	return s.instances.List(projectID, zone)
}

func (s *Service) NICs(instanceID string) ([]*model.NetworkInterface, error) {
	return s.nics.ListByInstance(instanceID)
}

// ListContainerHandlesForNetwork satisfies vpc.InstanceLookup: every
// running container whose instance currently attaches to (projectID,
// networkName), used by VPC peering to splice the two sides' container
// network fabrics.
func (s *Service) ListContainerHandlesForNetwork(projectID, networkName string) ([]string, error) {
	instances, err := s.instances.List(projectID, "")
	if err != nil {
		return nil, err
	}
	var handles []string
	for _, in := range instances {
		if in.NetworkRef == networkName && in.ContainerHandle != "" && in.Status != model.InstanceTerminated {
			handles = append(handles, in.ContainerHandle)
		}
	}
	return handles, nil
}

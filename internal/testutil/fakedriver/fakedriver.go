// Package fakedriver is an in-memory container.Driver for tests: every
// call mutates a map instead of a runtime socket, and the call log lets
// a test assert what the orchestrator asked for.
package fakedriver

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/compute/container"
)

type fakeContainer struct {
	image    string
	name     string
	status   string // created|running|exited
	networks map[string]bool
}

// Driver implements container.Driver. The zero value is not usable; call
// New.
type Driver struct {
	mu         sync.Mutex
	seq        int
	containers map[string]*fakeContainer
	networks   map[string]bool
	images     map[string]bool
	calls      []string

	// FailCreate makes the next CreateContainer fail, for exercising the
	// PROVISIONING -> TERMINATED transition.
	FailCreate bool
}

func New() *Driver {
	return &Driver{
		containers: map[string]*fakeContainer{},
		networks:   map[string]bool{},
		images:     map[string]bool{},
	}
}

func (d *Driver) record(format string, args ...interface{}) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the call log.
func (d *Driver) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

// SetStatus overrides a container's status, simulating out-of-band drift
// for reconciler tests. Status "gone" removes the container entirely.
func (d *Driver) SetStatus(handle, status string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status == "gone" {
		delete(d.containers, handle)
		return
	}
	if c, ok := d.containers[handle]; ok {
		c.status = status
	}
}

func (d *Driver) EnsureImage(ctx context.Context, image string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ensure_image %s", image)
	d.images[image] = true
	return nil
}

func (d *Driver) CreateContainer(ctx context.Context, image, name string, cpu float64, memMB int64, env map[string]string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("create %s image=%s", name, image)
	if d.FailCreate {
		d.FailCreate = false
		return "", cmn.WrapInternal(fmt.Errorf("injected create failure"), "create container %s", name)
	}
	d.seq++
	handle := fmt.Sprintf("ctr-%d", d.seq)
	d.containers[handle] = &fakeContainer{image: image, name: name, status: "created", networks: map[string]bool{}}
	return handle, nil
}

func (d *Driver) StartContainer(ctx context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("start %s", handle)
	c, ok := d.containers[handle]
	if !ok {
		return cmn.NewNotFound("no container %s", handle)
	}
	c.status = "running"
	return nil
}

func (d *Driver) StopContainer(ctx context.Context, handle string, timeoutSec int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("stop %s", handle)
	if c, ok := d.containers[handle]; ok {
		c.status = "exited"
	}
	return nil
}

func (d *Driver) RemoveContainer(ctx context.Context, handle string, force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("remove %s", handle)
	delete(d.containers, handle)
	return nil
}

func (d *Driver) InspectContainer(ctx context.Context, handle string) (container.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[handle]
	if !ok {
		return container.State{Status: "not-found"}, nil
	}
	return container.State{Running: c.status == "running", Status: c.status}, nil
}

func (d *Driver) AttachToNetwork(ctx context.Context, handle, networkName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("attach %s -> %s", handle, networkName)
	c, ok := d.containers[handle]
	if !ok {
		return cmn.NewNotFound("no container %s", handle)
	}
	c.networks[networkName] = true
	return nil
}

func (d *Driver) DetachFromNetwork(ctx context.Context, handle, networkName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("detach %s -> %s", handle, networkName)
	if c, ok := d.containers[handle]; ok {
		delete(c.networks, networkName)
	}
	return nil
}

func (d *Driver) EnsureNetwork(ctx context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ensure_network %s", name)
	d.networks[name] = true
	return nil
}

func (d *Driver) ListImages(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []string
	for img := range d.images {
		out = append(out, img)
	}
	return out, nil
}

// AttachedNetworks reports the networks a container currently joins.
func (d *Driver) AttachedNetworks(handle string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.containers[handle]
	if !ok {
		return nil
	}
	var out []string
	for n := range c.networks {
		out = append(out, n)
	}
	return out
}

var _ container.Driver = (*Driver)(nil)

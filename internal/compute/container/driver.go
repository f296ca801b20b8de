// Package container is the thin abstraction over a container runtime:
// image ensure/pull, container create/start/stop/remove/inspect, and
// network attach, implemented against github.com/docker/docker/client
// (the Engine API client).
package container

import (
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/golang/glog"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/stats"
)

// State is the subset of container runtime state the orchestrator's
// reconciler needs.
type State struct {
	Running bool
	Status  string // running|exited|dead|paused|not-found
	ExitCode int
}

// Driver is the narrow runtime interface the orchestrator and the VPC
// splice depend on. Every call is bounded by ctx's deadline; DockerDriver
// reports a timeout like any other runtime failure, as an Internal error.
type Driver interface {
	EnsureImage(ctx context.Context, image string) error
	CreateContainer(ctx context.Context, image, name string, cpu float64, memMB int64, env map[string]string) (handle string, err error)
	StartContainer(ctx context.Context, handle string) error
	StopContainer(ctx context.Context, handle string, timeoutSec int) error
	RemoveContainer(ctx context.Context, handle string, force bool) error
	InspectContainer(ctx context.Context, handle string) (State, error)
	AttachToNetwork(ctx context.Context, handle, networkName string) error
	DetachFromNetwork(ctx context.Context, handle, networkName string) error
	ListImages(ctx context.Context) ([]string, error)
	EnsureNetwork(ctx context.Context, name string) error
}

// DockerDriver implements Driver against a real docker Engine API socket,
// dialed from cmn.Config.Compute.DockerHost.
type DockerDriver struct {
	cli *dockerclient.Client
}

func NewDockerDriver(host string) (*DockerDriver, error) {
	opts := []dockerclient.Opt{dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, dockerclient.WithHost(host))
	}
	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, cmn.WrapInternal(err, "dial docker host %s", host)
	}
	return &DockerDriver{cli: cli}, nil
}

func (d *DockerDriver) EnsureImage(ctx context.Context, image string) error {
	defer stats.ObserveContainerCall("ensure_image", time.Now())
	_, _, err := d.cli.ImageInspectWithRaw(ctx, image)
	if err == nil {
		return nil
	}
	if !dockerclient.IsErrNotFound(err) {
		return classify(err, "inspect image %s", image)
	}
	rc, err := d.cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return classify(err, "pull image %s", image)
	}
	defer rc.Close()
	_, _ = io.Copy(io.Discard, rc)
	return nil
}

func (d *DockerDriver) CreateContainer(ctx context.Context, image, name string, cpu float64, memMB int64, env map[string]string) (string, error) {
	defer stats.ObserveContainerCall("create", time.Now())
	var envList []string
	for k, v := range env {
		envList = append(envList, k+"="+v)
	}
	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image: image,
		Env:   envList,
		Labels: map[string]string{"cloudemu.instance": name},
	}, &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: int64(cpu * 1e9),
			Memory:   memMB * 1024 * 1024,
		},
	}, &network.NetworkingConfig{}, nil, "cloudemu-"+name)
	if err != nil {
		return "", classify(err, "create container for instance %s", name)
	}
	return resp.ID, nil
}

func (d *DockerDriver) StartContainer(ctx context.Context, handle string) error {
	defer stats.ObserveContainerCall("start", time.Now())
	if err := d.cli.ContainerStart(ctx, handle, types.ContainerStartOptions{}); err != nil {
		return classify(err, "start container %s", handle)
	}
	return nil
}

func (d *DockerDriver) StopContainer(ctx context.Context, handle string, timeoutSec int) error {
	defer stats.ObserveContainerCall("stop", time.Now())
	t := timeoutSec
	if err := d.cli.ContainerStop(ctx, handle, container.StopOptions{Timeout: &t}); err != nil {
		if dockerclient.IsErrNotFound(err) {
			return nil // already gone: a no-op during teardown
		}
		return classify(err, "stop container %s", handle)
	}
	return nil
}

func (d *DockerDriver) RemoveContainer(ctx context.Context, handle string, force bool) error {
	defer stats.ObserveContainerCall("remove", time.Now())
	err := d.cli.ContainerRemove(ctx, handle, types.ContainerRemoveOptions{Force: force})
	if err != nil && !dockerclient.IsErrNotFound(err) {
		return classify(err, "remove container %s", handle)
	}
	return nil
}

func (d *DockerDriver) InspectContainer(ctx context.Context, handle string) (State, error) {
	defer stats.ObserveContainerCall("inspect", time.Now())
	info, err := d.cli.ContainerInspect(ctx, handle)
	if err != nil {
		if dockerclient.IsErrNotFound(err) {
			return State{Status: "not-found"}, nil
		}
		return State{}, classify(err, "inspect container %s", handle)
	}
	st := State{Status: info.State.Status}
	if info.State != nil {
		st.Running = info.State.Running
		st.ExitCode = info.State.ExitCode
	}
	return st, nil
}

func (d *DockerDriver) AttachToNetwork(ctx context.Context, handle, networkName string) error {
	defer stats.ObserveContainerCall("network_attach", time.Now())
	if err := d.cli.NetworkConnect(ctx, networkName, handle, nil); err != nil {
		return classify(err, "attach container %s to network %s", handle, networkName)
	}
	return nil
}

func (d *DockerDriver) DetachFromNetwork(ctx context.Context, handle, networkName string) error {
	defer stats.ObserveContainerCall("network_detach", time.Now())
	if err := d.cli.NetworkDisconnect(ctx, networkName, handle, true); err != nil {
		if dockerclient.IsErrNotFound(err) {
			return nil
		}
		return classify(err, "detach container %s from network %s", handle, networkName)
	}
	return nil
}

func (d *DockerDriver) EnsureNetwork(ctx context.Context, name string) error {
	_, err := d.cli.NetworkInspect(ctx, name, types.NetworkInspectOptions{})
	if err == nil {
		return nil
	}
	if !dockerclient.IsErrNotFound(err) {
		return classify(err, "inspect network %s", name)
	}
	_, err = d.cli.NetworkCreate(ctx, name, types.NetworkCreate{Driver: "bridge"})
	if err != nil {
		return classify(err, "create network %s", name)
	}
	return nil
}

func (d *DockerDriver) ListImages(ctx context.Context) ([]string, error) {
	images, err := d.cli.ImageList(ctx, types.ImageListOptions{})
	if err != nil {
		return nil, classify(err, "list images")
	}
	var out []string
	for _, img := range images {
		out = append(out, img.RepoTags...)
	}
	return out, nil
}

// classify logs the command and error, then tags the failure Internal;
// timeouts are the orchestrator's own concern to retry.
func classify(err error, format string, args ...interface{}) error {
	glog.Warningf("container driver: "+format+": %v", append(args, err)...)
	return cmn.WrapInternal(err, format, args...)
}

package api

import (
	"context"
	"net/http"

	"github.com/cloudemu/cloudemu/internal/compute"
	"github.com/cloudemu/cloudemu/internal/model"
	"github.com/cloudemu/cloudemu/internal/wire"
)

func (d *Deps) runInstance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	projectID := pathVar(r, "projectID")
	zone := pathVar(r, "zone")
	var req wire.RunInstanceRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	if err := runInstanceSchema.Validate(map[string]string{
		"name": req.Name, "zone": zone,
	}); err != nil {
		return err
	}
	var nics []compute.NICSpec
	for _, ni := range req.NetworkInterfaces {
		nics = append(nics, compute.NICSpec{Network: ni.Network, Subnetwork: ni.Subnetwork})
	}
	in, err := d.Compute.RunInstance(ctx, compute.RunInstanceParams{
		ProjectID: projectID, Name: req.Name, Zone: zone, MachineType: req.MachineType,
		Image: req.Image, Metadata: req.Metadata, Labels: req.Labels, Tags: req.Tags,
		NetworkInterfaces: nics, AllocateExternal: req.AllocateExternal,
	})
	if err != nil {
		return err
	}
	return d.writeInstance(w, in)
}

func (d *Deps) writeInstance(w http.ResponseWriter, in *model.Instance) error {
	nics, err := d.Compute.NICs(in.ID)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, instanceResource(d.BaseURL, in, nics))
	return nil
}

func (d *Deps) getInstance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	in, err := d.Compute.GetInstance(pathVar(r, "projectID"), pathVar(r, "zone"), pathVar(r, "instance"))
	if err != nil {
		return err
	}
	return d.writeInstance(w, in)
}

func (d *Deps) listInstances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ins, err := d.Compute.ListInstances(pathVar(r, "projectID"), pathVar(r, "zone"))
	if err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(ins))
	for _, in := range ins {
		nics, nerr := d.Compute.NICs(in.ID)
		if nerr != nil {
			return nerr
		}
		items = append(items, instanceResource(d.BaseURL, in, nics))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "compute#instanceList", "items": items})
	return nil
}

func (d *Deps) deleteInstance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	in, err := d.Compute.GetInstance(pathVar(r, "projectID"), pathVar(r, "zone"), pathVar(r, "instance"))
	if err != nil {
		return err
	}
	if err := d.Compute.DeleteInstance(ctx, in); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (d *Deps) stopInstance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	in, err := d.Compute.GetInstance(pathVar(r, "projectID"), pathVar(r, "zone"), pathVar(r, "instance"))
	if err != nil {
		return err
	}
	in, err = d.Compute.StopInstance(ctx, in)
	if err != nil {
		return err
	}
	return d.writeInstance(w, in)
}

func (d *Deps) startInstance(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	in, err := d.Compute.GetInstance(pathVar(r, "projectID"), pathVar(r, "zone"), pathVar(r, "instance"))
	if err != nil {
		return err
	}
	in, err = d.Compute.StartInstance(ctx, in)
	if err != nil {
		return err
	}
	return d.writeInstance(w, in)
}

// addAccessConfig implements POST .../instances/{n}/addAccessConfig:
// attach an external IP, either the reserved Address whose IP the body
// gives as natIP or a fresh ephemeral draw from the external pool.
func (d *Deps) addAccessConfig(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	in, err := d.Compute.GetInstance(pathVar(r, "projectID"), pathVar(r, "zone"), pathVar(r, "instance"))
	if err != nil {
		return err
	}
	var req wire.AddAccessConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	region := compute.Zones[in.Zone]
	ip := req.NatIP
	if ip != "" {
		a, err := d.VPC.FindAddressByIP(in.ProjectID, ip)
		if err != nil {
			return err
		}
		if err := d.VPC.BindAddress(a, in.ID); err != nil {
			return err
		}
	} else {
		ip, err = d.VPC.AllocateEphemeralExternalIP(ctx, in.ProjectID, region)
		if err != nil {
			return err
		}
	}
	if err := d.Compute.SetExternalIP(in, ip); err != nil {
		if a, ferr := d.VPC.FindAddressByIP(in.ProjectID, ip); ferr == nil {
			d.VPC.ReleaseAddress(a)
		}
		return err
	}
	return d.writeInstance(w, in)
}

// deleteAccessConfig implements POST .../instances/{n}/deleteAccessConfig:
// drop the external IP; a bound static Address goes back to RESERVED,
// an ephemeral one simply vanishes.
func (d *Deps) deleteAccessConfig(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	in, err := d.Compute.GetInstance(pathVar(r, "projectID"), pathVar(r, "zone"), pathVar(r, "instance"))
	if err != nil {
		return err
	}
	ip, err := d.Compute.ClearExternalIP(in)
	if err != nil {
		return err
	}
	if a, ferr := d.VPC.FindAddressByIP(in.ProjectID, ip); ferr == nil {
		if rerr := d.VPC.ReleaseAddress(a); rerr != nil {
			return rerr
		}
	}
	return d.writeInstance(w, in)
}

package repo

import (
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

const (
	instancePrefix    = "instance"
	instanceNameIdx   = "instancename" // (project,zone,name) -> id, uniqueness
	nicPrefix         = "nic"
)

type InstanceRepo struct{ s *Store }

func NewInstanceRepo(s *Store) *InstanceRepo { return &InstanceRepo{s: s} }

func instanceKey(id string) string { return key(instancePrefix, id) }
func instanceNameKey(projectID, zone, name string) string {
	return key(instanceNameIdx, projectID, zone, name)
}

func (r *InstanceRepo) Create(in *model.Instance) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		nk := instanceNameKey(in.ProjectID, in.Zone, in.Name)
		if _, err := tx.Get(nk); err == nil {
			return cmn.NewAlreadyExists("instance %s/%s/%s already exists", in.ProjectID, in.Zone, in.Name)
		} else if err != buntdb.ErrNotFound {
			return cmn.WrapInternal(err, "check instance uniqueness")
		}
		if err := put(tx, instanceKey(in.ID), in, true); err != nil {
			return err
		}
		_, _, err := tx.Set(nk, in.ID, nil)
		return err
	})
}

func (r *InstanceRepo) Get(id string) (*model.Instance, error) {
	var in model.Instance
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, instanceKey(id), &in) })
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func (r *InstanceRepo) GetByName(projectID, zone, name string) (*model.Instance, error) {
	var id string
	err := r.s.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(instanceNameKey(projectID, zone, name))
		if err == buntdb.ErrNotFound {
			return cmn.NewNotFound("no instance %s/%s/%s", projectID, zone, name)
		}
		if err != nil {
			return cmn.WrapInternal(err, "get instance name index")
		}
		id = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Get(id)
}

func (r *InstanceRepo) Update(in *model.Instance) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, instanceKey(in.ID), in, false) })
}

func (r *InstanceRepo) Delete(in *model.Instance) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		if err := del(tx, instanceKey(in.ID)); err != nil {
			return err
		}
		_, err := tx.Delete(instanceNameKey(in.ProjectID, in.Zone, in.Name))
		if err != nil && err != buntdb.ErrNotFound {
			return cmn.WrapInternal(err, "delete instance name index")
		}
		return nil
	})
}

func (r *InstanceRepo) List(projectID, zone string) ([]*model.Instance, error) {
	var out []*model.Instance
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(instancePrefix+"\x1f*", func(k, v string) bool {
			var in model.Instance
			if err := json.Unmarshal([]byte(v), &in); err == nil && in.ProjectID == projectID && (zone == "" || in.Zone == zone) {
				out = append(out, &in)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.WrapInternal(err, "list instances")
	}
	return out, nil
}

func (r *InstanceRepo) ListAllNonTerminated() ([]*model.Instance, error) {
	var out []*model.Instance
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(instancePrefix+"\x1f*", func(k, v string) bool {
			var in model.Instance
			if err := json.Unmarshal([]byte(v), &in); err == nil && in.Status != model.InstanceTerminated {
				out = append(out, &in)
			}
			return true
		})
	})
	return out, err
}

// NICRepo stores NetworkInterface rows, keyed by instance+index so nic0
// lookups (mandatory, non-detachable) are O(1).
type NICRepo struct{ s *Store }

func NewNICRepo(s *Store) *NICRepo { return &NICRepo{s: s} }

func nicKey(instanceID string, idx int) string { return key(nicPrefix, instanceID, fmtGen(int64(idx))) }

func (r *NICRepo) Put(nic *model.NetworkInterface) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, nicKey(nic.InstanceRef, nic.NICIndex), nic, false) })
}

func (r *NICRepo) ListByInstance(instanceID string) ([]*model.NetworkInterface, error) {
	var out []*model.NetworkInterface
	pat := nicPrefix + "\x1f" + instanceID + "\x1f*"
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pat, func(k, v string) bool {
			var n model.NetworkInterface
			if err := json.Unmarshal([]byte(v), &n); err == nil {
				out = append(out, &n)
			}
			return true
		})
	})
	return out, err
}

// ListBySubnet scans every NIC in subnetID, used by the IP allocator to
// compute the taken-address set.
func (r *NICRepo) ListBySubnet(subnetID string) ([]*model.NetworkInterface, error) {
	var out []*model.NetworkInterface
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(nicPrefix+"\x1f*", func(k, v string) bool {
			var n model.NetworkInterface
			if err := json.Unmarshal([]byte(v), &n); err == nil && n.SubnetRef == subnetID {
				out = append(out, &n)
			}
			return true
		})
	})
	return out, err
}

func (r *NICRepo) DeleteByInstance(instanceID string) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		pat := nicPrefix + "\x1f" + instanceID + "\x1f*"
		var keys []string
		if err := tx.AscendKeys(pat, func(k, v string) bool { keys = append(keys, k); return true }); err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := tx.Delete(k); err != nil && err != buntdb.ErrNotFound {
				return err
			}
		}
		return nil
	})
}

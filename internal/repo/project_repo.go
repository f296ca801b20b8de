package repo

import (
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

const projectPrefix = "project"

type ProjectRepo struct{ s *Store }

func NewProjectRepo(s *Store) *ProjectRepo { return &ProjectRepo{s: s} }

func (r *ProjectRepo) projKey(id string) string { return key(projectPrefix, id) }

func (r *ProjectRepo) Create(p *model.Project) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		return put(tx, r.projKey(p.ID), p, true)
	})
}

func (r *ProjectRepo) Get(id string) (*model.Project, error) {
	var p model.Project
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, r.projKey(id), &p) })
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes only the Project row. It neither removes the project's
// child resources (buckets, instances, networks, ...) nor checks that
// none remain.
func (r *ProjectRepo) Delete(id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, r.projKey(id)) })
}

func (r *ProjectRepo) List() ([]*model.Project, error) {
	var out []*model.Project
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(projectPrefix+"\x1f*", func(k, v string) bool {
			var p model.Project
			if err := json.Unmarshal([]byte(v), &p); err == nil {
				out = append(out, &p)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.WrapInternal(err, "list projects")
	}
	return out, nil
}

package repo

import (
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

const (
	saPrefix     = "serviceaccount"
	saKeyPrefix  = "sakey"
	policyPrefix = "policy"
)

type ServiceAccountRepo struct{ s *Store }

func NewServiceAccountRepo(s *Store) *ServiceAccountRepo { return &ServiceAccountRepo{s: s} }
func saKey(email string) string                          { return key(saPrefix, email) }

func (r *ServiceAccountRepo) Create(sa *model.ServiceAccount) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, saKey(sa.Email), sa, true) })
}

func (r *ServiceAccountRepo) Get(email string) (*model.ServiceAccount, error) {
	var sa model.ServiceAccount
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, saKey(email), &sa) })
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

func (r *ServiceAccountRepo) Update(sa *model.ServiceAccount) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, saKey(sa.Email), sa, false) })
}

func (r *ServiceAccountRepo) Delete(email string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, saKey(email)) })
}

func (r *ServiceAccountRepo) ListByProject(projectID string) ([]*model.ServiceAccount, error) {
	var out []*model.ServiceAccount
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(saPrefix+"\x1f*", func(k, v string) bool {
			var sa model.ServiceAccount
			if err := json.Unmarshal([]byte(v), &sa); err == nil && sa.ProjectID == projectID {
				out = append(out, &sa)
			}
			return true
		})
	})
	return out, err
}

type ServiceAccountKeyRepo struct{ s *Store }

func NewServiceAccountKeyRepo(s *Store) *ServiceAccountKeyRepo { return &ServiceAccountKeyRepo{s: s} }
func saKeyKeyID(email, id string) string                       { return key(saKeyPrefix, email, id) }

func (r *ServiceAccountKeyRepo) Create(k *model.ServiceAccountKey) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		return put(tx, saKeyKeyID(k.ServiceAccountEmail, k.ID), k, true)
	})
}

func (r *ServiceAccountKeyRepo) Get(email, id string) (*model.ServiceAccountKey, error) {
	var k model.ServiceAccountKey
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, saKeyKeyID(email, id), &k) })
	if err != nil {
		return nil, err
	}
	return &k, nil
}

func (r *ServiceAccountKeyRepo) Delete(email, id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return del(tx, saKeyKeyID(email, id)) })
}

func (r *ServiceAccountKeyRepo) ListByServiceAccount(email string) ([]*model.ServiceAccountKey, error) {
	var out []*model.ServiceAccountKey
	pat := saKeyPrefix + "\x1f" + email + "\x1f*"
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pat, func(k, v string) bool {
			var sk model.ServiceAccountKey
			if err := json.Unmarshal([]byte(v), &sk); err == nil {
				out = append(out, &sk)
			}
			return true
		})
	})
	return out, err
}

// PolicyRepo stores one IamPolicy row per (resourceType,resourceId).
type PolicyRepo struct{ s *Store }

func NewPolicyRepo(s *Store) *PolicyRepo { return &PolicyRepo{s: s} }
func policyKey(resourceType, resourceID string) string {
	return key(policyPrefix, resourceType, resourceID)
}

func (r *PolicyRepo) Get(resourceType, resourceID string) (*model.IamPolicy, error) {
	var p model.IamPolicy
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, policyKey(resourceType, resourceID), &p) })
	if err == nil {
		return &p, nil
	}
	if cmn.AsTaxonomy(err).Code() == cmn.CodeNotFound {
		// Absence means "no policy" - callers treat this as empty bindings,
		// not an error.
		return &model.IamPolicy{ResourceType: resourceType, ResourceID: resourceID, Version: 1}, nil
	}
	return nil, err
}

func (r *PolicyRepo) Set(p *model.IamPolicy) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		return put(tx, policyKey(p.ResourceType, p.ResourceID), p, false)
	})
}

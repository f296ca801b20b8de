package repo

import (
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/model"
)

const sessionPrefix = "session"

// SessionRepo stores ResumableSession rows. Lifetime is
// short: created on initiate, appended to by chunk PUTs, deleted on
// finalize or expiry.
type SessionRepo struct{ s *Store }

func NewSessionRepo(s *Store) *SessionRepo { return &SessionRepo{s: s} }

func sessionKey(id string) string { return key(sessionPrefix, id) }

func (r *SessionRepo) Create(sess *model.ResumableSession) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, sessionKey(sess.SessionID), sess, true) })
}

func (r *SessionRepo) Get(id string) (*model.ResumableSession, error) {
	var s model.ResumableSession
	err := r.s.View(func(tx *buntdb.Tx) error { return get(tx, sessionKey(id), &s) })
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) Update(sess *model.ResumableSession) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, sessionKey(sess.SessionID), sess, false) })
}

func (r *SessionRepo) Delete(id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		if err := del(tx, sessionKey(id)); err != nil {
			return err
		}
		return nil
	})
}

func (r *SessionRepo) ListExpiredBefore(cutoffUnix int64) ([]*model.ResumableSession, error) {
	var out []*model.ResumableSession
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(sessionPrefix+"\x1f*", func(k, v string) bool {
			var s model.ResumableSession
			if err := json.Unmarshal([]byte(v), &s); err == nil && s.CreatedAt.Unix() < cutoffUnix {
				out = append(out, &s)
			}
			return true
		})
	})
	return out, err
}

// LiveSessionIDs returns the id set of every current session, handed to
// the content store's orphan-temp sweep so only unclaimed temp files are
// reclaimed.
func (r *SessionRepo) LiveSessionIDs() (map[string]bool, error) {
	out := map[string]bool{}
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(sessionPrefix+"\x1f*", func(k, v string) bool {
			var s model.ResumableSession
			if err := json.Unmarshal([]byte(v), &s); err == nil {
				out[s.SessionID] = true
			}
			return true
		})
	})
	return out, err
}

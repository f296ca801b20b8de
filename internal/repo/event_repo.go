package repo

import (
	"github.com/tidwall/buntdb"

	"github.com/cloudemu/cloudemu/internal/cmn"
	"github.com/cloudemu/cloudemu/internal/model"
)

const eventPrefix = "event"

type EventRepo struct{ s *Store }

func NewEventRepo(s *Store) *EventRepo { return &EventRepo{s: s} }

func eventKey(id string) string { return key(eventPrefix, id) }

func (r *EventRepo) Append(e *model.ObjectEvent) error {
	return r.s.Update(func(tx *buntdb.Tx) error { return put(tx, eventKey(e.EventID), e, true) })
}

func (r *EventRepo) MarkDelivered(id string) error {
	return r.s.Update(func(tx *buntdb.Tx) error {
		var e model.ObjectEvent
		if err := get(tx, eventKey(id), &e); err != nil {
			return err
		}
		e.Delivered = true
		return put(tx, eventKey(id), &e, false)
	})
}

func (r *EventRepo) ListUndelivered() ([]*model.ObjectEvent, error) {
	var out []*model.ObjectEvent
	err := r.s.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(eventPrefix+"\x1f*", func(k, v string) bool {
			var e model.ObjectEvent
			if err := json.Unmarshal([]byte(v), &e); err == nil && !e.Delivered {
				out = append(out, &e)
			}
			return true
		})
	})
	if err != nil {
		return nil, cmn.WrapInternal(err, "list undelivered events")
	}
	return out, nil
}

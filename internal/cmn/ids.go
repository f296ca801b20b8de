package cmn

import (
	"sync"

	"github.com/teris-io/shortid"
)

// idGen is the process-wide generator; one seeded instance serves every
// caller.
var (
	idGen   *shortid.Shortid
	idGenMu sync.Mutex
)

func init() {
	sid, err := shortid.New(1, shortid.DefaultABC, 2342)
	if err != nil {
		panic(err)
	}
	idGen = sid
}

// NewID mints an opaque id suitable for resumable sessions, events, and
// any other internal primary key that must not leak sequential structure.
func NewID() string {
	idGenMu.Lock()
	defer idGenMu.Unlock()
	id, err := idGen.Generate()
	if err != nil {
		// shortid only fails on generator exhaustion at absurd QPS; retry
		// once against a re-seeded generator rather than propagate.
		sid, rerr := shortid.New(1, shortid.DefaultABC, uint64(len(id)+1))
		if rerr != nil {
			panic(err)
		}
		idGen = sid
		id, err = idGen.Generate()
		if err != nil {
			panic(err)
		}
	}
	return id
}

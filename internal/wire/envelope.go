// Package wire holds the HTTP-facing DTOs and envelope helpers that make
// responses bit-compatible with the modeled cloud provider's wire shapes:
// every resource carries kind/id/selfLink, list responses carry
// items[]/nextPageToken. Uses json-iterator as encoding/json's drop-in.
package wire

import jsoniter "github.com/json-iterator/go"

var API = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope wraps any resource with the kind/id/selfLink fields every
// response carries.
type Envelope struct {
	Kind     string      `json:"kind"`
	ID       string      `json:"id,omitempty"`
	SelfLink string      `json:"selfLink,omitempty"`
	Resource interface{} `json:",inline"`
}

// List is the generic {items[],nextPageToken,prefixes[]} list envelope.
type List struct {
	Kind          string      `json:"kind"`
	Items         interface{} `json:"items"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	Prefixes      []string    `json:"prefixes,omitempty"`
}

// MarshalJSON flattens Resource's fields alongside kind/id/selfLink,
// since encoding/json (and json-iterator, which mirrors its behavior)
// has no first-class "inline struct" tag.
func (e Envelope) MarshalJSON() ([]byte, error) {
	base := map[string]interface{}{}
	if e.Resource != nil {
		b, err := API.Marshal(e.Resource)
		if err != nil {
			return nil, err
		}
		if err := API.Unmarshal(b, &base); err != nil {
			return nil, err
		}
	}
	base["kind"] = e.Kind
	if e.ID != "" {
		base["id"] = e.ID
	}
	if e.SelfLink != "" {
		base["selfLink"] = e.SelfLink
	}
	return API.Marshal(base)
}

package ir

import "github.com/zclconf/go-cty/cty"

// State represents the persisted last-known state of every managed resource.
type State struct {
	Version   int            `json:"version"`
	Serial    int            `json:"serial"`
	Lineage   string         `json:"lineage"`
	Resources []*Record      `json:"resources"`
	Outputs   map[string]any `json:"outputs,omitempty"`
}

// Record holds the last materialized attributes of one resource instance.
// It is created on first successful apply and mutated only after a confirmed
// provider-side success.
type Record struct {
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Key          any            `json:"key,omitempty"` // string, float64 or nil
	Provider     string         `json:"provider"`
	Inputs       map[string]any `json:"inputs"`
	Outputs      map[string]any `json:"outputs"`
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Addr returns the unique address of the recorded instance.
func (r *Record) Addr() string {
	return FormatAddr(r.Type, r.Name, r.KeyValue())
}

// KeyValue converts the JSON-decoded instance key back to a cty value.
func (r *Record) KeyValue() cty.Value {
	switch k := r.Key.(type) {
	case string:
		return cty.StringVal(k)
	case float64:
		return cty.NumberFloatVal(k)
	case int:
		return cty.NumberIntVal(int64(k))
	default:
		return cty.NilVal
	}
}

// NewState returns an empty state document.
func NewState() *State {
	return &State{Version: 1, Serial: 0}
}

// Record returns the record with the given address, or nil.
func (s *State) Record(addr string) *Record {
	for _, r := range s.Resources {
		if r.Addr() == addr {
			return r
		}
	}
	return nil
}

// Put inserts or replaces the record for rec's address.
func (s *State) Put(rec *Record) {
	addr := rec.Addr()
	for i, r := range s.Resources {
		if r.Addr() == addr {
			s.Resources[i] = rec
			return
		}
	}
	s.Resources = append(s.Resources, rec)
}

// Remove deletes the record with the given address, if present.
func (s *State) Remove(addr string) {
	for i, r := range s.Resources {
		if r.Addr() == addr {
			s.Resources = append(s.Resources[:i], s.Resources[i+1:]...)
			return
		}
	}
}

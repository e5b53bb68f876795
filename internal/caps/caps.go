// Package caps models capability descriptors: unordered sets of named
// structures with string fields, as negotiated for RTP and raw media.
package caps

import (
	"maps"
	"slices"
	"strings"
)

const (
	RTPName      = "application/x-rtp"
	RawAudioName = "audio/x-raw"
	RawVideoName = "video/x-raw"

	// AnyName matches every structure.
	AnyName = "ANY"
)

// Structure is a single named entry of a capability Set.
type Structure struct {
	Name   string
	Fields map[string]string
}

func NewStructure(name string) Structure {
	return Structure{Name: name, Fields: map[string]string{}}
}

func (s Structure) Get(key string) (string, bool) {
	v, ok := s.Fields[key]
	return v, ok
}

// With returns a copy of s with key set to value.
func (s Structure) With(key, value string) Structure {
	out := s.Clone()
	out.Fields[key] = value
	return out
}

func (s Structure) Clone() Structure {
	fields := make(map[string]string, len(s.Fields))
	maps.Copy(fields, s.Fields)
	return Structure{Name: s.Name, Fields: fields}
}

// Keys returns the field names in sorted order.
func (s Structure) Keys() []string {
	return slices.Sorted(maps.Keys(s.Fields))
}

// Matches reports whether s and o can intersect: same name (or ANY) and equal
// values for every key present in both.
func (s Structure) Matches(o Structure) bool {
	if s.Name == AnyName || o.Name == AnyName {
		return true
	}
	if s.Name != o.Name {
		return false
	}
	for k, v := range s.Fields {
		if ov, ok := o.Fields[k]; ok && ov != v {
			return false
		}
	}
	return true
}

func (s Structure) merge(o Structure) Structure {
	if s.Name == AnyName {
		return o.Clone()
	}
	out := s.Clone()
	for k, v := range o.Fields {
		if _, ok := out.Fields[k]; !ok {
			out.Fields[k] = v
		}
	}
	return out
}

func (s Structure) String() string {
	var b strings.Builder
	b.WriteString(s.Name)
	for _, k := range s.Keys() {
		b.WriteString(", ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(s.Fields[k])
	}
	return b.String()
}

// Set is a capability descriptor. Order carries preference only.
type Set []Structure

var (
	Any      = Set{NewStructure(AnyName)}
	RawAudio = Set{NewStructure(RawAudioName)}
	RawVideo = Set{NewStructure(RawVideoName)}
)

func (c Set) Empty() bool { return len(c) == 0 }

func (c Set) Clone() Set {
	out := make(Set, 0, len(c))
	for _, s := range c {
		out = append(out, s.Clone())
	}
	return out
}

// Union appends the structures of o to a copy of c.
func (c Set) Union(o Set) Set {
	return append(c.Clone(), o.Clone()...)
}

// Intersect keeps the preference order of c and returns every merge of a
// structure in c with a matching structure in filter.
func (c Set) Intersect(filter Set) Set {
	var out Set
	for _, s := range c {
		for _, f := range filter {
			if s.Matches(f) {
				out = append(out, s.merge(f))
			}
		}
	}
	return out
}

// First returns the most preferred structure.
func (c Set) First() (Structure, bool) {
	if len(c) == 0 {
		return Structure{}, false
	}
	return c[0], true
}

func (c Set) String() string {
	parts := make([]string, 0, len(c))
	for _, s := range c {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, "; ")
}

package loader

import (
	"path"
	"strings"
)

// Resolver maps a resource id to the ordered locations it may be fetched from.
type Resolver interface {
	Candidates(resourceID string) []string
}

// ResolverFunc adapts a function to a Resolver.
type ResolverFunc func(resourceID string) []string

func (f ResolverFunc) Candidates(resourceID string) []string { return f(resourceID) }

// DefaultExtension is the file extension PathResolver appends.
const DefaultExtension = "html"

// PathResolver expands an id into, for each base path in order:
//
//	{base}/{id}/{id}.{ext}
//	{base}/{id}/index.{ext}
//	{base}/{id}.{ext}
//
// Ids that carry a scheme, start with "/" or already have an extension are
// used verbatim as the only candidate.
type PathResolver struct {
	BasePaths []string
	Extension string
}

var _ Resolver = PathResolver{}

func (r PathResolver) Candidates(id string) []string {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if strings.Contains(id, "://") || strings.HasPrefix(id, "/") || path.Ext(id) != "" {
		return []string{id}
	}
	ext := strings.TrimPrefix(r.Extension, ".")
	if ext == "" {
		ext = DefaultExtension
	}
	bases := r.BasePaths
	if len(bases) == 0 {
		bases = []string{""}
	}
	leaf := path.Base(id)
	out := make([]string, 0, len(bases)*3)
	for _, base := range bases {
		base = strings.TrimSuffix(base, "/")
		out = append(out,
			base+"/"+id+"/"+leaf+"."+ext,
			base+"/"+id+"/index."+ext,
			base+"/"+id+"."+ext,
		)
	}
	return out
}

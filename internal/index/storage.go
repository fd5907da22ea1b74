package index

import (
	"fmt"
	"sort"

	"multicarrier-planner/internal/model"
	"multicarrier-planner/internal/params"
)

// StorageSite is a storage facility for one carrier at one node. Sites that
// only exist as a repurposing target are not Declared and inherit the row of
// their Origin site.
type StorageSite struct {
	Node     string
	Carrier  model.Carrier
	Row      model.StorageRow
	Declared bool
	Origin   model.Carrier
}

func (s *StorageSite) Key() NodeCarrier { return NodeCarrier{s.Node, s.Carrier} }

func (ix *Index) buildStorage(rows []model.StorageRow, st *params.Table) error {
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return &model.SchemaError{Table: "storage", Row: i + 1, Reason: err.Error()}
		}
		id := fmt.Sprintf("%s/%s", r.Node, r.Carrier)
		if !ix.Hierarchy.Has(r.Node) {
			return &model.DanglingReferenceError{Kind: "storage", ID: id, Field: "node", Ref: r.Node}
		}
		if !ix.carrierSet[r.Carrier] {
			return &model.DanglingReferenceError{Kind: "storage", ID: id, Field: "carrier", Ref: string(r.Carrier)}
		}
		if n, ok := ix.active[r.Node]; ok && !n.Active(r.Carrier) {
			ix.warnf("storage: skipping %s, carrier is inactive at the node", id)
			continue
		}
		k := NodeCarrier{r.Node, r.Carrier}
		if _, dup := ix.siteBy[k]; dup {
			return &model.SchemaError{Table: "storage", Row: i + 1, Reason: "duplicate storage facility " + id}
		}
		s := &StorageSite{Node: r.Node, Carrier: r.Carrier, Row: r, Declared: true, Origin: r.Carrier}
		ix.siteBy[k] = s
		ix.Sites = append(ix.Sites, s)
	}
	sortSites(ix.Sites)

	declared := append([]*StorageSite(nil), ix.Sites...)
	for _, s := range declared {
		for _, f := range ix.Carriers {
			if f != s.Carrier {
				if !st.Has(params.RepurpStor, string(s.Carrier), f) {
					continue
				}
				if f.IsHydrogen() && !s.Row.H2Ready {
					continue
				}
				if n, ok := ix.active[s.Node]; ok && !n.Active(f) {
					continue
				}
			}
			k := NodeCarrier{s.Node, f}
			if _, ok := ix.siteBy[k]; !ok {
				t := &StorageSite{Node: s.Node, Carrier: f, Row: s.Row, Origin: s.Carrier}
				t.Row.Carrier = f
				ix.siteBy[k] = t
				ix.Sites = append(ix.Sites, t)
			}
			ix.sitePairs[s.Key()] = append(ix.sitePairs[s.Key()], f)
			ix.siteSrc[k] = append(ix.siteSrc[k], s.Carrier)
		}
	}
	// Target-only sites keep their capacity.
	for _, s := range ix.Sites {
		if !s.Declared {
			ix.sitePairs[s.Key()] = []model.Carrier{s.Carrier}
			ix.siteSrc[s.Key()] = append(ix.siteSrc[s.Key()], s.Carrier)
		}
	}
	for k := range ix.siteSrc {
		src := ix.siteSrc[k]
		sort.Slice(src, func(i, j int) bool { return src[i] < src[j] })
	}
	sortSites(ix.Sites)
	return nil
}

func sortSites(s []*StorageSite) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Node != s[j].Node {
			return s[i].Node < s[j].Node
		}
		return s[i].Carrier < s[j].Carrier
	})
}

// Site returns the storage site of (node, carrier).
func (ix *Index) Site(node string, c model.Carrier) (*StorageSite, bool) {
	s, ok := ix.siteBy[NodeCarrier{node, c}]
	return s, ok
}

// SiteTargets returns the carriers the capacity of site (node, e) can be
// assigned to in the next year, e itself included.
func (ix *Index) SiteTargets(node string, e model.Carrier) []model.Carrier {
	return ix.sitePairs[NodeCarrier{node, e}]
}

// SiteSources returns the carriers whose capacity at node can become
// capacity of carrier f.
func (ix *Index) SiteSources(node string, f model.Carrier) []model.Carrier {
	return ix.siteSrc[NodeCarrier{node, f}]
}

package main

import (
	"errors"
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"rocktree.lol/cache"
	"rocktree.lol/decode"
	"rocktree.lol/fetch"
	"rocktree.lol/index"
	"rocktree.lol/lod"
	"rocktree.lol/octree"
	"rocktree.lol/store"
)

const pollInterval = 200 * time.Millisecond

// load keeps the orchestrator fed with demand until done reports the goal
// reached, or until nothing is left to fetch for a demand that stopped
// growing, which also ends the loop without error.
func load(c cx, o *fetch.Orchestrator, demand func() []octree.Path,
	done func() (bo, er)) (err er) {

	t := time.NewTicker(pollInterval)
	defer t.Stop()
	last := -1
	for {
		d := demand()
		if err = o.Tick(c, d); err != nil {
			return
		}
		var finished bo
		if finished, err = done(); finished || err != nil {
			return
		}
		// a bulk landing after demand was computed can still grow it
		if o.Idle() && len(d) == last && len(demand()) == last {
			return
		}
		last = len(d)
		select {
		case <-c.Done():
			return c.Err()
		case e := <-o.Events():
			log.D.Ln(e)
		case <-t.C:
		}
	}
}

// blocked explains why the metadata of p cannot be reached, nil while it
// still may be.
func blocked(o *fetch.Orchestrator, p octree.Path) er {
	if e, _ := o.Cache.Get(cache.PlanetoidKey); e.State == cache.Failed {
		return pkgerrors.Wrap(e.Err, "planetoid")
	}
	_, err := o.Index.ResolveBulkFor(p)
	var bm *index.BulkMissing
	if errors.As(err, &bm) {
		if !bm.EpochKnown {
			return nil
		}
		if e, _ := o.Cache.Get(cache.BulkKey(bm.Key)); e.State == cache.Failed {
			return pkgerrors.Wrapf(e.Err, "bulk %s", bm.Key)
		}
		return nil
	}
	return err
}

func never() []octree.Path { return nil }

func only(p octree.Path) func() []octree.Path { return func() []octree.Path { return []octree.Path{p} } }

func show(v any) (err er) {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err = enc.Encode(v); err != nil {
		return
	}
	return enc.Close()
}

func loadPlanetoid(c cx, o *fetch.Orchestrator) (p *decode.Planetoid, err er) {
	err = load(c, o, never, func() (bo, er) {
		var ok bo
		if p, ok = o.Planetoid(); ok {
			return true, nil
		}
		return false, blocked(o, octree.Root)
	})
	if err == nil && p == nil {
		err = errorf.E("planetoid not loaded")
	}
	return
}

type planetoidReport struct {
	Radius             float32 `yaml:"radius"`
	MinTerrainAltitude float32 `yaml:"min_terrain_altitude"`
	MaxTerrainAltitude float32 `yaml:"max_terrain_altitude"`
	RootEpoch          uint32  `yaml:"root_epoch"`
}

func planetoid(c cx, o *fetch.Orchestrator) (err er) {
	var p *decode.Planetoid
	if p, err = loadPlanetoid(c, o); err != nil {
		return
	}
	return show(planetoidReport{p.Radius, p.MinTerrainAltitude, p.MaxTerrainAltitude, p.RootEpoch})
}

type bulkNode struct {
	Path      st      `yaml:"path"`
	Flags     st      `yaml:"flags,omitempty"`
	Epoch     uint32  `yaml:"epoch"`
	BulkEpoch uint32  `yaml:"bulk_epoch,omitempty"`
	Texel     float32 `yaml:"meters_per_texel"`
}

type bulkReport struct {
	Head                  st         `yaml:"head"`
	Epoch                 uint32     `yaml:"epoch"`
	HeadNodeCenter        [3]float64 `yaml:"head_node_center,flow"`
	DefaultImageryEpoch   uint32     `yaml:"default_imagery_epoch"`
	DefaultTextureFormats uint32     `yaml:"default_texture_formats"`
	ChildBulks            no         `yaml:"child_bulks"`
	Nodes                 []bulkNode `yaml:"nodes"`
}

func bulk(c cx, o *fetch.Orchestrator, a *bulkCmd) (err er) {
	var p octree.Path
	if p, err = octree.ParsePath(a.Path); err != nil {
		return
	}
	var head octree.NodeKey
	if err = load(c, o, only(p), func() (bo, er) {
		var e er
		if head, e = o.Index.ResolveBulkFor(p); e == nil {
			return true, nil
		}
		return false, blocked(o, p)
	}); err != nil {
		return
	}
	b, ok := o.Bulk(head.Path)
	if !ok {
		return errorf.E("bulk for %s not loaded", p)
	}
	r := bulkReport{
		Head:                  b.Head.Path.String(),
		Epoch:                 b.Head.Epoch,
		HeadNodeCenter:        b.HeadNodeCenter,
		DefaultImageryEpoch:   b.DefaultImageryEpoch,
		DefaultTextureFormats: b.DefaultTextureFormats,
		ChildBulks:            len(b.ChildBulks()),
	}
	for _, np := range b.NodePaths() {
		n, _ := b.Node(np)
		bn := bulkNode{Path: np.String(), Epoch: n.Epoch, Texel: n.MetersPerTexel}
		if n.Flags != 0 {
			bn.Flags = n.Flags.String()
		}
		if n.ChildBulk {
			bn.BulkEpoch = n.BulkEpoch
		}
		r.Nodes = append(r.Nodes, bn)
	}
	return show(r)
}

type textureReport struct {
	Format st `yaml:"format"`
	Width  no `yaml:"width"`
	Height no `yaml:"height"`
	Bytes  no `yaml:"bytes"`
}

type meshReport struct {
	ID         uint32          `yaml:"id"`
	Vertices   no              `yaml:"vertices"`
	Triangles  no              `yaml:"triangles"`
	Layers     []no            `yaml:"layer_bounds,flow"`
	HasOctants bo              `yaml:"has_octants"`
	Normals    bo              `yaml:"normals"`
	Textures   []textureReport `yaml:"textures,omitempty"`
}

type nodeReport struct {
	Key          st           `yaml:"key"`
	Matrix       [16]float64  `yaml:"matrix_globe_from_mesh,flow"`
	CopyrightIDs []uint32     `yaml:"copyright_ids,flow,omitempty"`
	Meshes       []meshReport `yaml:"meshes"`
}

func node(c cx, o *fetch.Orchestrator, a *nodeCmd) (err er) {
	var p octree.Path
	if p, err = octree.ParsePath(a.Path); err != nil {
		return
	}
	var n *decode.Node
	if err = load(c, o, only(p), func() (bo, er) {
		var e cache.Entry
		if n, e = o.Node(p); n != nil {
			return true, nil
		}
		if e.State == cache.Failed {
			return false, pkgerrors.Wrapf(e.Err, "%s", e.Key)
		}
		if _, _, nerr := o.Index.NodeKeyFor(p); nerr != nil && !errors.Is(nerr, index.ErrBulkMissing) {
			return false, nerr
		}
		return false, blocked(o, p)
	}); err != nil {
		return
	}
	if n == nil {
		return errorf.E("node %s not loaded", p)
	}
	r := nodeReport{Key: n.Key.String(), Matrix: n.MatrixGlobeFromMesh, CopyrightIDs: n.CopyrightIDs}
	for _, m := range n.Meshes {
		mr := meshReport{
			ID:         m.ID,
			Vertices:   len(m.Vertices),
			Triangles:  len(m.Triangles(decode.LayerCount)) / 3,
			Layers:     m.LayerBounds[:],
			HasOctants: m.HasOctants,
			Normals:    m.Normals != nil,
		}
		if a.Textures {
			for _, t := range m.Textures {
				mr.Textures = append(mr.Textures, textureReport{t.Format.String(), t.Width, t.Height, t.Size()})
			}
		}
		r.Meshes = append(r.Meshes, mr)
	}
	return show(r)
}

type loadReport struct {
	Demanded  no    `yaml:"demanded"`
	Ready     no    `yaml:"ready"`
	Failed    no    `yaml:"failed"`
	NoData    no    `yaml:"no_data"`
	Bulks     no    `yaml:"bulks"`
	Bytes     int64 `yaml:"bytes"`
	Triangles no    `yaml:"triangles"`
	Elapsed   st    `yaml:"elapsed"`
}

func report(o *fetch.Orchestrator, demand []octree.Path, started time.Time) (err er) {
	s := o.Stats()
	r := loadReport{Demanded: len(demand), Bulks: s.Bulks, Bytes: s.Cache.Bytes,
		Elapsed: time.Since(started).Round(time.Millisecond).String()}
	for _, p := range demand {
		n, e := o.Node(p)
		switch {
		case n != nil:
			r.Ready++
			for _, m := range n.Meshes {
				r.Triangles += len(m.Triangles(decode.LayerCount)) / 3
			}
		case e.State == cache.Failed:
			r.Failed++
			log.W.F("%s: %v", p, e.Err)
		default:
			if _, _, nerr := o.Index.NodeKeyFor(p); errors.Is(nerr, index.ErrNoData) {
				r.NoData++
			}
		}
	}
	return show(r)
}

// subtree lists the loaded nodes of the subtree of root breadth first, down
// to depth levels below it.
func subtree(x *index.T, root octree.Path, depth, limit no) (d []octree.Path) {
	if !root.IsRoot() {
		d = append(d, root)
	}
	frontier := []octree.Path{root}
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []octree.Path
		for _, p := range frontier {
			children, err := x.Children(p)
			if err != nil {
				continue
			}
			for _, ch := range children {
				if len(d) >= limit {
					return
				}
				d = append(d, ch)
				next = append(next, ch)
			}
		}
		frontier = next
	}
	return
}

func crawl(c cx, o *fetch.Orchestrator, a *crawlCmd) (err er) {
	var root octree.Path
	if root, err = octree.ParsePath(a.Path); err != nil {
		return
	}
	started := time.Now()
	var demand []octree.Path
	if err = load(c, o, func() []octree.Path {
		demand = subtree(o.Index, root, a.Depth, a.MaxNodes)
		return demand
	}, func() (bo, er) { return false, blocked(o, root) }); err != nil {
		return
	}
	return report(o, demand, started)
}

func view(c cx, o *fetch.Orchestrator, a *viewCmd) (err er) {
	started := time.Now()
	var p *decode.Planetoid
	if p, err = loadPlanetoid(c, o); err != nil {
		return
	}
	cam := lod.Orbit(a.Lat, a.Lon, a.Alt, float64(p.Radius), a.Width, a.Height)
	v := cam.View(a.MaxLevel, a.MaxNodes)
	var demand []octree.Path
	if err = load(c, o, func() []octree.Path {
		demand = lod.Traverse(o.Index, v)
		return demand
	}, func() (bo, er) { return false, blocked(o, octree.Root) }); err != nil {
		return
	}
	return report(o, demand, started)
}

type dbReport struct {
	Path     st    `yaml:"path,omitempty"`
	Payloads no    `yaml:"payloads"`
	Bytes    int64 `yaml:"bytes"`
}

func db(c cx, s store.I, a *dbCmd) (err er) {
	if a.Nuke {
		log.I.Ln("deleting every stored payload")
		if err = s.Nuke(); err != nil {
			return
		}
	}
	var r dbReport
	r.Path = s.Path()
	if r.Payloads, r.Bytes, err = s.Count(c); err != nil {
		return
	}
	return show(r)
}

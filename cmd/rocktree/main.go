// Command rocktree fetches and decodes planetoid data: the planetoid
// metadata, the bulk covering a path, the mesh data of a node, or every node
// of a subtree or a camera view, keeping the payloads in a disk cache.
package main

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"strings"
	"sync"

	"github.com/alexflint/go-arg"
	"github.com/pkg/profile"

	"rocktree.lol/config"
	"rocktree.lol/context"
	"rocktree.lol/fetch"
	"rocktree.lol/interrupt"
	"rocktree.lol/lol"
	"rocktree.lol/ratel"
	"rocktree.lol/store"
	"rocktree.lol/texture"
	"rocktree.lol/transport"
	"rocktree.lol/units"
)

type planetoidCmd struct{}

type bulkCmd struct {
	Path st `arg:"positional,required" help:"octant path, digits 0 to 7"`
}

type nodeCmd struct {
	Path     st `arg:"positional,required" help:"octant path, digits 0 to 7"`
	Textures bo `arg:"-t,--textures" help:"list the textures of every mesh"`
}

type crawlCmd struct {
	Path     st `arg:"positional" help:"octant path of the subtree, the whole planetoid when empty"`
	Depth    no `arg:"-d,--depth" default:"4" help:"levels below the path to load"`
	MaxNodes no `arg:"-n,--max-nodes" default:"500" help:"stop after this many nodes"`
}

type viewCmd struct {
	Lat      float64 `arg:"--lat,required" help:"camera latitude in degrees"`
	Lon      float64 `arg:"--lon,required" help:"camera longitude in degrees"`
	Alt      float64 `arg:"--alt" default:"10000" help:"camera altitude in meters"`
	Width    float64 `arg:"--width" default:"1280" help:"viewport width in pixels"`
	Height   float64 `arg:"--height" default:"720" help:"viewport height in pixels"`
	MaxLevel no      `arg:"--max-level" default:"20" help:"deepest level refined"`
	MaxNodes no      `arg:"-n,--max-nodes" default:"1000" help:"stop after this many nodes"`
}

type dbCmd struct {
	Nuke bo `arg:"--nuke" help:"delete every stored payload"`
}

type runArgs struct {
	Planetoid *planetoidCmd `arg:"subcommand:planetoid" help:"print the planetoid metadata"`
	Bulk      *bulkCmd      `arg:"subcommand:bulk" help:"print the bulk carrying the metadata of a path"`
	Node      *nodeCmd      `arg:"subcommand:node" help:"print the decoded mesh data of a node"`
	Crawl     *crawlCmd     `arg:"subcommand:crawl" help:"load every node of a subtree"`
	View      *viewCmd      `arg:"subcommand:view" help:"load the nodes a camera needs"`
	DB        *dbCmd        `arg:"subcommand:db" help:"print the size of the payload store"`
}

func (runArgs) Description() string {
	return "rocktree fetches and decodes planetoid mesh data.\n" +
		"'rocktree help' lists the environment variables that configure it.\n"
}

func main() {
	var err er
	var cfg *config.C
	if cfg, err = config.New(); chk.T(err) {
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err)
		}
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	if config.GetEnv() {
		config.PrintEnv(cfg, os.Stdout)
		os.Exit(0)
	}
	if config.HelpRequested() {
		config.PrintHelp(cfg, os.Stderr)
		os.Exit(0)
	}
	var args runArgs
	p := arg.MustParse(&args)
	if p.Subcommand() == nil {
		p.Fail("missing command")
	}
	lol.SetLogLevel(cfg.LogLevel)
	if cfg.Pprof {
		defer profile.Start(profile.MemProfile).Stop()
		go func() {
			chk.E(http.ListenAndServe("127.0.0.1:6060", nil))
		}()
	}
	var wg sync.WaitGroup
	c, cancel := context.Cancel(context.Bg())
	interrupt.AddHandler(cancel)
	var s store.I
	if s, err = openStore(c, &wg, cfg); chk.E(err) {
		os.Exit(1)
	}
	if args.DB != nil {
		err = db(c, s, args.DB)
	} else {
		err = run(c, cfg, s, &args)
	}
	cancel()
	chk.E(s.Close())
	wg.Wait()
	if err != nil {
		log.E.Ln(err)
		os.Exit(1)
	}
}

// openStore opens the disk cache, or a memory store when it is disabled.
func openStore(c cx, wg *sync.WaitGroup, cfg *config.C) (s store.I, err er) {
	if !cfg.DiskCache {
		s = store.NewMemory()
		return s, s.Init("")
	}
	r := ratel.New(ratel.BackendParams{
		Ctx:            c,
		WG:             wg,
		BlockCacheSize: 64 * units.Mb,
		LogLevel:       lol.GetLogLevel(cfg.DbLogLevel),
		SizeLimit:      cfg.DBSizeLimit,
		GCFrequency:    cfg.GCFrequency,
	})
	if err = r.Init(cfg.DataDir()); err != nil {
		return
	}
	return r, nil
}

// run starts an orchestrator fetching through the store and runs the chosen
// command against it.
func run(c cx, cfg *config.C, s store.I, args *runArgs) (err er) {
	var formats []texture.Format
	if formats, err = texture.ParseList(strings.Join(cfg.TextureFormats, ",")); chk.E(err) {
		return
	}
	f := &transport.Persistent{Fetcher: transport.NewHTTP(), Store: s}
	cl := transport.NewClient(f, cfg.BaseURL, formats)
	cl.Timeout = cfg.RequestTimeout
	o := fetch.New(cl, fetch.Params{
		MaxConcurrent:  cfg.MaxConcurrent,
		MaxAttempts:    cfg.MaxAttempts,
		RequestTimeout: cfg.RequestTimeout,
		BackoffInitial: cfg.BackoffInitial,
		BackoffMax:     cfg.BackoffMax,
		RetryCooldown:  cfg.RetryCooldown,
		CacheBudget:    cfg.CacheBudget,
		Formats:        formats,
	})
	var wg sync.WaitGroup
	wg.Add(1)
	rc, stop := context.Cancel(c)
	go func() {
		defer wg.Done()
		o.Run(rc)
	}()
	defer func() {
		stop()
		wg.Wait()
	}()
	switch {
	case args.Planetoid != nil:
		err = planetoid(rc, o)
	case args.Bulk != nil:
		err = bulk(rc, o, args.Bulk)
	case args.Node != nil:
		err = node(rc, o, args.Node)
	case args.Crawl != nil:
		err = crawl(rc, o, args.Crawl)
	case args.View != nil:
		err = view(rc, o, args.View)
	}
	return
}

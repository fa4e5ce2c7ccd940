package transport

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"rocktree.lol/context"
	"rocktree.lol/decode"
	"rocktree.lol/octree"
	"rocktree.lol/texture"
	"rocktree.lol/wire"
)

// DefaultBaseURL is the public planetoid endpoint.
const DefaultBaseURL = "https://kh.google.com/rt/earth/"

// DefaultTimeout bounds a shared fetch once its callers are detached from it.
const DefaultTimeout = 30 * time.Second

// NodeRequest is everything that goes into a node data URL.
type NodeRequest struct {
	Key    octree.NodeKey
	Format texture.Format
	// ImageryEpoch is sent only for nodes flagged to use one.
	ImageryEpoch *uint32
}

// RequestFor builds the request of a node from its bulk metadata, picking the
// first of prefs that the node offers.
func RequestFor(n *decode.NodeMeta, prefs []texture.Format) (r NodeRequest) {
	r = NodeRequest{Key: n.Key(), Format: texture.Select(n.AvailableTextureFormats, prefs)}
	if n.HasImageryEpoch {
		ie := n.ImageryEpoch
		r.ImageryEpoch = &ie
	}
	return
}

// Client builds payload URLs, collapses concurrent fetches of one URL into a
// single call and decodes the results.
type Client struct {
	Fetcher Fetcher
	BaseURL st
	// Formats is the texture preference used by FetchNodeMeta.
	Formats []texture.Format
	// Timeout bounds each fetch, which outlives the caller that started it
	// so that the callers who joined it still get the payload.
	Timeout time.Duration
	group   singleflight.Group
}

// NewClient creates a client. An empty baseURL is DefaultBaseURL and empty
// prefs is texture.DefaultPreference.
func NewClient(f Fetcher, baseURL st, prefs []texture.Format) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if len(prefs) == 0 {
		prefs = texture.DefaultPreference
	}
	return &Client{Fetcher: f, BaseURL: baseURL, Formats: prefs, Timeout: DefaultTimeout}
}

// PlanetoidURL is the URL of the planetoid metadata.
func (cl *Client) PlanetoidURL() st { return cl.BaseURL + "PlanetoidMetadata" }

// BulkURL is the URL of the bulk headed at k.
func (cl *Client) BulkURL(k octree.NodeKey) st {
	return fmt.Sprintf("%sBulkMetadata/pb=!1m2!1s%s!2u%d", cl.BaseURL, string(k.Path), k.Epoch)
}

// NodeURL is the URL of the node data of r.
func (cl *Client) NodeURL(r NodeRequest) st {
	if r.ImageryEpoch != nil {
		return fmt.Sprintf("%sNodeData/pb=!1m2!1s%s!2u%d!2e%d!3u%d!4b0",
			cl.BaseURL, string(r.Key.Path), r.Key.Epoch, r.Format, *r.ImageryEpoch)
	}
	return fmt.Sprintf("%sNodeData/pb=!1m2!1s%s!2u%d!2e%d!4b0",
		cl.BaseURL, string(r.Key.Path), r.Key.Epoch, r.Format)
}

// Raw fetches url. Callers asking for a URL already in flight wait for that
// fetch instead of starting another, or give up when c is done. The fetch
// itself runs detached from c, bounded by Timeout.
func (cl *Client) Raw(c cx, url st) (b by, err er) {
	ch := cl.group.DoChan(url, func() (any, error) {
		d := cl.Timeout
		if d <= 0 {
			d = DefaultTimeout
		}
		fc, cancel := context.Timeout(context.Detach(c), d)
		defer cancel()
		return cl.Fetcher.Fetch(fc, url)
	})
	select {
	case <-c.Done():
		return nil, c.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.T.F("shared fetch of %s", url)
		}
		return res.Val.(by), nil
	}
}

// FetchPlanetoid fetches and decodes the planetoid metadata.
func (cl *Client) FetchPlanetoid(c cx) (p *decode.Planetoid, err er) {
	var b by
	if b, err = cl.Raw(c, cl.PlanetoidURL()); err != nil {
		return
	}
	var pm *wire.PlanetoidMetadata
	if pm, err = wire.ParsePlanetoidMetadata(b); err != nil {
		return nil, errors.Wrapf(err, "planetoid")
	}
	if p, err = decode.DecodePlanetoid(pm); err != nil {
		return nil, errors.Wrapf(err, "planetoid")
	}
	return
}

// FetchBulk fetches and decodes the bulk headed at k.
func (cl *Client) FetchBulk(c cx, k octree.NodeKey) (b *decode.Bulk, err er) {
	var raw by
	if raw, err = cl.Raw(c, cl.BulkURL(k)); err != nil {
		return
	}
	var bm *wire.BulkMetadata
	if bm, err = wire.ParseBulkMetadata(raw); err != nil {
		return nil, errors.Wrapf(err, "bulk %s", k)
	}
	if b, err = decode.DecodeBulk(k, bm); err != nil {
		return nil, errors.Wrapf(err, "bulk %s", k)
	}
	return
}

// FetchNode fetches and decodes the node data of r.
func (cl *Client) FetchNode(c cx, r NodeRequest) (n *decode.Node, err er) {
	var raw by
	if raw, err = cl.Raw(c, cl.NodeURL(r)); err != nil {
		return
	}
	var nd *wire.NodeData
	if nd, err = wire.ParseNodeData(raw); err != nil {
		return nil, errors.Wrapf(err, "node %s", r.Key)
	}
	if n, err = decode.DecodeNode(r.Key, nd); err != nil {
		return nil, errors.Wrapf(err, "node %s", r.Key)
	}
	return
}

// FetchNodeMeta fetches the node data described by bulk metadata using the
// texture preference of the client.
func (cl *Client) FetchNodeMeta(c cx, n *decode.NodeMeta) (*decode.Node, er) {
	return cl.FetchNode(c, RequestFor(n, cl.Formats))
}

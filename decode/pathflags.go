package decode

import (
	"rocktree.lol/octree"
)

// PathAndFlags is the unpacked form of NodeMetadata.path_and_flags. Path is
// relative to the head of the bulk carrying the metadata.
type PathAndFlags struct {
	Path  octree.Path
	Level int
	Flags octree.Flags
}

// UnpackPathAndFlags splits the packed integer: the low two bits are the
// level minus one, then three bits per octant digit, and the bits above the
// last digit are flags.
func UnpackPathAndFlags(v uint32) (pf PathAndFlags) {
	pf.Level = 1 + int(v&3)
	v >>= 2
	p := make([]byte, pf.Level)
	for i := range p {
		p[i] = '0' + byte(v&7)
		v >>= 3
	}
	pf.Path, pf.Flags = octree.Path(p), octree.Flags(v)
	return
}

// PackPathAndFlags is the inverse of UnpackPathAndFlags for relative paths of
// one to four digits.
func PackPathAndFlags(rel octree.Path, flags octree.Flags) (v uint32, err error) {
	if rel.Level() < 1 || rel.Level() > octree.BulkDepth || !rel.Valid() {
		err = fail(Malformed, "path_and_flags", 0, "relative path %q", string(rel))
		return
	}
	for i := len(rel) - 1; i >= 0; i-- {
		v = v<<3 | uint32(rel[i]-'0')
	}
	v = uint32(flags)<<(3*len(rel)) | v
	v = v<<2 | uint32(len(rel)-1)
	return
}

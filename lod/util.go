package lod

import (
	"rocktree.lol/lol"
)

var (
	log = lol.Main.Log
)

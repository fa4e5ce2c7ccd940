package ratel

import (
	"rocktree.lol/context"
	"rocktree.lol/lol"
)

type (
	bo = bool
	by = []byte
	st = string
	er = error
	no = int
	cx = context.T
)

var (
	log, chk, errorf = lol.Main.Log, lol.Main.Check, lol.Main.Errorf
)

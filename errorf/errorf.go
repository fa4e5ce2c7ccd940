// Package errorf is a shortcut to the logging error constructors of lol.Main.
package errorf

import (
	"rocktree.lol/lol"
)

var F, E, W, I, D, T lol.Err

func init() {
	F, E, W, I, D, T = lol.Main.Errorf.F, lol.Main.Errorf.E, lol.Main.Errorf.W, lol.Main.Errorf.I,
		lol.Main.Errorf.D, lol.Main.Errorf.T
}

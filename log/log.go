// Package log is a shortcut to the level printers of lol.Main.
package log

import (
	"rocktree.lol/lol"
)

var F, E, W, I, D, T lol.LevelPrinter

func init() {
	F, E, W, I, D, T = lol.Main.Log.F, lol.Main.Log.E, lol.Main.Log.W, lol.Main.Log.I,
		lol.Main.Log.D, lol.Main.Log.T
}

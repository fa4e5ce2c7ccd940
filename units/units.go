// Package units names data sizes in bytes using common ISO names (base 10)
// plus the binary sizes badger configures itself with.
package units

const (
	Kilobyte = 1000
	Kb       = Kilobyte
	Megabyte = Kilobyte * Kilobyte
	Mb       = Megabyte
	Gigabyte = Megabyte * Kilobyte
	Gb       = Gigabyte

	Kibibyte = 1 << 10
	KiB      = Kibibyte
	Mebibyte = 1 << 20
	MiB      = Mebibyte
)

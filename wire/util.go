package wire

type (
	by = []byte
	st = string
	er = error
	no = int
)

package fetch

import (
	"errors"

	"rocktree.lol/context"
	"rocktree.lol/decode"
	"rocktree.lol/index"
	"rocktree.lol/transport"
	"rocktree.lol/wire"
)

// Kind is the class of a fetch failure, which decides what happens next.
type Kind uint8

const (
	None Kind = iota
	// Transport failures are retried with backoff.
	Transport
	// Protocol failures are responses that cannot be parsed or that the
	// server refused. They are final.
	Protocol
	// Decode failures are well formed messages with invalid contents. They
	// are final.
	Decode
	// EpochMismatch is a version the index no longer advertises. It is
	// resolved again through the parent bulk rather than retried.
	EpochMismatch
	// Canceled is a fetch abandoned because the orchestrator stopped.
	Canceled
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Decode:
		return "decode"
	case EpochMismatch:
		return "epoch mismatch"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Classify maps an error to its Kind.
func Classify(err er) Kind {
	if err == nil {
		return None
	}
	var (
		em *index.EpochMismatch
		te *transport.Error
		de *decode.Error
		we *wire.Error
	)
	switch {
	case errors.Is(err, context.Canceled):
		return Canceled
	case errors.As(err, &em):
		return EpochMismatch
	case errors.As(err, &te):
		if te.Retryable {
			return Transport
		}
		return Protocol
	case errors.As(err, &de):
		return Decode
	case errors.As(err, &we):
		return Protocol
	case errors.Is(err, context.DeadlineExceeded):
		return Transport
	}
	return Protocol
}

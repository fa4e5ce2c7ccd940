package keyvalue

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Inner struct {
	Level string `env:"LEVEL"`
}

type cfg struct {
	Inner
	Name    string        `env:"NAME"`
	Timeout time.Duration `env:"TIMEOUT"`
	List    []string      `env:"LIST"`
	Skipped int
}

func TestEnvKV(t *testing.T) {
	c := cfg{Inner{"info"}, "a b", 2 * time.Second, []string{"x", "y"}, 3}
	require.Equal(t, KVSlice{
		{"LEVEL", "info"}, {"NAME", "a b"}, {"TIMEOUT", "2s"}, {"LIST", "x,y"},
	}, EnvKV(c))
	var b bytes.Buffer
	PrintEnv(c, &b)
	require.Equal(t, "#!/usr/bin/env bash\n"+
		"export LEVEL=info\n"+
		"export LIST=x,y\n"+
		"export NAME=\"a b\"\n"+
		"export TIMEOUT=2s\n", b.String())
}

// Package env is an implementation of the env.Source interface from
// go-simpler.org
package env

import (
	"os"
	"strings"

	"rocktree.lol/chk"
)

// Env is a key/value map used to represent environment variables. This is
// implemented for go-simpler.org library.
type Env map[string]string

// GetEnv reads a file expected to represent a collection of KEY=value in
// standard shell environment variable format - ie, key usually in all upper
// case no spaces and words separated by underscore, value can have any
// separator, but usually comma, for an array of values. Blank lines, comments
// and a leading export are skipped.
func GetEnv(path string) (env Env, err error) {
	var s []byte
	env = make(Env)
	if s, err = os.ReadFile(path); chk.T(err) {
		return
	}
	lines := strings.Split(string(s), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) == 0 || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		split := strings.SplitN(line, "=", 2)
		if len(split) != 2 {
			continue
		}
		env[strings.TrimSpace(split[0])] = strings.Trim(strings.TrimSpace(split[1]), `"'`)
	}
	return
}

// FromOS returns the environment of the process.
func FromOS() (env Env) {
	env = make(Env)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return
}

// Over returns a copy of env with the values of top replacing its own.
func (env Env) Over(top Env) (out Env) {
	out = make(Env, len(env)+len(top))
	for k, v := range env {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return
}

// LookupEnv returns the raw string value associated with a provided key name,
// used as a custom environment variable loader for go-simpler.org/env to enable
// .env file loading.
func (env Env) LookupEnv(key string) (value string, ok bool) {
	value, ok = env[key]
	return
}

package config

import "github.com/forgewright/enginecore/pkg/environment"

// RuntimeConfig carries the process-wide state builtin tools need at
// construction time: the environment resolution chain and the working
// directory tool handlers resolve relative paths against.
type RuntimeConfig struct {
	DefaultEnvProvider environment.Provider
	EnvFiles           []string
	WorkingDir         string
}

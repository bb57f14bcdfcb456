package environment

// NewDefaultProvider returns the default environment resolution chain: the
// OS environment only. The teacher's credential-helper backends (1Password,
// pass, OS keychain) are out of scope here (SPEC_FULL.md carries no secret
// broker component; config resolution is local-file/env only per spec.md
// §6.2 / §4.2's Capabilities Registry).
func NewDefaultProvider() Provider {
	return NewOsEnvProvider()
}

package engine

// version is the engine's own release identifier, independent of any
// server it talks to. GetVersion is the one process-wide, pure
// function the facade exposes, per §9 "No global mutable state".
const version = "0.1.0"

// GetVersion returns the engine library's version string.
func GetVersion() string { return version }

// Package security derives a configuration posture report with human-readable
// warnings. It performs no I/O and is shared by the engine and the operator
// tooling.
package security

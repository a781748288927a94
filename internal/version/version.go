// Package version holds build version information.
package version

// Version is the application version, overridden at build time with
// -ldflags "-X github.com/clinica-juridica/expediente/internal/version.Version=...".
var Version = "0.1.0-dev"

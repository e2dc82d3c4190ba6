package version

// CLIName is the binary name used in help output and user agent strings.
const CLIName = "swap-cli"

// Version is overridden at build time via -ldflags.
var Version = "dev"

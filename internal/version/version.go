package version

// Current is the enricher release, reported by the version command and /healthz.
const Current = "0.1.0"

// Package docs embeds the API reference served by the coordinator.
package docs

import _ "embed"

// APIReference is the rendered markdown API documentation.
//
//go:embed api.md
var APIReference []byte

// Package widget embeds the browser-side chat widget script served from
// /widget.js.
package widget

import _ "embed"

//go:embed widget.js
var JS []byte

// File: internal/formserver/shell.go
package formserver

import _ "embed"

//go:embed web/index.html
var shellHTML []byte

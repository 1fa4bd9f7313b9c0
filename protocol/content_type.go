package protocol

import (
	"path/filepath"
	"strings"
)

var contentTypes = map[string]string{
	"html": "text/html",
	"css":  "text/css",
	"js":   "text/javascript",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"swf":  "application/x-shockwave-flash",
}

// ContentTypeFor maps the extension of path to a MIME type. Unknown and
// missing extensions map to "", in which case no Content-Type is sent.
func ContentTypeFor(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return contentTypes[strings.ToLower(ext)]
}

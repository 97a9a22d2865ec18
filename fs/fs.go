// Package appfs exposes the app's embedded static files:
// database migrations and email templates.
package appfs

import "embed"

//go:embed migrations all:templates/email
var FS embed.FS

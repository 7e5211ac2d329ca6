//go:build tools

// Package tools pins build-time tooling in go.mod so `go install` and
// `go mod tidy` keep the schema-migration CLI's version in lockstep with
// the rest of the module. It is never compiled into the server binary.
package tools

import (
	_ "github.com/golang-migrate/migrate/v4/cmd/migrate"
)

//go:build tools

// Package tools tracks the code generators used by go generate.
package ridehub

import (
	_ "go.uber.org/mock/mockgen"
)

//go:build tools
// +build tools

// Package tools pins mockgen, which regenerates mocks/ through the
// //go:generate line in contract/contract.go.
package relaychat

import (
	_ "go.uber.org/mock/mockgen"
)

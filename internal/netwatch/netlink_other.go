//go:build !linux

// ABOUTME: Fallback change source for platforms without rtnetlink
// ABOUTME: Start reports ErrUnsupported and the poll loop covers recovery
package netwatch

import "context"

func subscribe(context.Context) (<-chan event, error) {
	return nil, ErrUnsupported
}

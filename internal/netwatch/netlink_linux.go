//go:build linux

// ABOUTME: Linux change source built on rtnetlink link and address updates
// ABOUTME: Translates netlink updates into watcher events
package netwatch

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/vishvananda/netlink"
)

func subscribe(ctx context.Context) (<-chan event, error) {
	linkUpdates := make(chan netlink.LinkUpdate)
	addrUpdates := make(chan netlink.AddrUpdate)
	done := make(chan struct{})

	if err := netlink.LinkSubscribe(linkUpdates, done); err != nil {
		close(done)
		return nil, fmt.Errorf("failed to subscribe to link updates: %w", err)
	}
	if err := netlink.AddrSubscribe(addrUpdates, done); err != nil {
		close(done)
		return nil, fmt.Errorf("failed to subscribe to address updates: %w", err)
	}

	events := make(chan event)
	go func() {
		defer close(events)
		defer close(done)

		for {
			var ev event
			select {
			case <-ctx.Done():
				return
			case update, ok := <-linkUpdates:
				if !ok {
					return
				}
				ev = linkEvent(update)
			case update, ok := <-addrUpdates:
				if !ok {
					return
				}
				ev = event{
					Address:  true,
					Loopback: update.LinkAddress.IP.IsLoopback() || update.LinkAddress.IP.IsLinkLocalUnicast(),
				}
			}

			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

func linkEvent(update netlink.LinkUpdate) event {
	attrs := update.Link.Attrs()
	return event{
		Name:     attrs.Name,
		Up:       attrs.OperState == netlink.OperUp,
		Removed:  update.Header.Type == syscall.RTM_DELLINK,
		Loopback: attrs.Flags&net.FlagLoopback != 0,
	}
}

// ABOUTME: mDNS discovery of music hubs on the local network
// ABOUTME: Browses _mass._tcp and reads the advertised base URL from TXT records
package discovery

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

const (
	DefaultService = "_mass._tcp"
	defaultDomain  = "local"
)

// Config holds discovery configuration
type Config struct {
	Service string        // defaults to _mass._tcp
	Timeout time.Duration // per query round, defaults to 3s
	Logger  logrus.FieldLogger
}

// Server describes a discovered hub
type Server struct {
	Name     string
	Host     string
	Port     int
	BaseURL  string
	ServerID string
	Version  string
}

// Browser handles mDNS queries
type Browser struct {
	config  Config
	log     logrus.FieldLogger
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan *Server
	query   func(ctx context.Context, params *mdns.QueryParam) error
}

// NewBrowser creates a discovery browser
func NewBrowser(config Config) *Browser {
	if config.Service == "" {
		config.Service = DefaultService
	}
	if config.Timeout <= 0 {
		config.Timeout = 3 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Browser{
		config:  config,
		log:     logger.WithField("component", "discovery"),
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan *Server, 10),
		query:   mdns.QueryContext,
	}
}

// Discover runs one query round and returns the hubs that answered
func (b *Browser) Discover(ctx context.Context) ([]*Server, error) {
	entries := make(chan *mdns.ServiceEntry, 10)
	done := make(chan []*Server)

	go func() {
		var found []*Server
		seen := make(map[string]bool)
		for entry := range entries {
			srv, ok := serverFromEntry(entry)
			if !ok || seen[srv.BaseURL] {
				continue
			}
			seen[srv.BaseURL] = true
			found = append(found, srv)
		}
		done <- found
	}()

	err := b.query(ctx, b.params(entries))
	close(entries)
	found := <-done

	if err != nil && len(found) == 0 {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}
	return found, nil
}

// First blocks until a hub is found, ctx ends or timeout passes
func (b *Browser) First(ctx context.Context, timeout time.Duration) (*Server, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		found, err := b.Discover(ctx)
		if err != nil {
			b.log.WithError(err).Debug("Discovery round failed")
		}
		if len(found) > 0 {
			return found[0], nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("no hub found on the network: %w", ctx.Err())
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// Browse continuously searches for hubs and reports them on Servers()
func (b *Browser) Browse() error {
	go b.browseLoop()
	return nil
}

func (b *Browser) browseLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		found, err := b.Discover(b.ctx)
		if err != nil {
			b.log.WithError(err).Debug("Discovery round failed")
		}
		for _, srv := range found {
			b.log.WithFields(logrus.Fields{
				"name":     srv.Name,
				"base_url": srv.BaseURL,
			}).Info("Discovered hub")

			select {
			case b.servers <- srv:
			case <-b.ctx.Done():
				return
			}
		}
	}
}

// Servers returns the channel of discovered hubs
func (b *Browser) Servers() <-chan *Server {
	return b.servers
}

// Stop stops browsing
func (b *Browser) Stop() {
	b.cancel()
}

func (b *Browser) params(entries chan *mdns.ServiceEntry) *mdns.QueryParam {
	return &mdns.QueryParam{
		Service: b.config.Service,
		Domain:  defaultDomain,
		Timeout: b.config.Timeout,
		Entries: entries,
	}
}

// serverFromEntry prefers the advertised base_url and falls back to the
// resolved address and port
func serverFromEntry(entry *mdns.ServiceEntry) (*Server, bool) {
	if entry == nil {
		return nil, false
	}

	srv := &Server{
		Name: instanceName(entry.Name),
		Host: entry.Host,
		Port: entry.Port,
	}

	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "base_url":
			srv.BaseURL = strings.TrimRight(value, "/")
		case "server_id":
			srv.ServerID = value
		case "server_version":
			srv.Version = value
		}
	}

	if srv.BaseURL == "" {
		host := hostAddress(entry)
		if host == "" || entry.Port == 0 {
			return nil, false
		}
		srv.BaseURL = "http://" + net.JoinHostPort(host, strconv.Itoa(entry.Port))
	}
	return srv, true
}

func hostAddress(entry *mdns.ServiceEntry) string {
	switch {
	case entry.AddrV4 != nil:
		return entry.AddrV4.String()
	case entry.AddrV6 != nil:
		return entry.AddrV6.String()
	default:
		return strings.TrimSuffix(entry.Host, ".")
	}
}

// instanceName strips the service and domain labels from an mDNS name
func instanceName(name string) string {
	if i := strings.Index(name, "._"); i > 0 {
		return strings.ReplaceAll(name[:i], `\ `, " ")
	}
	return name
}

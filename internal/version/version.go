// ABOUTME: Product and build version constants
// ABOUTME: Reported in request headers and on the media-remote surface
package version

const (
	// Version is the client software version
	Version = "0.3.0"

	// Product is the client product name
	Product = "Hub Remote"

	// Manufacturer identifies the client vendor
	Manufacturer = "Sendspin"
)

// UserAgent returns the HTTP User-Agent for requests to the hub
func UserAgent() string {
	return "hubremote/" + Version
}

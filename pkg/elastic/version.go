package elastic

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/sirupsen/logrus"
)

// Transport selects how the live source is queried.
type Transport string

const (
	// TransportNative uses the official client and its wire protocol.
	TransportNative Transport = "native"
	// TransportHTTP posts the query body to the _search endpoint directly.
	TransportHTTP Transport = "http"
)

// DefaultServerMajor is assumed whenever version detection fails; detection
// failures only influence the transport choice and must never block retrieval.
const DefaultServerMajor = 8

// maxCompatibleMajor caps the compatible-with media type parameter; some
// clusters reject values above 8.
const maxCompatibleMajor = 8

// DetectServerMajor performs a single bounded GET against the source root and
// parses the leading component of the dotted version string. Returns
// DefaultServerMajor on any failure: unreachable host, malformed response,
// timeout.
func DetectServerMajor(ctx context.Context, client *http.Client, host string) int {
	if host == "" {
		return DefaultServerMajor
	}
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/", nil)
	if err != nil {
		return DefaultServerMajor
	}
	resp, err := client.Do(req)
	if err != nil {
		logrus.Debugf("Source version detection failed for %s: %v", host, err)
		return DefaultServerMajor
	}
	defer resp.Body.Close()

	var root struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&root); err != nil {
		logrus.Debugf("Source version detection failed for %s: %v", host, err)
		return DefaultServerMajor
	}
	if major, ok := leadingMajor(root.Version.Number); ok {
		return major
	}
	return DefaultServerMajor
}

// ClientMajor reports the installed native client library's major version.
// This is a local inspection and never touches the network.
func ClientMajor() (int, bool) {
	return leadingMajor(elasticsearch.Version)
}

func leadingMajor(version string) (int, bool) {
	version = strings.TrimSpace(version)
	if version == "" {
		return 0, false
	}
	major, err := strconv.Atoi(strings.SplitN(version, ".", 2)[0])
	if err != nil {
		return 0, false
	}
	return major, true
}

// ChooseTransport decides native-vs-HTTP access. A client newer than the
// server commonly breaks native protocol negotiation, so HTTP with an
// explicit compatible media type is preferred in that case; everything else
// (including unknown versions) attempts the native client first.
func ChooseTransport(serverMajor, clientMajor int) Transport {
	if serverMajor > 0 && clientMajor > 0 && clientMajor > serverMajor {
		return TransportHTTP
	}
	return TransportNative
}

// CompatibleMediaType returns the content-negotiation media type for the
// detected server major version.
func CompatibleMediaType(serverMajor int) string {
	if serverMajor <= 0 || serverMajor > maxCompatibleMajor {
		serverMajor = maxCompatibleMajor
	}
	return "application/vnd.elasticsearch+json; compatible-with=" + strconv.Itoa(serverMajor)
}

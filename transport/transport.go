// Package transport implements the smart-HTTP half of git's wire
// protocol: advertisement discovery and the want/have/done negotiation
// used by a clone. Grounded loosely on the request/response shapes
// exercised by the packfile-client fixtures in the example pack, but
// written fresh since no example repo carries an HTTP transport client
// of its own; net/http is used directly (no ecosystem HTTP client
// appears anywhere in the corpus, so there is nothing to wire here
// instead - see DESIGN.md).
package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/xerrors"

	"github.com/mwillock/gogit/githash"
	"github.com/mwillock/gogit/object"
	"github.com/mwillock/gogit/pack"
	"github.com/mwillock/gogit/pktline"
)

// ErrProtocolError is returned when an advertisement or want-response
// doesn't have the shape this client expects: a missing service line, a
// missing NAK, or a missing embedded pack.
var ErrProtocolError = xerrors.New("protocol error")

// ErrHTTPError is returned for a non-2xx response or an unexpected
// content type from the remote.
var ErrHTTPError = xerrors.New("http error")

// capabilityToken is the fixed agent string this client advertises.
const capabilityToken = "agent=git/1.8.1"

const serviceLine = "# service=git-upload-pack"

// Ref is one reference as advertised by the remote: its name and the
// identity it currently points at.
type Ref struct {
	Name string
	ID   githash.Oid
}

// Client talks git's smart-HTTP protocol against a single remote URL.
// Each call makes its own HTTP request; nothing is kept open between
// calls.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the repository at baseURL (e.g.
// "https://example.com/repo.git").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{},
	}
}

// ListRefs performs reference discovery: GET info/refs?service=git-upload-pack.
func (c *Client) ListRefs() ([]Ref, error) {
	url := fmt.Sprintf("%s/info/refs?service=git-upload-pack", c.baseURL)
	resp, err := c.http.Get(url) //nolint:noctx // no context threaded through the core per spec's synchronous model
	if err != nil {
		return nil, xerrors.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck // response already consumed or erroring out

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("GET %s: status %d: %w", url, resp.StatusCode, ErrHTTPError)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-git-upload-pack-advertisement" {
		return nil, xerrors.Errorf("GET %s: unexpected content-type %q: %w", url, ct, ErrHTTPError)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("reading advertisement body: %w", err)
	}

	// The advertisement is two flush-terminated sections: the service
	// line first, then the reference lines. DecodeUntilFlush only reads
	// up to the first flush, so the reference lines have to be decoded
	// out of what it leaves in rest.
	serviceLines, rest, _, err := pktline.DecodeUntilFlush(body)
	if err != nil {
		return nil, err
	}
	if len(serviceLines) == 0 || string(serviceLines[0]) != serviceLine {
		return nil, xerrors.Errorf("missing %q line: %w", serviceLine, ErrProtocolError)
	}

	refLines, _, _, err := pktline.DecodeUntilFlush(rest)
	if err != nil {
		return nil, err
	}

	refs := make([]Ref, 0, len(refLines))
	for i, line := range refLines {
		text := string(line)
		if i == 0 {
			if idx := strings.IndexByte(text, 0); idx >= 0 {
				text = text[:idx]
			}
		}
		idHex, name, ok := strings.Cut(text, " ")
		if !ok {
			return nil, xerrors.Errorf("malformed ref line %q: %w", text, ErrProtocolError)
		}
		id, err := githash.NewFromString(idHex)
		if err != nil {
			return nil, xerrors.Errorf("malformed ref identity %q: %w", idHex, ErrProtocolError)
		}
		refs = append(refs, Ref{Name: name, ID: id})
	}
	return refs, nil
}

// FetchPack sends the want/have/done negotiation for every ref in
// wants and returns the decoded objects from the embedded pack, using
// lookup to resolve ref-delta bases already present in the local
// store.
func (c *Client) FetchPack(wants []githash.Oid, lookup pack.BaseLookup) (map[githash.Oid]*object.Object, error) {
	if len(wants) == 0 {
		return map[githash.Oid]*object.Object{}, nil
	}

	var req bytes.Buffer
	for i, id := range wants {
		payload := fmt.Sprintf("want %s", id.String())
		if i == 0 {
			payload += "\x00" + capabilityToken
		}
		payload += "\n"
		req.Write(pktline.Encode([]byte(payload)))
	}
	req.Write(pktline.Flush())
	req.Write(pktline.Encode([]byte("done\n")))
	req.Write(pktline.Flush())

	url := fmt.Sprintf("%s/git-upload-pack", c.baseURL)
	resp, err := c.http.Post(url, "application/x-git-upload-pack-request", bytes.NewReader(req.Bytes())) //nolint:noctx
	if err != nil {
		return nil, xerrors.Errorf("POST %s: %w", url, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, xerrors.Errorf("POST %s: status %d: %w", url, resp.StatusCode, ErrHTTPError)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-git-upload-pack-result" {
		return nil, xerrors.Errorf("POST %s: unexpected content-type %q: %w", url, ct, ErrHTTPError)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("reading want-response body: %w", err)
	}

	lines, _, packBytes, err := pktline.DecodeUntilFlush(body)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 || !strings.HasPrefix(string(lines[0]), "NAK") {
		return nil, xerrors.Errorf("missing NAK line: %w", ErrProtocolError)
	}
	if packBytes == nil {
		return nil, xerrors.Errorf("want-response carries no pack: %w", ErrProtocolError)
	}

	resolved, err := pack.Decode(packBytes, lookup)
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// BranchWants filters refs down to those under refs/heads/, in a
// deterministic order, for use as the want list of a FetchPack call.
func BranchWants(refs []Ref) []Ref {
	out := make([]Ref, 0, len(refs))
	for _, r := range refs {
		if strings.HasPrefix(r.Name, "refs/heads/") {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

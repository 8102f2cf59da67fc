package httpsig

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-federation/core"
	"github.com/goliatone/go-federation/jsonld"
)

const digestPrefix = "SHA-256="

// maxSignatureHeaders bounds how many Signature header candidates are
// tried, to tolerate peers sending multiple schemes.
const maxSignatureHeaders = 2

// requestTarget is the synthetic pseudo-header standing in for the
// request line in the signing string.
const requestTarget = "(request-target)"

// Verifier checks the Digest and Signature headers of an inbound
// request against a public key resolved through the document resolver.
type Verifier struct {
	// Domain is the exact Host header value we accept.
	Domain string
}

// Verify validates the request signature over the exact raw body and
// returns the public key that signed it. The resolver session is
// shared with the caller so key documents merge into the same graph.
func (v *Verifier) Verify(ctx context.Context, req *http.Request, body []byte, resolver jsonld.Resolver) (core.PublicKey, error) {
	if req.Host != v.Domain {
		return core.PublicKey{}, protocolError("httpsig: Host header mismatch", core.FederationErrorHostMismatch)
	}

	// Digest must match before any signature work happens.
	if err := verifyDigest(req.Header.Get("Digest"), body); err != nil {
		return core.PublicKey{}, err
	}

	headers := newHeaderMap(req)

	candidates := headers.values("signature")
	if len(candidates) == 0 {
		return core.PublicKey{}, protocolError("httpsig: expected a Signature header", core.FederationErrorSignatureMismatch)
	}
	if len(candidates) > maxSignatureHeaders {
		candidates = candidates[:maxSignatureHeaders]
	}

	for _, candidate := range candidates {
		key, err := v.verifyOne(ctx, req, candidate, headers, resolver)
		if err != nil {
			return core.PublicKey{}, err
		}
		if key != nil {
			return *key, nil
		}
	}

	return core.PublicKey{}, protocolError("httpsig: RSA-SHA256 signature mismatch", core.FederationErrorSignatureMismatch)
}

// verifyOne checks a single Signature header. A nil key with nil error
// means this candidate did not verify and the next one may be tried;
// parameter-level violations are returned as hard errors.
func (v *Verifier) verifyOne(
	ctx context.Context,
	req *http.Request,
	signatureHeader string,
	headers *headerMap,
	resolver jsonld.Resolver,
) (*core.PublicKey, error) {
	params := parseSignatureParams(signatureHeader)
	if params.KeyID == "" || params.Signature == "" {
		return nil, protocolError("httpsig: missing required signature parameters", core.FederationErrorSignatureMismatch)
	}

	signed := params.Headers
	if !contains(signed, "host") || !contains(signed, "digest") {
		return nil, protocolError("httpsig: not all required headers included in signature", core.FederationErrorSignatureMismatch)
	}
	if hasDuplicates(signed) {
		return nil, protocolError("httpsig: duplicate headers in signature", core.FederationErrorSignatureMismatch)
	}
	for _, name := range signed {
		if name != requestTarget && !headers.has(name) {
			return nil, protocolError("httpsig: signature covers headers not in the request", core.FederationErrorSignatureMismatch)
		}
	}

	keyNode, err := resolver.Resolve(ctx, params.KeyID, core.SEC)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "httpsig: signature public key document could not be loaded").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.FederationErrorSignatureMismatch)
	}
	publicKey := jsonld.PublicKeyView(keyNode)
	if strings.TrimSpace(publicKey.PublicKeyPem) == "" {
		return nil, nil
	}

	rsaKey, err := ParseRSAPublicKey(publicKey.PublicKeyPem)
	if err != nil {
		return nil, nil
	}

	signedData := signingString(signed, req, headers)
	digest := sha256.Sum256([]byte(signedData))

	signature, err := base64.StdEncoding.DecodeString(params.Signature)
	if err != nil {
		return nil, nil
	}
	if rsa.VerifyPKCS1v15(rsaKey, crypto.SHA256, digest[:], signature) != nil {
		return nil, nil
	}
	return &publicKey, nil
}

// signingString reconstructs the canonical signed data: newline-joined
// `name: value` pairs in the given order, with the synthetic request
// line substituted for the pseudo-header.
func signingString(signed []string, req *http.Request, headers *headerMap) string {
	lines := make([]string, 0, len(signed))
	for _, name := range signed {
		var value string
		if name == requestTarget {
			value = strings.ToLower(req.Method) + " " + requestPath(req)
		} else {
			value = strings.Join(headers.values(name), ", ")
		}
		lines = append(lines, name+": "+value)
	}
	return strings.Join(lines, "\n")
}

// requestPath normalizes the request target path. A URL addressing the
// origin root has an empty path, but the request line on the wire
// always carries at least "/".
func requestPath(req *http.Request) string {
	if req.URL == nil || req.URL.Path == "" {
		return "/"
	}
	return req.URL.Path
}

func verifyDigest(digestHeader string, body []byte) error {
	var sha256Entry string
	for _, entry := range strings.Split(digestHeader, ",") {
		entry = strings.TrimSpace(entry)
		if strings.HasPrefix(entry, digestPrefix) {
			sha256Entry = entry
			break
		}
	}
	if sha256Entry == "" {
		return protocolError("httpsig: expected a Digest header with SHA-256", core.FederationErrorDigestMismatch)
	}

	sum := sha256.Sum256(body)
	expected := base64.StdEncoding.EncodeToString(sum[:])
	if sha256Entry[len(digestPrefix):] != expected {
		return protocolError("httpsig: digest mismatch", core.FederationErrorDigestMismatch)
	}
	return nil
}

// headerMap is a case-insensitive multimap of request headers,
// preserving value order per name. The Host header lives on the
// request itself in Go, so it is folded in explicitly.
type headerMap struct {
	byName map[string][]string
}

func newHeaderMap(req *http.Request) *headerMap {
	byName := make(map[string][]string, len(req.Header)+1)
	for name, values := range req.Header {
		byName[strings.ToLower(name)] = values
	}
	host := req.Host
	if host == "" && req.URL != nil {
		host = req.URL.Host
	}
	if host != "" {
		byName["host"] = []string{host}
	}
	return &headerMap{byName: byName}
}

func (m *headerMap) has(name string) bool {
	_, ok := m.byName[strings.ToLower(name)]
	return ok
}

func (m *headerMap) values(name string) []string {
	return m.byName[strings.ToLower(name)]
}

func contains(values []string, needle string) bool {
	for _, value := range values {
		if value == needle {
			return true
		}
	}
	return false
}

func hasDuplicates(values []string) bool {
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			return true
		}
		seen[value] = struct{}{}
	}
	return false
}

func protocolError(message, textCode string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(textCode)
}

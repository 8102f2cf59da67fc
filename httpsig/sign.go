package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Signer mutates outbound requests with Digest, Date, and Signature
// headers. Signing needs the full body up front; streaming bodies are
// rejected.
type Signer struct {
	// KeyID is the public key URL stamped into the Signature header.
	KeyID string
	Key   *rsa.PrivateKey

	// Now is overridable for tests.
	Now func() time.Time
}

func NewSigner(keyID string, privateKeyPEM string) (*Signer, error) {
	key, err := ParseRSAPrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Signer{KeyID: keyID, Key: key}, nil
}

// Sign computes the body digest, stamps the Date header, signs the
// canonical string over the request line and all current headers, and
// attaches the Signature header.
func (s *Signer) Sign(req *http.Request, body []byte) error {
	if s == nil || s.Key == nil {
		return fmt.Errorf("httpsig: signer has no private key")
	}
	if body == nil && req.Body != nil {
		return fmt.Errorf("httpsig: cannot sign streaming body")
	}

	sum := sha256.Sum256(body)
	req.Header.Set("Digest", digestPrefix+base64.StdEncoding.EncodeToString(sum[:]))

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	req.Header.Set("Date", now().UTC().Format(http.TimeFormat))

	headers := newHeaderMap(req)
	signed := signedHeaderNames(req)

	lines := make([]string, 0, len(signed)+1)
	lines = append(lines, requestTarget+": "+strings.ToLower(req.Method)+" "+requestPath(req))
	for _, name := range signed {
		lines = append(lines, name+": "+strings.Join(headers.values(name), ", "))
	}
	signedData := strings.Join(lines, "\n")

	digest := sha256.Sum256([]byte(signedData))
	signature, err := rsa.SignPKCS1v15(rand.Reader, s.Key, crypto.SHA256, digest[:])
	if err != nil {
		return fmt.Errorf("httpsig: sign request: %w", err)
	}

	req.Header.Set("Signature", strings.Join([]string{
		fmt.Sprintf("keyId=%q", s.KeyID),
		fmt.Sprintf("headers=%q", strings.Join(append([]string{requestTarget}, signed...), " ")),
		fmt.Sprintf("signature=%q", base64.StdEncoding.EncodeToString(signature)),
	}, ","))
	return nil
}

// signedHeaderNames lists every header currently on the request, in a
// stable order with the protocol-required names first. The Signature
// header itself is never covered.
func signedHeaderNames(req *http.Request) []string {
	names := []string{"host", "date", "digest"}
	seen := map[string]struct{}{"host": {}, "date": {}, "digest": {}, "signature": {}}

	var rest []string
	for name := range req.Header {
		lowered := strings.ToLower(name)
		if _, ok := seen[lowered]; ok {
			continue
		}
		seen[lowered] = struct{}{}
		rest = append(rest, lowered)
	}
	sort.Strings(rest)
	return append(names, rest...)
}

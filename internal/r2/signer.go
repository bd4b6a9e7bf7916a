// Package r2 implements V4 request signing for Cloudflare R2 (S3 compatible)
// without pulling in a cloud SDK. Signing is pure: no I/O, deterministic for a
// fixed clock reading.
package r2

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mukapc-sys/ffmpeg-normalizer/internal/asset"
)

const (
	algorithm       = "AWS4-HMAC-SHA256"
	region          = "auto"
	service         = "s3"
	terminator      = "aws4_request"
	unsignedPayload = "UNSIGNED-PAYLOAD"
	amzDateFormat   = "20060102T150405Z"
	dateFormat      = "20060102"
)

// Signer produces time-bounded authorizations for single object store
// operations, either as presigned query parameters or as request headers.
type Signer struct {
	cfg      asset.StoreConfig
	endpoint *url.URL
	now      func() time.Time
}

// Option customizes a Signer.
type Option func(*Signer)

// WithEndpoint points the signer at an alternate store endpoint. Used by
// tests; production runs derive the endpoint from the store config.
func WithEndpoint(raw string) Option {
	return func(s *Signer) {
		if u, err := url.Parse(raw); err == nil {
			s.endpoint = u
		}
	}
}

// WithClock fixes the signer's clock. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// NewSigner returns a signer for the given store credentials.
func NewSigner(cfg asset.StoreConfig, opts ...Option) *Signer {
	s := &Signer{
		cfg: cfg,
		endpoint: &url.URL{
			Scheme: "https",
			Host:   fmt.Sprintf("%s.%s.r2.cloudflarestorage.com", cfg.Bucket, cfg.AccountID),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PresignURL returns a URL authorizing one method on one object key until the
// validity window expires, with the signature embedded as query parameters.
func (s *Signer) PresignURL(method, key string, expiry time.Duration) string {
	t := s.now().UTC()
	amzDate := t.Format(amzDateFormat)
	scope := s.scope(t)
	canonURI := "/" + uriEncode(key, false)

	params := [][2]string{
		{"X-Amz-Algorithm", algorithm},
		{"X-Amz-Credential", s.cfg.AccessKeyID + "/" + scope},
		{"X-Amz-Date", amzDate},
		{"X-Amz-Expires", strconv.Itoa(int(expiry / time.Second))},
		{"X-Amz-SignedHeaders", "host"},
	}
	canonQuery := encodeQuery(params)

	canonReq := strings.Join([]string{
		method,
		canonURI,
		canonQuery,
		"host:" + s.endpoint.Host + "\n",
		"host",
		unsignedPayload,
	}, "\n")

	sig := s.signature(t, canonReq)
	return s.endpoint.Scheme + "://" + s.endpoint.Host + canonURI + "?" + canonQuery + "&X-Amz-Signature=" + sig
}

// SignRequest authorizes req in place via Authorization, x-amz-date and
// x-amz-content-sha256 headers. The payload hash is left unsigned because
// bodies are streamed.
func (s *Signer) SignRequest(req *http.Request) {
	t := s.now().UTC()
	amzDate := t.Format(amzDateFormat)
	scope := s.scope(t)

	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", unsignedPayload)

	canonHeaders := "host:" + req.URL.Host + "\n" +
		"x-amz-content-sha256:" + unsignedPayload + "\n" +
		"x-amz-date:" + amzDate + "\n"
	signedHeaders := "host;x-amz-content-sha256;x-amz-date"

	canonReq := strings.Join([]string{
		req.Method,
		"/" + uriEncode(strings.TrimPrefix(req.URL.Path, "/"), false),
		canonicalQuery(req.URL.Query()),
		canonHeaders,
		signedHeaders,
		unsignedPayload,
	}, "\n")

	sig := s.signature(t, canonReq)
	req.Header.Set("Authorization", fmt.Sprintf(
		"%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		algorithm, s.cfg.AccessKeyID, scope, signedHeaders, sig,
	))
}

func (s *Signer) scope(t time.Time) string {
	return strings.Join([]string{t.Format(dateFormat), region, service, terminator}, "/")
}

// signature hashes the canonical request into a string-to-sign and keys it
// with the derived key chain: secret → date → region → service → terminator.
func (s *Signer) signature(t time.Time, canonReq string) string {
	reqHash := sha256.Sum256([]byte(canonReq))
	stringToSign := strings.Join([]string{
		algorithm,
		t.Format(amzDateFormat),
		s.scope(t),
		hex.EncodeToString(reqHash[:]),
	}, "\n")

	key := hmacSHA256([]byte("AWS4"+s.cfg.SecretAccessKey), t.Format(dateFormat))
	key = hmacSHA256(key, region)
	key = hmacSHA256(key, service)
	key = hmacSHA256(key, terminator)
	return hex.EncodeToString(hmacSHA256(key, stringToSign))
}

func hmacSHA256(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

// encodeQuery builds the canonical query string: parameters sorted by name,
// keys and values percent-encoded per RFC 3986 (slashes included).
func encodeQuery(params [][2]string) string {
	sort.Slice(params, func(i, j int) bool {
		if params[i][0] != params[j][0] {
			return params[i][0] < params[j][0]
		}
		return params[i][1] < params[j][1]
	})
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, uriEncode(p[0], true)+"="+uriEncode(p[1], true))
	}
	return strings.Join(pairs, "&")
}

func canonicalQuery(values url.Values) string {
	var params [][2]string
	for k, vs := range values {
		for _, v := range vs {
			params = append(params, [2]string{k, v})
		}
	}
	return encodeQuery(params)
}

// uriEncode percent-encodes s per the V4 canonicalization rules: unreserved
// characters pass through, everything else becomes uppercase %XX byte
// escapes. Slashes survive in paths but not in query components.
func uriEncode(s string, encodeSlash bool) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

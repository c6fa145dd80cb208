// SPDX-License-Identifier: MPL-2.0

package fetch

import (
	"context"
	"encoding/base64"
	"mime"
	"net/url"
	"strings"

	"github.com/invowk/modload/pkg/moderr"
)

type (
	// DataURL is a parsed RFC 2397 data: URL.
	DataURL struct {
		// MediaType is the lower-cased MIME type without parameters
		// ("text/plain" when omitted).
		MediaType string
		Params    map[string]string
		Data      []byte
	}

	// DataFetcher decodes data: URLs in place.
	DataFetcher struct{}
)

// ParseDataURL decodes a data: URL.
func ParseDataURL(raw string) (*DataURL, error) {
	const prefix = "data:"
	if len(raw) < len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return nil, &moderr.InvalidSpecifierError{Specifier: raw, Reason: "not a data: URL"}
	}
	header, payload, ok := strings.Cut(raw[len(prefix):], ",")
	if !ok {
		return nil, &moderr.InvalidSpecifierError{Specifier: raw, Reason: "data: URL has no ',' separator"}
	}

	isBase64 := false
	if h, found := strings.CutSuffix(header, ";base64"); found {
		header = h
		isBase64 = true
	}

	d := &DataURL{MediaType: "text/plain", Params: map[string]string{}}
	if header != "" {
		mt, params, err := mime.ParseMediaType(header)
		if err != nil {
			return nil, &moderr.InvalidSpecifierError{Specifier: raw, Reason: "invalid data: URL media type: " + err.Error()}
		}
		d.MediaType = mt
		d.Params = params
	}

	if isBase64 {
		unescaped, err := url.PathUnescape(payload)
		if err != nil {
			return nil, &moderr.InvalidSpecifierError{Specifier: raw, Reason: err.Error()}
		}
		data, err := base64.StdEncoding.DecodeString(unescaped)
		if err != nil {
			if data, err = base64.RawStdEncoding.DecodeString(unescaped); err != nil {
				return nil, &moderr.InvalidSpecifierError{Specifier: raw, Reason: "invalid base64 payload"}
			}
		}
		d.Data = data
		return d, nil
	}

	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, &moderr.InvalidSpecifierError{Specifier: raw, Reason: err.Error()}
	}
	d.Data = []byte(data)
	return d, nil
}

// ReadBytes returns the decoded payload of rawURL.
func (DataFetcher) ReadBytes(_ context.Context, rawURL string) ([]byte, error) {
	d, err := ParseDataURL(rawURL)
	if err != nil {
		return nil, err
	}
	return d.Data, nil
}

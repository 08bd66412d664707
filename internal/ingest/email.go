package ingest

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
)

// ErrBadSharedKey means the inbound email did not carry the expected
// shared secret and should be discarded as noise or probing.
var ErrBadSharedKey = errors.New("ingest: missing or wrong shared key header")

// ErrNoAttachment means the email had no CSV attachment to ingest.
var ErrNoAttachment = errors.New("ingest: no csv attachment found")

// ExtractCSV parses a raw RFC 5322 email, verifies the shared secret
// header, and returns the first CSV attachment body.
//
// Membership exports arrive as emails with the roster attached, so
// the sender proves itself with a pre-shared header value rather than
// real authentication.
func ExtractCSV(raw io.Reader, keyHeader, key string) (io.Reader, error) {
	msg, err := mail.ReadMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing inbound email: %w", err)
	}

	if keyHeader != "" && msg.Header.Get(keyHeader) != key {
		return nil, ErrBadSharedKey
	}

	mediaType, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("parsing content type: %w", err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, ErrNoAttachment
	}

	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, ErrNoAttachment
		}
		if err != nil {
			return nil, fmt.Errorf("reading email part: %w", err)
		}
		if isCSVPart(part) {
			return decodePart(part), nil
		}
	}
}

// decodePart undoes the transfer encoding. Quoted-printable is
// handled by the multipart reader already; base64 is not.
func decodePart(part *multipart.Part) io.Reader {
	if strings.EqualFold(part.Header.Get("Content-Transfer-Encoding"), "base64") {
		return base64.NewDecoder(base64.StdEncoding, part)
	}
	return part
}

func isCSVPart(part *multipart.Part) bool {
	ctype, _, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if err == nil && (ctype == "text/csv" || ctype == "application/csv") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(part.FileName()), ".csv")
}

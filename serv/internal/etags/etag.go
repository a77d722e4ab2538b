//nolint:errcheck
package etags

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"hash"
	"net/http"
	"strings"

	"github.com/go-http-utils/headers"
)

type hashWriter struct {
	rw     http.ResponseWriter
	hash   hash.Hash
	buf    *bytes.Buffer
	status int
}

func (hw hashWriter) Header() http.Header {
	return hw.rw.Header()
}

func (hw *hashWriter) WriteHeader(status int) {
	hw.status = status
}

func (hw *hashWriter) Write(b []byte) (int, error) {
	if hw.status == 0 {
		hw.status = http.StatusOK
	}
	hw.buf.Write(b)
	return hw.hash.Write(b)
}

func writeRaw(res http.ResponseWriter, hw hashWriter) {
	if hw.status == 0 {
		hw.status = http.StatusOK
	}
	res.WriteHeader(hw.status)
	res.Write(hw.buf.Bytes())
}

// Handler wraps the http.Handler h with ETag support. Only successful
// responses get an ETag.
func Handler(h http.Handler, weak bool) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		hw := hashWriter{rw: res, hash: sha1.New(), buf: bytes.NewBuffer(nil)}
		h.ServeHTTP(&hw, req)

		if hw.status != http.StatusOK || hw.buf.Len() == 0 {
			writeRaw(res, hw)
			return
		}

		etag := `"` + hex.EncodeToString(hw.hash.Sum(nil)) + `"`
		if weak {
			etag = "W/" + etag
		}
		res.Header().Set(headers.ETag, etag)

		if IsFresh(req.Header, etag) {
			res.WriteHeader(http.StatusNotModified)
		} else {
			writeRaw(res, hw)
		}
	})
}

// IsFresh reports whether the If-None-Match header of a request matches
// etag.
func IsFresh(reqHeader http.Header, etag string) bool {
	inm := reqHeader.Get(headers.IfNoneMatch)
	if inm == "" {
		return false
	}

	for _, t := range strings.Split(inm, ",") {
		t = strings.TrimSpace(t)
		if t == "*" || t == etag || "W/"+t == etag || t == "W/"+etag {
			return true
		}
	}
	return false
}

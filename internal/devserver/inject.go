package devserver

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

const maxInjectSize = 512 * 1024

var scriptTag = []byte(`<script async src="` + liveReloadScriptPath + `"></script>`)

// injectLiveReload adds the live reload client to HTML pages.
func injectLiveReload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p != "/" && !strings.HasSuffix(p, "/") && !strings.HasSuffix(p, ".html") {
			next.ServeHTTP(w, r)
			return
		}
		inj := &injector{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(inj, r)
		inj.finalize()
	})
}

// injector buffers HTML responses up to maxInjectSize so the script can be
// inserted; anything else, or anything larger, is passed through.
type injector struct {
	http.ResponseWriter
	status      int
	buf         []byte
	buffering   bool
	passthrough bool
	wroteHeader bool
}

func (i *injector) WriteHeader(code int) {
	i.status = code
	if i.passthrough {
		i.flushHeader()
	}
}

func (i *injector) flushHeader() {
	if !i.wroteHeader {
		i.ResponseWriter.WriteHeader(i.status)
		i.wroteHeader = true
	}
}

func (i *injector) Write(data []byte) (int, error) {
	if !i.passthrough && !i.buffering {
		ct := i.Header().Get("Content-Type")
		if i.status != http.StatusOK || (ct != "" && !strings.Contains(ct, "text/html")) {
			i.passthrough = true
		} else {
			i.buffering = true
		}
	}
	if i.passthrough {
		i.flushHeader()
		return i.ResponseWriter.Write(data)
	}
	if len(i.buf)+len(data) > maxInjectSize {
		i.passthrough = true
		i.buffering = false
		i.flushHeader()
		if len(i.buf) > 0 {
			if _, err := i.ResponseWriter.Write(i.buf); err != nil {
				return 0, err
			}
			i.buf = nil
		}
		return i.ResponseWriter.Write(data)
	}
	i.buf = append(i.buf, data...)
	return len(data), nil
}

func (i *injector) finalize() {
	if !i.buffering {
		i.flushHeader()
		return
	}
	out := injectScript(i.buf)
	i.Header().Set("Content-Length", strconv.Itoa(len(out)))
	i.flushHeader()
	_, _ = i.ResponseWriter.Write(out)
}

// injectScript inserts the client script before the closing body tag, or
// appends it when the document has none. The tag is located with the HTML
// tokenizer so "</body>" inside scripts or comments is not matched.
func injectScript(doc []byte) []byte {
	at := bodyCloseOffset(doc)
	if at < 0 {
		at = len(doc)
	}
	out := make([]byte, 0, len(doc)+len(scriptTag))
	out = append(out, doc[:at]...)
	out = append(out, scriptTag...)
	return append(out, doc[at:]...)
}

func bodyCloseOffset(doc []byte) int {
	z := html.NewTokenizer(bytes.NewReader(doc))
	offset, found := 0, -1
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				return -1
			}
			return found
		}
		if tt == html.EndTagToken {
			if name, _ := z.TagName(); string(name) == "body" {
				found = offset
			}
		}
		offset += len(z.Raw())
	}
}

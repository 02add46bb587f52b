package client

import "net/http"

// Response is the wire answer a handled request produced. Nil means the
// orchestrator has nothing to say and the embedding application serves the
// request itself.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func newResponse(status int, contentType string, body []byte) *Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &Response{StatusCode: status, Header: h, Body: body}
}

// Redirect answers with a 302 to location.
func Redirect(location string) *Response {
	r := newResponse(http.StatusFound, "", nil)
	r.Header.Set("Location", location)
	return r
}

// HTML answers with an HTML document, typically an auto-submitting SAML form.
func HTML(status int, body []byte) *Response {
	return newResponse(status, "text/html; charset=utf-8", body)
}

// XML answers with a SAML XML document.
func XML(status int, body []byte) *Response {
	return newResponse(status, "text/xml; charset=utf-8", body)
}

// Raw answers with an arbitrary body and content type.
func Raw(status int, contentType string, body []byte) *Response {
	return newResponse(status, contentType, body)
}

// Status answers with a bare status code.
func Status(status int) *Response {
	return newResponse(status, "", nil)
}

// Write emits the response onto a standard ResponseWriter.
func (r *Response) Write(w http.ResponseWriter) error {
	for k, vs := range r.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(r.StatusCode)
	if len(r.Body) == 0 {
		return nil
	}
	_, err := w.Write(r.Body)
	return err
}

package sp

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/url"

	"github.com/beevik/etree"
)

// elementer is implemented by every crewjam SAML message type.
type elementer interface {
	Element() *etree.Element
}

func marshalMessage(msg elementer) ([]byte, error) {
	doc := etree.NewDocument()
	doc.SetRoot(msg.Element())
	return doc.WriteToBytes()
}

// RedirectURL serializes msg per the HTTP-Redirect binding (deflate, base64,
// query encode) and appends it to destination under paramName (SAMLRequest or
// SAMLResponse).
func RedirectURL(destination, paramName string, msg elementer, relayState string) (string, error) {
	raw, err := marshalMessage(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	u, err := url.Parse(destination)
	if err != nil {
		return "", fmt.Errorf("parse destination: %w", err)
	}
	query := u.Query()
	query.Set(paramName, base64.StdEncoding.EncodeToString(compressed.Bytes()))
	if relayState != "" {
		query.Set("RelayState", relayState)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

var postFormTemplate = template.Must(template.New("saml-post-form").Parse(`<!doctype html>
<html><body onload="document.forms[0].submit()">
<form method="post" action="{{.URL}}">
  <input type="hidden" name="{{.Param}}" value="{{.Value}}">
  {{if .Relay}}<input type="hidden" name="RelayState" value="{{.Relay}}">{{end}}
  <noscript><button type="submit">Continue</button></noscript>
</form></body></html>`))

// PostForm serializes msg per the HTTP-POST binding into an auto-submitting
// HTML form targeting destination.
func PostForm(destination, paramName string, msg elementer, relayState string) ([]byte, error) {
	raw, err := marshalMessage(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	var buf bytes.Buffer
	err = postFormTemplate.Execute(&buf, struct {
		URL, Param, Value, Relay string
	}{
		URL:   destination,
		Param: paramName,
		Value: base64.StdEncoding.EncodeToString(raw),
		Relay: relayState,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

package sp

import (
	"crypto"
	"crypto/tls"
	"errors"
	"fmt"

	"github.com/beevik/etree"
	"github.com/crewjam/saml"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	nameIDFormatEntity      = "urn:oasis:names:tc:SAML:2.0:nameid-format:entity"
	nameIDFormatUnspecified = "urn:oasis:names:tc:SAML:1.1:nameid-format:unspecified"
)

func (e *Engine) signingContext() (*dsig.SigningContext, error) {
	cert, err := e.md.SPSigningCert()
	if err != nil {
		return nil, err
	}
	key := e.md.PrivateKey()
	if key == nil {
		return nil, errors.New("sp private key missing")
	}

	keyPair := tls.Certificate{Certificate: [][]byte{cert.Raw}, PrivateKey: key}
	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(keyPair))
	ctx.Canonicalizer = dsig.MakeC14N10ExclusiveCanonicalizerWithPrefixList("")
	if err := ctx.SetSignatureMethod(dsig.RSASHA256SignatureMethod); err != nil {
		return nil, err
	}
	ctx.Hash = crypto.SHA256
	return ctx, nil
}

// signElement computes an enveloped signature over el and returns the
// signature element.
func (e *Engine) signElement(el *etree.Element) (*etree.Element, error) {
	ctx, err := e.signingContext()
	if err != nil {
		return nil, err
	}
	signedEl, err := ctx.SignEnveloped(el)
	if err != nil {
		return nil, fmt.Errorf("sign element: %w", err)
	}
	children := signedEl.ChildElements()
	if len(children) == 0 {
		return nil, errors.New("signed element has no children")
	}
	return children[len(children)-1], nil
}

func (e *Engine) signAuthnRequest(req *saml.AuthnRequest) error {
	sigEl, err := e.signElement(req.Element())
	if err != nil {
		return err
	}
	req.Signature = sigEl
	return nil
}

func (e *Engine) signLogoutRequest(req *saml.LogoutRequest) error {
	sigEl, err := e.signElement(req.Element())
	if err != nil {
		return err
	}
	req.Signature = sigEl
	return nil
}

func (e *Engine) signLogoutResponse(resp *saml.LogoutResponse) error {
	sigEl, err := e.signElement(resp.Element())
	if err != nil {
		return err
	}
	resp.Signature = sigEl
	return nil
}

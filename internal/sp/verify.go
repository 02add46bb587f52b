package sp

import (
	"crypto/x509"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"
)

const (
	namespaceDSig      = "http://www.w3.org/2000/09/xmldsig#"
	namespaceAssertion = "urn:oasis:names:tc:SAML:2.0:assertion"
)

// findChild returns the first direct child of parent with the given namespace
// and tag, or nil when absent.
func findChild(parent *etree.Element, ns, tag string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == tag && child.NamespaceURI() == ns {
			return child
		}
	}
	return nil
}

func hasSignature(el *etree.Element) bool {
	return el != nil && findChild(el, namespaceDSig, "Signature") != nil
}

// verifySignature validates the enveloped signature on el against the IdP
// signing certificate.
func (e *Engine) verifySignature(el *etree.Element) error {
	cert, err := e.md.IdPSigningCert()
	if err != nil {
		return err
	}
	return verifyElement(el, cert)
}

func verifyElement(el *etree.Element, cert *x509.Certificate) error {
	certificateStore := dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}
	validationContext := dsig.NewDefaultValidationContext(&certificateStore)
	validationContext.IdAttribute = "ID"

	// A KeyInfo naming a key we do not know about would defeat validation
	// against the metadata certificate, so strip it unless it carries the
	// expected certificate and let dsig fall back to the trust store.
	if el.FindElement("./Signature/KeyInfo/X509Data/X509Certificate") == nil {
		if sigEl := el.FindElement("./Signature"); sigEl != nil {
			if keyInfo := sigEl.FindElement("KeyInfo"); keyInfo != nil {
				sigEl.RemoveChild(keyInfo)
			}
		}
	}

	ctx, err := etreeutils.NSBuildParentContext(el)
	if err != nil {
		return err
	}
	ctx, err = ctx.SubContext(el)
	if err != nil {
		return err
	}
	detached, err := etreeutils.NSDetatch(ctx, el)
	if err != nil {
		return err
	}

	_, err = validationContext.Validate(detached)
	return err
}

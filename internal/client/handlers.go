package client

import (
	"io"
	"net/http"
	"os"

	"jbarbier/sp-connect/internal/assoc"
	"jbarbier/sp-connect/internal/bootstrap"
	"jbarbier/sp-connect/internal/metadata"
	"jbarbier/sp-connect/internal/sp"
)

// handleACS consumes the IdP's Response: validate, extract the principal from
// the first assertion, persist it and send the browser back where it wanted
// to go.
func (c *Connect) handleACS(r *http.Request) (*Response, error) {
	in, err := c.engine.ReceiveResponse(r)
	if err != nil {
		return nil, err
	}
	if in == nil {
		return nil, &sp.ProtocolError{Status: sp.StatusRequestDenied, Reason: "no SAML response in request"}
	}

	storedRelayState, _ := c.store.Get(keyRelayState)
	if err := c.engine.ValidateResponse(in, storedRelayState); err != nil {
		return nil, err
	}

	assertion := in.FirstAssertion()
	if assertion == nil {
		return nil, &sp.ProtocolError{Status: sp.StatusRequestDenied, Reason: "response carries no assertion"}
	}
	principal, err := c.engine.RetrieveUserFromAssertion(assertion)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, &sp.ProtocolError{Status: sp.StatusRequestDenied, Reason: "assertion carries no principal attribute"}
	}
	if err := c.SetUser(principal); err != nil {
		return nil, err
	}

	target := c.cfg.SP.DefaultTargetPath
	if stashed, ok := c.store.Get(keyTargetedPath); ok {
		target = stashed
	}
	c.store.Delete(keyTargetedPath)
	c.store.Delete(keyRelayState)

	return Redirect(target), nil
}

// handleLogout serves both directions of single logout. Without a principal
// there is nothing to terminate and the browser goes straight to the logout
// target.
func (c *Connect) handleLogout(r *http.Request) (*Response, error) {
	if !c.IsAuthenticated() {
		return Redirect(c.cfg.SP.LogoutTargetPath), nil
	}

	inReq, err := c.engine.ReceiveLogoutRequest(r)
	if err != nil {
		return nil, err
	}
	if inReq != nil {
		if err := c.engine.ValidateLogoutRequest(inReq, c.user.Username); err != nil {
			return nil, err
		}
		c.clearSession()
		resp, err := c.engine.PrepareLogoutResponse(inReq.Request.ID)
		if err != nil {
			return nil, err
		}
		body, err := sp.PostForm(resp.Destination, "SAMLResponse", resp, inReq.RelayState)
		if err != nil {
			return nil, err
		}
		return HTML(http.StatusOK, body), nil
	}

	inResp, err := c.engine.ReceiveLogoutResponse(r)
	if err != nil {
		return nil, err
	}
	if inResp != nil {
		if err := c.engine.ValidateLogoutResponse(inResp); err != nil {
			return nil, err
		}
		c.clearSession()
		return Redirect(c.cfg.SP.LogoutTargetPath), nil
	}

	outReq, relayState, err := c.engine.PrepareLogoutRequest(c.user.Username, c.sessionIndex)
	if err != nil {
		return nil, err
	}
	c.store.Set(keyRelayState, relayState)
	body, err := sp.PostForm(outReq.Destination, "SAMLRequest", outReq, relayState)
	if err != nil {
		return nil, err
	}
	return HTML(http.StatusOK, body), nil
}

func (c *Connect) assocService() (*assoc.Service, error) {
	idpCert, err := c.engine.Metadata().IdPEncryptionCert()
	if err != nil {
		return nil, err
	}
	return assoc.NewService(c.engine.Metadata().PrivateKey(), idpCert, c.assocCallback), nil
}

// handleProfileAssociation runs the encrypted association exchange against
// the registered callback.
func (c *Connect) handleProfileAssociation(r *http.Request) (*Response, error) {
	svc, err := c.assocService()
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	out, err := svc.Handle(body)
	if err != nil {
		return nil, err
	}
	return Raw(http.StatusOK, "application/json", out), nil
}

// handleAdminPing answers with the signed and encrypted current SP
// configuration, or a signed error when none is persisted.
func (c *Connect) handleAdminPing(*http.Request) (*Response, error) {
	idpCert, err := c.engine.Metadata().IdPEncryptionCert()
	if err != nil {
		return nil, err
	}
	key := c.engine.Metadata().PrivateKey()
	cert, err := metadata.SelfSignedCertificate(key, c.cfg.SP.EntityID)
	if err != nil {
		return nil, err
	}

	xmlBytes, err := os.ReadFile(c.cfg.SPMetadataPath())
	if err != nil {
		msg := bootstrap.NewErrorMessage("unable to find the SP metadata file " + c.cfg.SPMetadataPath())
		body, mErr := bootstrap.EncodeEncrypted(key, cert, idpCert, msg)
		if mErr != nil {
			return nil, mErr
		}
		return Raw(http.StatusInternalServerError, "text/plain", body), nil
	}

	body, err := bootstrap.EncodeEncrypted(key, cert, idpCert, bootstrap.NewSPConfigurationMessage(string(xmlBytes)))
	if err != nil {
		return nil, err
	}
	return Raw(http.StatusOK, "text/plain", body), nil
}

// handleAdminMetadata serves the raw persisted SP metadata document.
func (c *Connect) handleAdminMetadata(*http.Request) (*Response, error) {
	xmlBytes, err := os.ReadFile(c.cfg.SPMetadataPath())
	if err != nil {
		return nil, &sp.ProtocolError{Status: sp.StatusRequestDenied, Reason: "no SP metadata file found", Err: err}
	}
	return Raw(http.StatusOK, "application/samlmetadata+xml", xmlBytes), nil
}

// handleAdminDelete removes the persisted metadata documents so the next
// bootstrap run registers from scratch.
func (c *Connect) handleAdminDelete(*http.Request) (*Response, error) {
	os.Remove(c.cfg.SPMetadataPath())
	os.Remove(c.cfg.IdPMetadataPath())
	return Status(http.StatusNoContent), nil
}

// handleAdminRegister accepts a signed registration or regeneration message,
// rebuilds the SP metadata and answers with the signed and encrypted result.
// A regeneration rotates the private key first and keeps the endpoints
// already on record.
func (c *Connect) handleAdminRegister(r *http.Request) (*Response, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	msg, err := bootstrap.DecodeSigned(body)
	if err != nil {
		return nil, &sp.ProtocolError{Status: sp.StatusRequestDenied, Reason: "undecodable registration message", Err: err}
	}

	key := c.engine.Metadata().PrivateKey()
	var entityID string
	var loc metadata.Locations

	switch m := msg.(type) {
	case *bootstrap.RegisterMessage:
		entityID = m.EntityID
		loc = metadata.Locations{ACS: m.ACS, Logout: m.Logout}
	case *bootstrap.RegenerateMessage:
		entityID = m.EntityID
		loc, err = metadata.ReadLocations(c.cfg.SPMetadataPath())
		if err != nil {
			return nil, err
		}
		key, err = bootstrap.NewConsistency(c.cfg).CreatePrivateKey()
		if err != nil {
			return nil, err
		}
	default:
		return nil, &sp.ProtocolError{Status: sp.StatusRequestUnsupported, Reason: "unexpected " + msg.Kind() + " message"}
	}

	cert, err := metadata.SelfSignedCertificate(key, entityID)
	if err != nil {
		return nil, err
	}
	xmlBytes, err := metadata.MarshalDescriptor(metadata.BuildDescriptor(entityID, loc, cert))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(c.cfg.SPMetadataPath(), xmlBytes, 0o644); err != nil {
		return nil, err
	}

	idpCert, err := c.engine.Metadata().IdPEncryptionCert()
	if err != nil {
		return nil, err
	}
	out, err := bootstrap.EncodeEncrypted(key, cert, idpCert, bootstrap.NewSPConfigurationMessage(string(xmlBytes)))
	if err != nil {
		return nil, err
	}
	return Raw(http.StatusOK, "text/plain", out), nil
}

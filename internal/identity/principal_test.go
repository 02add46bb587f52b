package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	p := &Principal{
		Username:    "alice",
		Email:       "alice@example.com",
		FirstName:   "Alice",
		CurrentRole: "USER",
		Attributions: []Attribution{
			{Application: "https://sp.example", Role: "USER"},
			{Application: "https://sp.example", Role: "ADMIN", LocalUsername: "alice-admin"},
		},
	}

	raw, err := p.Encode()
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte("{not json"))
	assert.Error(t, err)
}

func TestAttributionFor(t *testing.T) {
	p := &Principal{
		Username: "alice",
		Attributions: []Attribution{
			{Application: "https://sp.example", Role: "USER"},
			{Application: "https://other.example", Role: "ADMIN", LocalUsername: "root"},
		},
	}

	attr, ok := p.AttributionFor("ADMIN", "https://other.example")
	require.True(t, ok)
	assert.Equal(t, "root", attr.LocalUsername)

	_, ok = p.AttributionFor("ADMIN", "https://sp.example")
	assert.False(t, ok)
}

func TestParseRoleString(t *testing.T) {
	assert.Equal(t, Attribution{Role: "USER"}, ParseRoleString("USER"))
	assert.Equal(t,
		Attribution{Application: "backoffice", Role: "ADMIN", LocalUsername: "root"},
		ParseRoleString("backoffice:ADMIN:root"))
}

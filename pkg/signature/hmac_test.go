package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifyHex(t *testing.T) {
	body := []byte(`{"event":"payment_link.paid"}`)
	sig := SignHex("whsec", body)

	assert.True(t, VerifyHex("whsec", body, sig))
	assert.True(t, VerifyHex("whsec", body, " "+sig+" "))
	assert.False(t, VerifyHex("other", body, sig))
	assert.False(t, VerifyHex("whsec", []byte(`{"event":"payment_link.paid" }`), sig))
	assert.False(t, VerifyHex("whsec", body, "not-hex"))
	assert.False(t, VerifyHex("", body, sig))
	assert.False(t, VerifyHex("whsec", body, ""))
}

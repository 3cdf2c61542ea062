package provider_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/unpaper/internal/provider"
)

func TestVerify(t *testing.T) {
	secret := []byte("whsec")
	body := []byte(`{"externalId":"tbk-1"}`)
	valid := provider.Sign(secret, body)

	type testCase struct {
		name      string
		secret    []byte
		body      []byte
		signature string
		wantErr   bool
	}

	tests := []testCase{
		{name: "Valid", secret: secret, body: body, signature: valid},
		{name: "Prefixed", secret: secret, body: body, signature: "sha256=" + valid},
		{name: "TamperedBody", secret: secret, body: []byte(`{"externalId":"tbk-2"}`), signature: valid, wantErr: true},
		{name: "WrongSecret", secret: []byte("other"), body: body, signature: valid, wantErr: true},
		{name: "NotHex", secret: secret, body: body, signature: "zz", wantErr: true},
		{name: "NoSecret", secret: nil, body: body, signature: valid, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := provider.Verify(tt.secret, tt.body, tt.signature)
			if tt.wantErr {
				assert.ErrorIs(t, err, provider.ErrBadSignature)
				return
			}

			assert.NoError(t, err)
		})
	}
}

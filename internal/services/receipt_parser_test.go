package services

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
)

func utf8Value(t *testing.T, s string) []byte {
	t.Helper()
	raw, err := asn1.MarshalWithParams(s, "utf8")
	require.NoError(t, err)
	return raw
}

// receiptSet encodes attributes as a SET in the given order
func receiptSet(t *testing.T, attrs ...receiptAttribute) []byte {
	t.Helper()
	var body []byte
	for _, attr := range attrs {
		raw, err := asn1.Marshal(attr)
		require.NoError(t, err)
		body = append(body, raw...)
	}
	raw, err := asn1.Marshal(asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: body})
	require.NoError(t, err)
	return raw
}

// signedReceipt wraps content in a PKCS#7 SignedData and base64 encodes it
func signedReceipt(t *testing.T, content []byte) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "Test Receipt Signer"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	signed, err := pkcs7.NewSignedData(content)
	require.NoError(t, err)
	require.NoError(t, signed.AddSigner(cert, key, pkcs7.SignerInfoConfig{}))
	out, err := signed.Finish()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(out)
}

func TestExtractTransactionID(t *testing.T) {
	inApp := receiptSet(t,
		receiptAttribute{Type: 1701, Version: 1, Value: []byte{0x02, 0x01, 0x01}},
		receiptAttribute{Type: receiptAttrOriginalTransactionID, Version: 1, Value: utf8Value(t, "1000000000000001")},
		receiptAttribute{Type: receiptAttrTransactionID, Version: 1, Value: utf8Value(t, "1000000000000099")},
	)
	payload := receiptSet(t,
		receiptAttribute{Type: 2, Version: 1, Value: utf8Value(t, testBundleID)},
		receiptAttribute{Type: receiptAttrInAppPurchase, Version: 1, Value: inApp},
	)

	id, ok := ExtractTransactionID(signedReceipt(t, payload))
	require.True(t, ok)
	assert.Equal(t, "1000000000000001", id, "first id field in encounter order wins")
}

func TestExtractTransactionID_NoInAppSection(t *testing.T) {
	payload := receiptSet(t, receiptAttribute{Type: 2, Version: 1, Value: utf8Value(t, testBundleID)})

	id, ok := ExtractTransactionID(signedReceipt(t, payload))
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestExtractTransactionID_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		receipt string
	}{
		{name: "empty", receipt: ""},
		{name: "not base64", receipt: "%%%not-base64%%%"},
		{name: "not pkcs7", receipt: base64.StdEncoding.EncodeToString([]byte("hello receipt"))},
		{name: "truncated der", receipt: base64.StdEncoding.EncodeToString([]byte{0x30, 0x82, 0xff, 0xff, 0x06})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				id, ok := ExtractTransactionID(tt.receipt)
				assert.False(t, ok)
				assert.Empty(t, id)
			})
		})
	}
}

package services

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"hound-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testBundleID   = "com.jonathanxakellis.hound"
	testProductID  = "com.jonathanxakellis.hound.fourfamilymembers.onemonth"
	testProduct2ID = "com.jonathanxakellis.hound.twofamilymembers.onemonth"
)

// testSigner mints Apple-style JWS strings signed by a throwaway certificate chain
type testSigner struct {
	rootPEM []byte
	leafKey *ecdsa.PrivateKey
	x5c     []interface{}
}

func newTestSigner(t testing.TB) *testSigner {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	require.NoError(t, err)
	rootCert, err := x509.ParseCertificate(rootDER)
	require.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "Test Signing Leaf"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, rootCert, &leafKey.PublicKey, rootKey)
	require.NoError(t, err)

	return &testSigner{
		rootPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: rootDER}),
		leafKey: leafKey,
		x5c: []interface{}{
			base64.StdEncoding.EncodeToString(leafDER),
			base64.StdEncoding.EncodeToString(rootDER),
		},
	}
}

func (s *testSigner) decoder(t testing.TB) *JWSDecoder {
	t.Helper()
	d, err := NewJWSDecoder(testBundleID, s.rootPEM)
	require.NoError(t, err)
	return d
}

// sign encodes v as JSON claims and signs it with the leaf key
func (s *testSigner) sign(t testing.TB, v interface{}) string {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)

	var claims jwt.MapClaims
	require.NoError(t, json.Unmarshal(raw, &claims))

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["x5c"] = s.x5c
	signed, err := token.SignedString(s.leafKey)
	require.NoError(t, err)
	return signed
}

func testTransaction(id, originalID string, purchaseMillis int64) *models.JWSTransaction {
	expires := purchaseMillis + int64(30*24*time.Hour/time.Millisecond)
	return &models.JWSTransaction{
		TransactionID:               id,
		OriginalTransactionID:       originalID,
		WebOrderLineItemID:          "wol-" + id,
		BundleID:                    testBundleID,
		ProductID:                   testProductID,
		SubscriptionGroupIdentifier: "21432567",
		PurchaseDate:                purchaseMillis,
		OriginalPurchaseDate:        purchaseMillis,
		ExpiresDate:                 &expires,
		Quantity:                    1,
		Type:                        models.TransactionTypeAutoRenewable,
		InAppOwnershipType:          models.OwnershipTypePurchased,
		SignedDate:                  purchaseMillis,
		Environment:                 "Sandbox",
	}
}

func testRenewal(originalID string, autoRenew int) *models.JWSRenewalInfo {
	product := testProductID
	return &models.JWSRenewalInfo{
		OriginalTransactionID: originalID,
		AutoRenewProductID:    &product,
		ProductID:             testProductID,
		AutoRenewStatus:       &autoRenew,
		Environment:           "Sandbox",
	}
}

// notificationPayload builds a signed notification carrying the given snapshots
func (s *testSigner) notificationPayload(t testing.TB, uuid, notificationType string, tx *models.JWSTransaction, renewal *models.JWSRenewalInfo) string {
	t.Helper()
	data := &models.NotificationData{
		AppAppleID:  1234567890,
		BundleID:    testBundleID,
		Environment: "Sandbox",
	}
	if tx != nil {
		data.SignedTransactionInfo = s.sign(t, tx)
	}
	if renewal != nil {
		data.SignedRenewalInfo = s.sign(t, renewal)
	}
	return s.sign(t, models.AppStoreNotification{
		NotificationType: notificationType,
		NotificationUUID: uuid,
		Version:          "2.0",
		SignedDate:       time.Now().UnixMilli(),
		Data:             data,
	})
}

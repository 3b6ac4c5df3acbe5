package services

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"hound-api/internal/config"
	"hound-api/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// PayloadDecoder turns App Store JWS strings into typed payloads
type PayloadDecoder interface {
	DecodeNotification(signedPayload string) (*models.DecodedNotification, error)
	DecodeTransaction(signed string) (*models.JWSTransaction, error)
	DecodeRenewalInfo(signed string) (*models.JWSRenewalInfo, error)
}

var (
	ErrMissingCertificateChain = errors.New("missing x5c certificate chain")
	ErrBundleIDMismatch        = errors.New("bundle id mismatch")
	ErrAppAppleIDMismatch      = errors.New("app apple id mismatch")
	ErrMissingNotificationData = errors.New("notification carries no data")
)

// JWSDecoder verifies Apple signed payloads against a trusted root certificate.
// With no root configured, payloads are decoded without verification.
type JWSDecoder struct {
	bundleID   string
	appAppleID int64
	roots      *x509.CertPool
	parser     *jwt.Parser
	now        func() time.Time
}

// NewJWSDecoder creates a decoder. rootCert may be PEM or DER encoded; nil disables verification.
func NewJWSDecoder(bundleID string, rootCert []byte) (*JWSDecoder, error) {
	d := &JWSDecoder{
		bundleID: bundleID,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}), jwt.WithoutClaimsValidation()),
		now:      time.Now,
	}
	if len(rootCert) == 0 {
		return d, nil
	}

	cert, err := parseCertificate(rootCert)
	if err != nil {
		return nil, fmt.Errorf("failed to parse root certificate: %w", err)
	}
	d.roots = x509.NewCertPool()
	d.roots.AddCert(cert)
	return d, nil
}

// LoadJWSDecoder creates a decoder reading the root certificate from path, if any
func LoadJWSDecoder(bundleID, rootCertPath string) (*JWSDecoder, error) {
	if rootCertPath == "" {
		return NewJWSDecoder(bundleID, nil)
	}
	raw, err := os.ReadFile(rootCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read root certificate: %w", err)
	}
	return NewJWSDecoder(bundleID, raw)
}

// WithAppAppleID makes production notifications carry the given App Store app id.
// Sandbox notifications are exempt since Apple does not assign them one.
func (d *JWSDecoder) WithAppAppleID(appAppleID int64) *JWSDecoder {
	d.appAppleID = appAppleID
	return d
}

// Verifying reports whether signatures are checked
func (d *JWSDecoder) Verifying() bool {
	return d.roots != nil
}

// DecodeNotification decodes a notification signedPayload and the snapshots it carries
func (d *JWSDecoder) DecodeNotification(signedPayload string) (*models.DecodedNotification, error) {
	raw, err := d.decodePayload(signedPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode notification: %w", err)
	}

	decoded := &models.DecodedNotification{Raw: raw}
	if err := json.Unmarshal(raw, &decoded.Notification); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notification: %w", err)
	}

	data := decoded.Notification.Data
	if data == nil {
		return nil, ErrMissingNotificationData
	}
	if d.bundleID != "" && data.BundleID != d.bundleID {
		return nil, fmt.Errorf("%w: got %q", ErrBundleIDMismatch, data.BundleID)
	}
	if d.appAppleID != 0 && data.Environment == config.EnvironmentProduction && data.AppAppleID != d.appAppleID {
		return nil, fmt.Errorf("%w: got %d", ErrAppAppleIDMismatch, data.AppAppleID)
	}

	if data.SignedTransactionInfo != "" {
		if decoded.TransactionInfo, err = d.DecodeTransaction(data.SignedTransactionInfo); err != nil {
			return nil, err
		}
	}
	if data.SignedRenewalInfo != "" {
		if decoded.RenewalInfo, err = d.DecodeRenewalInfo(data.SignedRenewalInfo); err != nil {
			return nil, err
		}
	}

	return decoded, nil
}

// DecodeTransaction decodes a signedTransactionInfo
func (d *JWSDecoder) DecodeTransaction(signed string) (*models.JWSTransaction, error) {
	raw, err := d.decodePayload(signed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	var transaction models.JWSTransaction
	if err := json.Unmarshal(raw, &transaction); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
	}
	return &transaction, nil
}

// DecodeRenewalInfo decodes a signedRenewalInfo
func (d *JWSDecoder) DecodeRenewalInfo(signed string) (*models.JWSRenewalInfo, error) {
	raw, err := d.decodePayload(signed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode renewal info: %w", err)
	}
	var renewal models.JWSRenewalInfo
	if err := json.Unmarshal(raw, &renewal); err != nil {
		return nil, fmt.Errorf("failed to unmarshal renewal info: %w", err)
	}
	return &renewal, nil
}

// decodePayload verifies the token (when a root is configured) and returns its raw JSON payload.
// The payload is decoded from the segment directly so large integers keep their precision.
func (d *JWSDecoder) decodePayload(token string) ([]byte, error) {
	token = strings.TrimSpace(token)
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed JWS: expected 3 segments, got %d", len(parts))
	}

	if d.roots != nil {
		if _, err := d.parser.Parse(token, d.keyFromChain); err != nil {
			return nil, fmt.Errorf("signature verification failed: %w", err)
		}
	} else if _, _, err := d.parser.ParseUnverified(token, jwt.MapClaims{}); err != nil {
		return nil, fmt.Errorf("failed to parse JWS: %w", err)
	}

	return d.parser.DecodeSegment(parts[1])
}

// keyFromChain validates the x5c chain against the trusted roots and returns the leaf key
func (d *JWSDecoder) keyFromChain(token *jwt.Token) (interface{}, error) {
	chain, ok := token.Header["x5c"].([]interface{})
	if !ok || len(chain) == 0 {
		return nil, ErrMissingCertificateChain
	}

	certs := make([]*x509.Certificate, 0, len(chain))
	for i, entry := range chain {
		encoded, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("x5c[%d] is not a string", i)
		}
		der, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("x5c[%d]: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("x5c[%d]: %w", i, err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	leaf := certs[0]
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         d.roots,
		Intermediates: intermediates,
		CurrentTime:   d.now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("certificate chain invalid: %w", err)
	}

	key, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("leaf certificate key is %T, want ECDSA", leaf.PublicKey)
	}
	return key, nil
}

// parseCertificate accepts PEM or raw DER
func parseCertificate(raw []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(raw); block != nil {
		raw = block.Bytes
	}
	return x509.ParseCertificate(raw)
}

package services

import (
	"encoding/asn1"
	"encoding/base64"
	"strings"

	"go.mozilla.org/pkcs7"
)

// Receipt attribute types
const (
	receiptAttrInAppPurchase         = 17
	receiptAttrTransactionID         = 1703
	receiptAttrOriginalTransactionID = 1705
)

type receiptAttribute struct {
	Type    int
	Version int
	Value   []byte
}

// ExtractTransactionID pulls the first transaction id out of a base64 App Store receipt.
// It returns false when the receipt is malformed or has no in-app purchase section.
func ExtractTransactionID(receipt string) (id string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			id, ok = "", false
		}
	}()

	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(receipt))
	if err != nil || len(der) == 0 {
		return "", false
	}

	p7, err := pkcs7.Parse(der)
	if err != nil || len(p7.Content) == 0 {
		return "", false
	}

	attrs, err := parseReceiptSet(p7.Content)
	if err != nil {
		return "", false
	}

	for _, attr := range attrs {
		if attr.Type != receiptAttrInAppPurchase {
			continue
		}
		inApp, err := parseReceiptSet(attr.Value)
		if err != nil {
			continue
		}
		for _, field := range inApp {
			if field.Type != receiptAttrTransactionID && field.Type != receiptAttrOriginalTransactionID {
				continue
			}
			var value string
			if _, err := asn1.Unmarshal(field.Value, &value); err == nil && value != "" {
				return value, true
			}
		}
	}

	return "", false
}

// parseReceiptSet decodes a SET of receipt attributes, keeping encounter order
func parseReceiptSet(data []byte) ([]receiptAttribute, error) {
	var set asn1.RawValue
	if _, err := asn1.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	if set.Class != asn1.ClassUniversal || set.Tag != asn1.TagSet {
		return nil, asn1.StructuralError{Msg: "receipt payload is not a SET"}
	}

	var attrs []receiptAttribute
	rest := set.Bytes
	for len(rest) > 0 {
		var attr receiptAttribute
		var err error
		if rest, err = asn1.Unmarshal(rest, &attr); err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

package services

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"hound-api/internal/config"
	"hound-api/internal/models"
	"hound-api/pkg/logging"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

const (
	appStoreProductionURL = "https://api.storekit.itunes.apple.com"
	appStoreSandboxURL    = "https://api.storekit-sandbox.itunes.apple.com"

	appStoreAudience     = "appstoreconnect-v1"
	appStoreTokenTTL     = 60 * time.Minute
	appStoreTokenRefresh = 5 * time.Minute

	maxHistoryPages = 50
)

// SubscriptionQuerier looks up everything Apple knows about a transaction lineage
type SubscriptionQuerier interface {
	QueryAllSubscriptionsForTransactionID(ctx context.Context, transactionID string) []models.SubscriptionItem
}

// AppStoreClient talks to the App Store Server API
type AppStoreClient struct {
	baseURL     string
	bundleID    string
	environment string
	issuerID    string
	keyID       string
	key         *ecdsa.PrivateKey

	decoder    PayloadDecoder
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

type historyResponse struct {
	Revision           string   `json:"revision"`
	HasMore            bool     `json:"hasMore"`
	BundleID           string   `json:"bundleId"`
	Environment        string   `json:"environment"`
	SignedTransactions []string `json:"signedTransactions"`
}

type statusResponse struct {
	Environment string        `json:"environment"`
	BundleID    string        `json:"bundleId"`
	Data        []statusGroup `json:"data"`
}

type statusGroup struct {
	SubscriptionGroupIdentifier string            `json:"subscriptionGroupIdentifier"`
	LastTransactions            []lastTransaction `json:"lastTransactions"`
}

type lastTransaction struct {
	Status                int    `json:"status"`
	OriginalTransactionID string `json:"originalTransactionId"`
	SignedTransactionInfo string `json:"signedTransactionInfo"`
	SignedRenewalInfo     string `json:"signedRenewalInfo"`
}

// NewAppStoreClient creates a client from configuration. The signing key is optional:
// without one every query yields no results.
func NewAppStoreClient(cfg config.AppStoreConfig, decoder PayloadDecoder) (*AppStoreClient, error) {
	c := &AppStoreClient{
		baseURL:     cfg.APIBaseURL,
		bundleID:    cfg.BundleID,
		environment: cfg.Environment,
		issuerID:    cfg.IssuerID,
		keyID:       cfg.KeyID,
		decoder:     decoder,
		httpClient:  &http.Client{Timeout: cfg.APITimeout},
		now:         time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = appStoreProductionURL
		if cfg.Environment != config.EnvironmentProduction {
			c.baseURL = appStoreSandboxURL
		}
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")

	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestsPerSecond)
	}

	if cfg.PrivateKeyPath != "" {
		pemBytes, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read App Store private key: %w", err)
		}
		if c.key, err = jwt.ParseECPrivateKeyFromPEM(pemBytes); err != nil {
			return nil, fmt.Errorf("failed to parse App Store private key: %w", err)
		}
	} else {
		logging.Warnf("APPSTORE_PRIVATE_KEY_PATH is not set, App Store Server API queries are disabled")
	}

	return c, nil
}

// QueryAllSubscriptionsForTransactionID returns the auto-renewable history of the lineage
// containing transactionID, newest first, each paired with its current renewal info when
// Apple reports one. Any failure yields an empty result.
func (c *AppStoreClient) QueryAllSubscriptionsForTransactionID(ctx context.Context, transactionID string) []models.SubscriptionItem {
	if c.key == nil || transactionID == "" {
		return []models.SubscriptionItem{}
	}

	history, err := c.fetchHistory(ctx, transactionID)
	if err != nil {
		logging.Errorf("App Store history query failed - transaction: %s, error: %v", transactionID, err)
		return []models.SubscriptionItem{}
	}
	if len(history) == 0 {
		return []models.SubscriptionItem{}
	}

	statuses, err := c.fetchStatuses(ctx, history[0].TransactionID)
	if err != nil {
		logging.Errorf("App Store status query failed - transaction: %s, error: %v", history[0].TransactionID, err)
		return []models.SubscriptionItem{}
	}

	items := make([]models.SubscriptionItem, 0, len(history))
	for _, tx := range history {
		item := models.SubscriptionItem{Transaction: tx}
		if status, ok := statuses[tx.TransactionID]; ok {
			item.RenewalInfo = status.RenewalInfo
		}
		items = append(items, item)
	}
	return items
}

// fetchHistory follows pagination until Apple reports no more pages
func (c *AppStoreClient) fetchHistory(ctx context.Context, transactionID string) ([]*models.JWSTransaction, error) {
	var transactions []*models.JWSTransaction
	revision := ""

	for page := 0; page < maxHistoryPages; page++ {
		query := url.Values{}
		query.Set("sort", "DESCENDING")
		query.Set("productType", "AUTO_RENEWABLE")
		if revision != "" {
			query.Set("revision", revision)
		}

		var resp historyResponse
		path := "/inApps/v2/history/" + url.PathEscape(transactionID) + "?" + query.Encode()
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, err
		}

		for _, signed := range resp.SignedTransactions {
			tx, err := c.decoder.DecodeTransaction(signed)
			if err != nil {
				return nil, err
			}
			if tx.BundleID != c.bundleID || tx.Environment != c.environment {
				logging.Warnf("Dropping history entry from another app or environment - transaction: %s, bundle: %s, environment: %s",
					tx.TransactionID, tx.BundleID, tx.Environment)
				continue
			}
			if tx.Type != models.TransactionTypeAutoRenewable {
				continue
			}
			transactions = append(transactions, tx)
		}

		if !resp.HasMore || resp.Revision == "" {
			return transactions, nil
		}
		revision = resp.Revision
	}

	logging.Warnf("History for transaction %s exceeded %d pages, using what was fetched", transactionID, maxHistoryPages)
	return transactions, nil
}

// fetchStatuses returns, per subscription group, the latest transaction keyed by its id
func (c *AppStoreClient) fetchStatuses(ctx context.Context, transactionID string) (map[string]models.SubscriptionItem, error) {
	var resp statusResponse
	if err := c.get(ctx, "/inApps/v1/subscriptions/"+url.PathEscape(transactionID), &resp); err != nil {
		return nil, err
	}

	statuses := make(map[string]models.SubscriptionItem)
	for _, group := range resp.Data {
		var latest *models.JWSTransaction
		var latestRenewal string
		for _, last := range group.LastTransactions {
			tx, err := c.decoder.DecodeTransaction(last.SignedTransactionInfo)
			if err != nil {
				return nil, err
			}
			if latest == nil || tx.PurchaseDate > latest.PurchaseDate {
				latest = tx
				latestRenewal = last.SignedRenewalInfo
			}
		}
		if latest == nil {
			continue
		}

		item := models.SubscriptionItem{Transaction: latest}
		if latestRenewal != "" {
			renewal, err := c.decoder.DecodeRenewalInfo(latestRenewal)
			if err != nil {
				return nil, err
			}
			item.RenewalInfo = renewal
		}
		statuses[latest.TransactionID] = item
	}
	return statuses, nil
}

func (c *AppStoreClient) get(ctx context.Context, path string, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}
	}

	token, err := c.bearerToken()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// bearerToken returns a cached ES256 token, minting a new one shortly before expiry
func (c *AppStoreClient) bearerToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.tokenExpiry.Add(-appStoreTokenRefresh)) {
		return c.token, nil
	}

	expiry := now.Add(appStoreTokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": c.issuerID,
		"iat": now.Unix(),
		"exp": expiry.Unix(),
		"aud": appStoreAudience,
		"bid": c.bundleID,
	})
	token.Header["kid"] = c.keyID

	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign App Store token: %w", err)
	}

	c.token = signed
	c.tokenExpiry = expiry
	return signed, nil
}

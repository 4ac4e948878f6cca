package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/yukikurage/apollo-api/internal/constants"
)

// Tagger is the marketing capability used by the API. Failures never reach the caller.
type Tagger interface {
	// HasPurchased reports whether email carries the purchaser tag. Unknown
	// contacts are created, added to the mailing list and tagged as users.
	HasPurchased(ctx context.Context, email string) bool
	// Tag applies one of the known tags to the contact with email.
	Tag(ctx context.Context, email, tag string)
}

var (
	ErrNotConfigured   = errors.New("crm is not configured")
	ErrUnknownTag      = errors.New("unknown tag")
	ErrContactNotFound = errors.New("contact not found")
)

var tagIDs = map[string]string{
	constants.TagPurchaser: "30",
	constants.TagTrialUser: "34",
	constants.TagUser:      "42",
	constants.TagPromoCode: "43",
}

// Config holds ActiveCampaign settings.
type Config struct {
	BaseURL    string
	APIKey     string
	ListID     int
	HTTPClient *http.Client
}

// ActiveCampaign implements Tagger over the ActiveCampaign v3 REST API.
type ActiveCampaign struct {
	baseURL    string
	apiKey     string
	listID     int
	httpClient *http.Client
	log        logrus.FieldLogger
}

// NewActiveCampaign creates an ActiveCampaign client.
func NewActiveCampaign(cfg Config, log logrus.FieldLogger) *ActiveCampaign {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 15 * time.Second,
		}
	}
	return &ActiveCampaign{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		listID:     cfg.ListID,
		httpClient: httpClient,
		log:        log,
	}
}

func (a *ActiveCampaign) HasPurchased(ctx context.Context, email string) bool {
	purchased, err := a.hasPurchased(ctx, email)
	if err != nil {
		a.log.WithError(err).Warn("CRM purchase lookup failed")
		return false
	}
	return purchased
}

func (a *ActiveCampaign) Tag(ctx context.Context, email, tag string) {
	if err := a.addTag(ctx, email, tag); err != nil {
		a.log.WithError(err).WithField("tag", tag).Warn("CRM tagging failed")
	}
}

func (a *ActiveCampaign) hasPurchased(ctx context.Context, email string) (bool, error) {
	if a.baseURL == "" || a.apiKey == "" {
		return false, ErrNotConfigured
	}

	contacts, err := a.get(ctx, "/contacts", url.Values{"email": {email}})
	if err != nil {
		return false, err
	}

	if len(contacts.Get("contacts").Array()) == 0 {
		if err := a.createContact(ctx, email); err != nil {
			return false, err
		}
		return false, a.addTag(ctx, email, constants.TagUser)
	}

	tagged, err := a.get(ctx, "/contacts", url.Values{
		"tagid": {tagIDs[constants.TagPurchaser]},
		"email": {email},
	})
	if err != nil {
		return false, err
	}

	purchased := false
	for _, contactEmail := range tagged.Get("contacts.#.email").Array() {
		if contactEmail.String() == email {
			purchased = true
			break
		}
	}

	if !purchased {
		if err := a.addTag(ctx, email, constants.TagUser); err != nil {
			return false, err
		}
	}
	return purchased, nil
}

func (a *ActiveCampaign) createContact(ctx context.Context, email string) error {
	created, err := a.post(ctx, "/contacts", map[string]any{
		"contact": map[string]any{"email": email},
	})
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	contactID := created.Get("contact.id").String()
	if contactID == "" {
		return fmt.Errorf("failed to create contact: response has no id")
	}

	_, err = a.post(ctx, "/contactLists", map[string]any{
		"contactList": map[string]any{"list": a.listID, "contact": contactID, "status": 1},
	})
	if err != nil {
		return fmt.Errorf("failed to add contact to list: %w", err)
	}
	return nil
}

func (a *ActiveCampaign) addTag(ctx context.Context, email, tag string) error {
	if a.baseURL == "" || a.apiKey == "" {
		return ErrNotConfigured
	}
	tagID, ok := tagIDs[tag]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}

	contacts, err := a.get(ctx, "/contacts", url.Values{"email": {email}})
	if err != nil {
		return err
	}
	contactID := contacts.Get("contacts.0.id").String()
	if contactID == "" {
		return ErrContactNotFound
	}

	_, err = a.post(ctx, "/contactTags", map[string]any{
		"contactTag": map[string]any{"contact": contactID, "tag": tagID},
	})
	return err
}

func (a *ActiveCampaign) get(ctx context.Context, path string, query url.Values) (gjson.Result, error) {
	endpoint := a.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, err
	}
	return a.do(req)
}

func (a *ActiveCampaign) post(ctx context.Context, path string, body any) (gjson.Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req)
}

func (a *ActiveCampaign) do(req *http.Request) (gjson.Result, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Token", a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return gjson.Result{}, fmt.Errorf("crm %s %s returned %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, fmt.Errorf("crm %s %s returned invalid JSON", req.Method, req.URL.Path)
	}
	return gjson.ParseBytes(data), nil
}

package dsclient

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/xelth-com/dsrelay/internal/crypto"
	"github.com/xelth-com/dsrelay/internal/models"
	"github.com/xelth-com/dsrelay/internal/relayerr"
)

// ReAuth fetches a challenge, signs it with the account's signing key and
// exchanges it for a token. Challenge and token come from the same delivery
// service; the first one in profile that completes both steps wins.
func (c *Client) ReAuth(ctx context.Context, profile models.UserProfile, account string, signer ed25519.PrivateKey) (string, string, error) {
	path := "/auth/" + url.PathEscape(account)

	var token string
	ds, err := c.each(ctx, profile.DeliveryServices, func(ctx context.Context, _ string, svc models.DeliveryServiceProfile) error {
		var challenge struct {
			Challenge string `json:"challenge"`
		}
		if err := c.call(ctx, svc.URL, http.MethodGet, path, "", nil, &challenge); err != nil {
			return err
		}

		payload, err := json.Marshal(map[string]string{
			"challenge": challenge.Challenge,
			"signature": crypto.Sign(signer, []byte(challenge.Challenge)),
		})
		if err != nil {
			return err
		}
		var out struct {
			Token string `json:"token"`
		}
		if err := c.call(ctx, svc.URL, http.MethodPost, path, "", payload, &out); err != nil {
			return err
		}
		if out.Token == "" {
			return errors.New("empty token")
		}
		token = out.Token
		return nil
	})
	return ds, token, err
}

// PublishProfile submits signed to every delivery service it lists and
// returns the token each one issued. It fails only if none accepted it.
func (c *Client) PublishProfile(ctx context.Context, account string, signed models.SignedUserProfile) (map[string]string, error) {
	tokens := make(map[string]string)
	var errs []error

	for _, name := range signed.Profile.DeliveryServices {
		var out struct {
			Token string `json:"token"`
		}
		_, err := c.Do(ctx, []string{name}, http.MethodPost, "/profile/"+url.PathEscape(account), nil, signed, &out)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tokens[name] = out.Token
	}

	if len(tokens) == 0 {
		return nil, errors.Join(errs...)
	}
	return tokens, nil
}

// GetProfile looks account up on services
func (c *Client) GetProfile(ctx context.Context, services []string, account string) (models.SignedUserProfile, error) {
	var p models.SignedUserProfile
	_, err := c.Do(ctx, services, http.MethodGet, "/profile/"+url.PathEscape(account), nil, nil, &p)
	return p, err
}

// EnvelopeBuilder seals an envelope for one delivery service. The routing
// data is encrypted to that service's key, so each attempt builds its own.
type EnvelopeBuilder func(ds models.DeliveryServiceProfile) (models.EncryptionEnvelope, error)

// SubmitMessage delivers to the recipient's delivery services and returns the
// one that accepted the envelope.
func (c *Client) SubmitMessage(ctx context.Context, recipient models.UserProfile, build EnvelopeBuilder, tokens TokenSource) (string, error) {
	return c.each(ctx, recipient.DeliveryServices, func(ctx context.Context, name string, ds models.DeliveryServiceProfile) error {
		env, err := build(ds)
		if err != nil {
			return err
		}
		payload, err := json.Marshal(env)
		if err != nil {
			return err
		}
		token := ""
		if tokens != nil {
			token = tokens(name)
		}
		return c.call(ctx, ds.URL, http.MethodPost, "/messages", token, payload, nil)
	})
}

// FetchMessages pulls the conversation of account with contact from the
// account's own delivery services. It also returns the service that answered.
func (c *Client) FetchMessages(ctx context.Context, own models.UserProfile, account, contact string, limit int, tokens TokenSource) ([]models.EncryptionEnvelope, string, error) {
	path := "/messages/" + url.PathEscape(account) + "/" + url.PathEscape(contact)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}

	var envs []models.EncryptionEnvelope
	ds, err := c.Do(ctx, own.DeliveryServices, http.MethodGet, path, tokens, nil, &envs)
	return envs, ds, err
}

// AddPending asks services to tell account when recipient publishes a profile
func (c *Client) AddPending(ctx context.Context, services []string, account, recipient string, tokens TokenSource) error {
	body := map[string]string{"recipient": recipient}
	_, err := c.Do(ctx, services, http.MethodPost, "/messages/"+url.PathEscape(account)+"/pending", tokens, body, nil)
	return err
}

// IsUnknownSession reports whether err means the recipient has no profile yet
func IsUnknownSession(err error) bool {
	return errors.Is(err, relayerr.ErrUnknownSession)
}

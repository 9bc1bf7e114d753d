// Package authn runs the interactive hosted-login flow and resolves
// the session's subject identity.
package authn

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/ory/herodot"
)

// Identity is the resolved login result: the subject's email and the
// identity provider's id for it.
type Identity struct {
	Email string
	ID    string
}

// Flow holds what the login flow needs: the identity service, the
// hosted login page, and the local callback listener address.
type Flow struct {
	authBaseURL  string
	clientToken  string
	hostedLogin  string
	callbackAddr string
	http         *http.Client
	writer       *herodot.JSONWriter
}

func NewFlow(authBaseURL, clientToken, hostedLogin, callbackAddr string) *Flow {
	return &Flow{
		authBaseURL:  authBaseURL,
		clientToken:  clientToken,
		hostedLogin:  hostedLogin,
		callbackAddr: callbackAddr,
		http:         &http.Client{Timeout: 30 * time.Second},
		writer:       herodot.NewJSONWriter(nil),
	}
}

type callbackResult struct {
	code string
	err  error
}

// PromptLogin starts a local callback listener, directs the user to
// the hosted login page, and blocks until the login flow resolves.
// The returned subject is fixed for the rest of the process lifetime;
// there is no refresh or logout.
func (f *Flow) PromptLogin() (*Identity, error) {
	state := uuid.New().String()
	redirectURI := fmt.Sprintf("http://%s/callback", f.callbackAddr)

	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			err := fmt.Errorf("login callback state mismatch")
			f.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("State mismatch"))
			results <- callbackResult{err: err}
			return
		}
		code := query.Get("code")
		if code == "" {
			err := fmt.Errorf("login callback carried no code")
			f.writer.WriteError(w, r, herodot.ErrBadRequest.WithReason("Missing code"))
			results <- callbackResult{err: err}
			return
		}

		f.writer.Write(w, r, map[string]string{
			"status": "ok",
			"detail": "Login complete. You can return to the terminal.",
		})
		results <- callbackResult{code: code}
	})

	server := &http.Server{Addr: f.callbackAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			results <- callbackResult{err: fmt.Errorf("callback listener failed: %w", err)}
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()

	params := url.Values{}
	params.Set("redirect_uri", redirectURI)
	params.Set("state", state)
	log.Printf("Open the following URL in a browser to log in:\n%s?%s", f.hostedLogin, params.Encode())

	result := <-results
	if result.err != nil {
		return nil, result.err
	}

	return f.exchangeCode(result.code)
}

// exchangeCode trades the callback code for the logged-in user's info.
func (f *Flow) exchangeCode(code string) (*Identity, error) {
	reqBody := map[string]string{"code": code}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, f.authBaseURL+"/v2/client/userinfo", bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+f.clientToken)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Result struct {
			ActiveToken struct {
				Owner    string `json:"owner"`
				Identity string `json:"identity"`
			} `json:"active_token"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal userinfo: %w", err)
	}
	if result.Result.ActiveToken.Owner == "" {
		return nil, fmt.Errorf("userinfo response carried no owner")
	}

	return &Identity{
		Email: result.Result.ActiveToken.Owner,
		ID:    result.Result.ActiveToken.Identity,
	}, nil
}

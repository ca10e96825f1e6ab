package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

const defaultGitHubAPIBaseURL = "https://api.github.com"

var (
	errMissingClientID     = errors.New("auth: github client id required")
	errMissingClientSecret = errors.New("auth: github client secret required")
	errMissingCallbackURL  = errors.New("auth: github callback url required")
	errEmptyGitHubSubject  = errors.New("auth: github user response missing id")
)

// GitHubConfig bundles the OAuth app credentials plus optional endpoint
// overrides used by tests.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	AuthURL    string
	TokenURL   string
	APIBaseURL string
	HTTPClient *http.Client
}

// GitHubProvider drives the GitHub OAuth handshake: consent redirect,
// grant exchange and profile retrieval, producing a ProviderIdentity.
type GitHubProvider struct {
	oauthConfig *oauth2.Config
	apiBaseURL  string
	httpClient  *http.Client
}

// NewGitHubProvider constructs a provider with validated configuration.
func NewGitHubProvider(cfg GitHubConfig) (*GitHubProvider, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errMissingClientID
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errMissingClientSecret
	}
	if strings.TrimSpace(cfg.CallbackURL) == "" {
		return nil, errMissingCallbackURL
	}

	endpoint := githuboauth.Endpoint
	if cfg.AuthURL != "" && cfg.TokenURL != "" {
		endpoint = oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	}
	apiBaseURL := strings.TrimSuffix(cfg.APIBaseURL, "/")
	if apiBaseURL == "" {
		apiBaseURL = defaultGitHubAPIBaseURL
	}

	return &GitHubProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		apiBaseURL: apiBaseURL,
		httpClient: cfg.HTTPClient,
	}, nil
}

// AuthCodeURL returns the consent redirect URL carrying the signed state.
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.oauthConfig.AuthCodeURL(state)
}

type githubUserResponse struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	HTMLURL   string `json:"html_url"`
	AvatarURL string `json:"avatar_url"`
	Email     string `json:"email"`
}

type githubEmailResponse struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// Exchange trades the authorization grant for an access token and fetches
// the user's profile, returning the verified provider identity.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (ProviderIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return ProviderIdentity{}, fmt.Errorf("%w: authorization code required", ErrValidation)
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return ProviderIdentity{}, fmt.Errorf("exchanging authorization code: %w", err)
	}

	client := p.oauthConfig.Client(ctx, token)

	var profile githubUserResponse
	if err := p.getJSON(ctx, client, "/user", &profile); err != nil {
		return ProviderIdentity{}, fmt.Errorf("fetching github profile: %w", err)
	}
	if profile.ID == 0 {
		return ProviderIdentity{}, errEmptyGitHubSubject
	}

	email := strings.TrimSpace(profile.Email)
	if email == "" {
		email = p.lookupPrimaryEmail(ctx, client)
	}

	return ProviderIdentity{
		ExternalID:  strconv.FormatInt(profile.ID, 10),
		Handle:      profile.Login,
		DisplayName: profile.Name,
		ProfileURL:  profile.HTMLURL,
		AvatarURL:   profile.AvatarURL,
		Email:       email,
	}, nil
}

// lookupPrimaryEmail asks the emails endpoint for a verified address when
// the profile hides it. Failure is not fatal; the resolver synthesizes an
// address for identities without one.
func (p *GitHubProvider) lookupPrimaryEmail(ctx context.Context, client *http.Client) string {
	var emails []githubEmailResponse
	if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return ""
	}
	for _, entry := range emails {
		if entry.Primary && entry.Verified {
			return strings.TrimSpace(entry.Email)
		}
	}
	for _, entry := range emails {
		if entry.Verified {
			return strings.TrimSpace(entry.Email)
		}
	}
	return ""
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/vnd.github+json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("github api %s returned status %d: %s", path, response.StatusCode, string(body))
	}
	return json.Unmarshal(body, target)
}

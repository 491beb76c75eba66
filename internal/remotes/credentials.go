package remotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ferg-cod3s/conexus/internal/repo"
	"github.com/ferg-cod3s/conexus/internal/statestore"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Credential is the persisted auth material for one repo.Backend.
// Either the token fields (AccessToken, with optional RefreshToken and
// Expiry) or the App* fields are populated, depending on how the
// credential was obtained. Store.Token neither refreshes a token nor
// exchanges an App JWT for an installation token.
type Credential struct {
	Backend            repo.Backend `json:"backend"`
	AccessToken        string       `json:"access_token,omitempty"`
	RefreshToken       string       `json:"refresh_token,omitempty"`
	Expiry             time.Time    `json:"expiry,omitempty"`
	AppID              int64        `json:"app_id,omitempty"`
	AppInstallationID  int64        `json:"app_installation_id,omitempty"`
	AppPrivateKeyPEM   string       `json:"app_private_key_pem,omitempty"`
}

type credentialFile struct {
	Entries []Credential `json:"entries"`
}

// Store persists credentials keyed by backend at
// index_dir/credentials.json, written atomically on every save.
type Store struct {
	src statestore.Source
}

func NewStore(src statestore.Source) *Store {
	return &Store{src: src}
}

func (s *Store) Load() (map[repo.Backend]Credential, error) {
	var f credentialFile
	if err := statestore.ReadFileOrDefault(s.src.CredentialsFile(), &f); err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	out := make(map[repo.Backend]Credential, len(f.Entries))
	for _, c := range f.Entries {
		out[c.Backend] = c
	}
	return out, nil
}

func (s *Store) Save(creds map[repo.Backend]Credential) error {
	f := credentialFile{}
	for _, c := range creds {
		f.Entries = append(f.Entries, c)
	}
	return statestore.PrettyWriteFile(s.src.CredentialsFile(), f)
}

var ErrNoCredential = errors.New("no credential configured for backend")

// Token resolves the token stored for backend. For an App-based
// credential (AppID set) it returns a freshly signed App JWT. Otherwise
// it returns AccessToken as stored, except that a token past its expiry
// that carries a RefreshToken yields an error wrapping ErrNoCredential;
// no refresh is attempted. An expired token without a RefreshToken is
// returned as is.
func (s *Store) Token(ctx context.Context, backend repo.Backend) (string, error) {
	creds, err := s.Load()
	if err != nil {
		return "", err
	}
	cred, ok := creds[backend]
	if !ok {
		return "", ErrNoCredential
	}

	if cred.AppID != 0 {
		return mintAppInstallationToken(cred)
	}

	if !cred.Expiry.IsZero() && time.Now().After(cred.Expiry) && cred.RefreshToken != "" {
		// No token-endpoint round trip is made here; the expired
		// token is reported as an error instead of being returned.
		return "", fmt.Errorf("%w: token expired and no refresher attached", ErrNoCredential)
	}

	return cred.AccessToken, nil
}

// mintAppInstallationToken signs a short-lived JWT asserting the
// GitHub App's identity and returns that JWT. It does not exchange the
// JWT for an installation access token.
func mintAppInstallationToken(cred Credential) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cred.AppPrivateKeyPEM))
	if err != nil {
		return "", fmt.Errorf("parse app private key: %w", err)
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    fmt.Sprintf("%d", cred.AppID),
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return signed, nil
}

// oauthTokenSource adapts a stored Credential into an oauth2.TokenSource
// that refreshes through cfg. Token above does not use it.
func oauthTokenSource(ctx context.Context, cfg *oauth2.Config, cred Credential) oauth2.TokenSource {
	tok := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry,
	}
	return cfg.TokenSource(ctx, tok)
}

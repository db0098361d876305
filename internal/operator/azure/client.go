package azure

import (
	"context"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"gitlab.com/tozd/go/errors"

	"github.com/Chapsvision-dev/ferry/internal/operator"
)

// Kind is the profile type for Azure Blob Storage.
const Kind = "azblob"

// settings holds the profile options the client is built from.
type settings struct {
	Account   string
	Container string
	Endpoint  string
	SASToken  string
	Root      string

	ClientID     string
	ClientSecret string
	TenantID     string
}

func parseSettings(opts operator.Options) (settings, error) {
	s := settings{
		Account:      opts.Get("account", ""),
		Container:    opts.Get("container", ""),
		Endpoint:     opts.Get("endpoint", ""),
		SASToken:     opts.Get("sas_token", ""),
		Root:         opts.Get("root", ""),
		ClientID:     opts.Get("client_id", ""),
		ClientSecret: opts.Get("client_secret", ""),
		TenantID:     opts.Get("tenant_id", ""),
	}
	if s.Container == "" {
		return s, errors.New(`azblob: option "container" is required`)
	}
	if s.Endpoint == "" {
		if s.Account == "" {
			return s, errors.New(`azblob: option "account" or "endpoint" is required`)
		}
		s.Endpoint = fmt.Sprintf("https://%s.blob.core.windows.net/", s.Account)
	}
	if !strings.HasSuffix(s.Endpoint, "/") {
		s.Endpoint += "/"
	}
	return s, nil
}

// Build client from settings.
// Priority: 1) SAS  2) Service Principal  3) DefaultAzureCredential.
func newClient(s settings) (*azblob.Client, error) {
	// 1) SAS
	if sasRaw := strings.TrimSpace(s.SASToken); sasRaw != "" {
		sas := strings.TrimPrefix(sasRaw, "?")
		return azblob.NewClientWithNoCredential(s.Endpoint+"?"+sas, nil)
	}

	// 2) Service Principal
	if s.ClientID != "" && s.ClientSecret != "" && s.TenantID != "" {
		cred, err := azidentity.NewClientSecretCredential(s.TenantID, s.ClientID, s.ClientSecret, nil)
		if err != nil {
			return nil, err
		}
		return azblob.NewClient(s.Endpoint, cred, nil)
	}

	// 3) Managed Identity / DefaultAzureCredential
	defCred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	return azblob.NewClient(s.Endpoint, defCred, nil)
}

func init() {
	operator.Register(Kind, func(_ context.Context, opts operator.Options) (operator.Operator, error) {
		s, err := parseSettings(opts)
		if err != nil {
			return nil, err
		}
		client, err := newClient(s)
		if err != nil {
			return nil, errors.Errorf("azblob: create client: %w", err)
		}
		return &Operator{
			client:    client,
			container: s.Container,
			root:      s.Root,
		}, nil
	})
}

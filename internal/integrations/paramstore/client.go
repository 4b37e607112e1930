package paramstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// maxNamesPerCall is the GetParameters batch limit enforced by SSM.
const maxNamesPerCall = 10

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameters(ctx context.Context, in *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// Client resolves decrypted parameter values from AWS SSM.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameters fetches every name and returns the values keyed by name.
// A name SSM reports as invalid, or one returned without a value, fails the
// whole call so callers never start with partial credentials.
func (c *Client) GetParameters(ctx context.Context, names ...string) (map[string]string, error) {
	if c.api == nil {
		return nil, errors.New("paramstore: client not initialized")
	}
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, errors.New("paramstore: name is required")
		}
		cleaned = append(cleaned, n)
	}

	values := make(map[string]string, len(cleaned))
	for start := 0; start < len(cleaned); start += maxNamesPerCall {
		end := min(start+maxNamesPerCall, len(cleaned))
		out, err := c.api.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          cleaned[start:end],
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("paramstore: get parameters: %w", err)
		}
		if out == nil {
			return nil, errors.New("paramstore: empty response")
		}
		if len(out.InvalidParameters) > 0 {
			invalid := append([]string(nil), out.InvalidParameters...)
			sort.Strings(invalid)
			return nil, fmt.Errorf("paramstore: parameters not found: %s", strings.Join(invalid, ", "))
		}
		for _, p := range out.Parameters {
			if p.Name == nil || p.Value == nil {
				return nil, errors.New("paramstore: parameter missing value")
			}
			values[*p.Name] = *p.Value
		}
	}

	for _, n := range cleaned {
		if _, ok := values[n]; !ok {
			return nil, fmt.Errorf("paramstore: parameter %q missing from response", n)
		}
	}
	return values, nil
}

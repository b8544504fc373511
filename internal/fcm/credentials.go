package fcm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Environment variables holding the service account fields
var credentialEnv = []struct {
	env string
	key string
}{
	{"FIREBASE_TYPE", "type"},
	{"FIREBASE_PROJECT_ID", "project_id"},
	{"FIREBASE_PRIVATE_KEY_ID", "private_key_id"},
	{"FIREBASE_PRIVATE_KEY", "private_key"},
	{"FIREBASE_CLIENT_EMAIL", "client_email"},
	{"FIREBASE_CLIENT_ID", "client_id"},
	{"FIREBASE_AUTH_URI", "auth_uri"},
	{"FIREBASE_TOKEN_URI", "token_uri"},
	{"FIREBASE_AUTH_PROVIDER_CERT_URL", "auth_provider_x509_cert_url"},
	{"FIREBASE_CLIENT_CERT_URL", "client_x509_cert_url"},
}

// LoadCredentials reads the service account file, or assembles it from
// FIREBASE_* environment variables when path is empty
func LoadCredentials(path string) ([]byte, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		return data, nil
	}
	return CredentialsFromEnv(os.Getenv)
}

// CredentialsFromEnv builds a service account document from environment lookups
func CredentialsFromEnv(getenv func(string) string) ([]byte, error) {
	doc := make(map[string]string, len(credentialEnv))
	var missing []string

	for _, c := range credentialEnv {
		v := getenv(c.env)
		if v == "" {
			missing = append(missing, c.env)
			continue
		}
		if c.key == "private_key" {
			v = strings.ReplaceAll(v, `\n`, "\n")
		}
		doc[c.key] = v
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing firebase environment variables: %s", strings.Join(missing, ", "))
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode credentials: %w", err)
	}
	return data, nil
}

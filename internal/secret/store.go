package secret

// Keys used to look up dataset host credentials.
const (
	KeyKaggleUsername = "username"
	KeyKaggleKey      = "key"
)

// SecretStore provides read access to sensitive values such as the dataset
// host API key. Implementations read from the environment or from the
// credentials file the dataset host's own tooling writes.
type SecretStore interface {
	// Get retrieves the secret value for the given key.
	// Returns empty slice and nil error if key does not exist.
	Get(key string) ([]byte, error)
}

// Chain queries stores in order and returns the first non-empty value.
type Chain []SecretStore

func (c Chain) Get(key string) ([]byte, error) {
	for _, s := range c {
		v, err := s.Get(key)
		if err != nil {
			return nil, err
		}
		if len(v) > 0 {
			return v, nil
		}
	}
	return nil, nil
}

// Credentials is a username/key pair for HTTP basic auth.
type Credentials struct {
	Username string
	Key      string
}

// Valid reports whether both parts are present.
func (c Credentials) Valid() bool {
	return c.Username != "" && c.Key != ""
}

// LoadCredentials reads username and key from store.
// Missing values are not an error; check Valid.
func LoadCredentials(store SecretStore) (Credentials, error) {
	user, err := store.Get(KeyKaggleUsername)
	if err != nil {
		return Credentials{}, err
	}
	key, err := store.Get(KeyKaggleKey)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Username: string(user), Key: string(key)}, nil
}

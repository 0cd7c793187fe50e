package admin

import (
	"errors"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

var ErrNoEditableKeys = errors.New("no editable keys")

// Editable lists the .env keys the admin console may read and write. Values of
// secret keys are masked on read. Changes apply on the next restart.
var Editable = map[string]bool{
	"PRIZE_CACHE_TTL":   false,
	"OTP_TTL":           false,
	"OTP_PRUNE_TICK":    false,
	"REDEMPTION_TTL":    false,
	"NOTIFY_TIMEOUT":    false,
	"APP_BASE_URL":      false,
	"ADMIN_ALLOWED_IPS": false,
	"SMTP_HOST":         false,
	"SMTP_PORT":         false,
	"SMTP_USER":         false,
	"SMTP_FROM":         false,
	"SMTP_PASS":         true,
	"ADMIN_PASSWORD":    true,
	"JWT_SECRET":        true,
}

const maskedValue = "********"

type SettingsService struct {
	path string
	mu   sync.Mutex
}

func NewSettingsService(path string) *SettingsService {
	return &SettingsService{path: path}
}

func (s *SettingsService) read() (map[string]string, error) {
	values, err := godotenv.Read(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return values, nil
}

// Read returns the editable keys present in the env file, secrets masked.
func (s *SettingsService) Read() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(Editable))
	for key, secret := range Editable {
		v, ok := values[key]
		if !ok {
			continue
		}
		if secret && v != "" {
			v = maskedValue
		}
		out[key] = v
	}
	return out, nil
}

// Update merges editable keys into the env file and returns the keys written.
// Unknown keys and masked placeholders are ignored.
func (s *SettingsService) Update(updates map[string]string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.read()
	if err != nil {
		return nil, err
	}
	var written []string
	for key, value := range updates {
		key = strings.TrimSpace(key)
		if _, ok := Editable[key]; !ok || value == maskedValue {
			continue
		}
		current[key] = strings.TrimSpace(value)
		written = append(written, key)
	}
	if len(written) == 0 {
		return nil, ErrNoEditableKeys
	}
	sort.Strings(written)
	if err := godotenv.Write(current, s.path); err != nil {
		return nil, err
	}
	return written, nil
}

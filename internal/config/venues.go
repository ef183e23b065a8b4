package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"balancer/internal/exchange"
	"balancer/pkg/crypto"
)

// venuesFile - формат файла бирж
//
//	venues:
//	  - name: binance
//	    kind: paper
//	    api_key: ENC:...
//	    markets: {BTC: BTCUSDT}
type venuesFile struct {
	Venues []exchange.VenueConfig `yaml:"venues"`
}

// LoadVenues читает файл бирж и расшифровывает ENC: секреты
func LoadVenues(path, encryptionKey string) ([]exchange.VenueConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read venues file %s: %w", path, err)
	}
	return ParseVenues(data, encryptionKey)
}

// ParseVenues разбирает YAML со списком бирж
func ParseVenues(data []byte, encryptionKey string) ([]exchange.VenueConfig, error) {
	var f venuesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse venues file: %w", err)
	}

	for i := range f.Venues {
		v := &f.Venues[i]
		v.Name = strings.ToLower(strings.TrimSpace(v.Name))

		for _, secret := range []*string{&v.APIKey, &v.Secret, &v.Passphrase} {
			plain, err := crypto.OpenSecret(*secret, encryptionKey)
			if err != nil {
				return nil, fmt.Errorf("venue %s: decrypt secret: %w", v.Name, err)
			}
			*secret = plain
		}

		markets := make(map[string]string, len(v.Markets))
		for coin, sym := range v.Markets {
			markets[strings.ToUpper(coin)] = sym
		}
		v.Markets = markets
	}
	return f.Venues, nil
}

// FilterEnabled оставляет биржи из списка enabled (пустой список = все)
func FilterEnabled(venues []exchange.VenueConfig, enabled []string) []exchange.VenueConfig {
	if len(enabled) == 0 {
		return venues
	}
	allow := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		allow[strings.ToLower(name)] = true
	}
	out := make([]exchange.VenueConfig, 0, len(venues))
	for _, v := range venues {
		if allow[v.Name] {
			out = append(out, v)
		}
	}
	return out
}

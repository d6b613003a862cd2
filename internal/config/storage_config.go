package config

import "github.com/knadh/koanf/v2"

type Storage struct {
	k *koanf.Koanf
}

var _ StorageConfig = Storage{}

func (s Storage) GetPersistenceEnabled() bool {
	return s.k.Bool("storage.persistence_enabled")
}

func (s Storage) GetDataFolder() string {
	return stringOr(s.k, "storage.dir", "./data")
}

// GetClientsDBPath is a buntdb path; ":memory:" keeps registrations for the process lifetime only.
func (s Storage) GetClientsDBPath() string {
	return stringOr(s.k, "storage.clients_db", ":memory:")
}

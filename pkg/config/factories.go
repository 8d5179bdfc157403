package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittochat/internal/store"
	"github.com/marmos91/dittochat/internal/store/badger"
	"github.com/marmos91/dittochat/internal/store/memory"
)

// CreateMailboxStore builds the mailbox store selected by cfg.Type, decoding
// the matching type-specific options map.
func CreateMailboxStore(cfg *StoreConfig) (store.MailboxStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "badger":
		return createBadgerStore(cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown mailbox store type: %q", cfg.Type)
	}
}

func createBadgerStore(options map[string]any) (store.MailboxStore, error) {
	type BadgerStoreConfig struct {
		Dir string `mapstructure:"dir"`
	}

	var storeCfg BadgerStoreConfig
	if err := mapstructure.Decode(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger store config: %w", err)
	}
	if storeCfg.Dir == "" {
		return nil, fmt.Errorf("badger store: dir is required")
	}

	s, err := badger.Open(storeCfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	return s, nil
}

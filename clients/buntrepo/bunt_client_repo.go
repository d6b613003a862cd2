package buntrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/tidwall/buntdb"

	"github.com/jrsteele09/ehr-auth-broker/clients"
	autherrors "github.com/jrsteele09/ehr-auth-broker/internal/errors"
)

const keyPrefix = "client:"

var _ clients.Repo = (*BuntClientRepo)(nil)

// BuntClientRepo stores clients in buntdb. Path ":memory:" keeps them for the process lifetime.
type BuntClientRepo struct {
	db *buntdb.DB
}

// storedClient carries the secret hash which clients.Client hides from JSON.
type storedClient struct {
	Client     *clients.Client `json:"client"`
	SecretHash string          `json:"secret_hash,omitempty"`
}

func New(path string) (*BuntClientRepo, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("[buntrepo New] open %s: %w", path, err)
	}
	return &BuntClientRepo{db: db}, nil
}

func (r *BuntClientRepo) Insert(client *clients.Client) error {
	if client.ID == "" {
		return autherrors.ErrEmptyKey
	}
	data, err := json.Marshal(storedClient{Client: client, SecretHash: client.SecretHash})
	if err != nil {
		return fmt.Errorf("[BuntClientRepo Insert] marshal: %w", err)
	}
	return r.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(keyPrefix + client.ID); err == nil {
			return autherrors.ErrAlreadyExists
		} else if !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		_, _, err := tx.Set(keyPrefix+client.ID, string(data), nil)
		return err
	})
}

func (r *BuntClientRepo) Get(clientID string) (*clients.Client, error) {
	var value string
	err := r.db.View(func(tx *buntdb.Tx) error {
		var err error
		value, err = tx.Get(keyPrefix + clientID)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, autherrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[BuntClientRepo Get] %s: %w", clientID, err)
	}
	return decode(value)
}

func (r *BuntClientRepo) Delete(clientID string) error {
	err := r.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(keyPrefix + clientID)
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

func (r *BuntClientRepo) List(offset, limit int) ([]*clients.Client, error) {
	var result []*clients.Client
	var decodeErr error
	err := r.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(keyPrefix+"*", func(_, value string) bool {
			client, err := decode(value)
			if err != nil {
				decodeErr = err
				return false
			}
			result = append(result, client)
			return true
		})
	})
	if err != nil {
		return nil, fmt.Errorf("[BuntClientRepo List] %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return page(result, offset, limit), nil
}

func (r *BuntClientRepo) Close() error {
	return r.db.Close()
}

func decode(value string) (*clients.Client, error) {
	var stored storedClient
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		return nil, fmt.Errorf("[buntrepo decode] %w", err)
	}
	if stored.Client == nil {
		return nil, autherrors.ErrNotFound
	}
	stored.Client.SecretHash = stored.SecretHash
	return stored.Client, nil
}

func page(all []*clients.Client, offset, limit int) []*clients.Client {
	if offset < 0 || offset >= len(all) {
		return []*clients.Client{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

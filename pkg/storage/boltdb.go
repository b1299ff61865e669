package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dockfleet/dockfleet/pkg/errdefs"
	"github.com/dockfleet/dockfleet/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketHosts       = []byte("hosts")
	bucketUsers       = []byte("users")
	bucketGrants      = []byte("grants")
	bucketCredentials = []byte("credentials")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "dockfleet.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketHosts,
			bucketUsers,
			bucketGrants,
			bucketCredentials,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// grantKey composes the grants bucket key; one grant per (user, host)
func grantKey(userID, hostID string) []byte {
	return []byte(userID + "/" + hostID)
}

// credentialKey composes the credentials bucket key
func credentialKey(hostID string, kind types.CredentialKind) []byte {
	return []byte(hostID + "/" + string(kind))
}

// Host operations
func (s *BoltStore) CreateHost(host *types.Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		if b.Get([]byte(host.ID)) != nil {
			return errdefs.Newf(errdefs.KindConflict, "host already exists: %s", host.ID)
		}
		data, err := json.Marshal(host)
		if err != nil {
			return err
		}
		return b.Put([]byte(host.ID), data)
	})
}

func (s *BoltStore) GetHost(id string) (*types.Host, error) {
	var host types.Host
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		data := b.Get([]byte(id))
		if data == nil {
			return errdefs.Newf(errdefs.KindNotFound, "host not found: %s", id)
		}
		return json.Unmarshal(data, &host)
	})
	if err != nil {
		return nil, err
	}
	return &host, nil
}

func (s *BoltStore) GetHostByName(name string) (*types.Host, error) {
	var found *types.Host
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		return b.ForEach(func(k, v []byte) error {
			var host types.Host
			if err := json.Unmarshal(v, &host); err != nil {
				return err
			}
			if host.Name == name {
				found = &host
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errdefs.Newf(errdefs.KindNotFound, "host not found: %s", name)
	}
	return found, nil
}

func (s *BoltStore) ListHosts() ([]*types.Host, error) {
	var hosts []*types.Host
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		return b.ForEach(func(k, v []byte) error {
			var host types.Host
			if err := json.Unmarshal(v, &host); err != nil {
				return err
			}
			hosts = append(hosts, &host)
			return nil
		})
	})
	return hosts, err
}

func (s *BoltStore) UpdateHost(host *types.Host) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		if b.Get([]byte(host.ID)) == nil {
			return errdefs.Newf(errdefs.KindNotFound, "host not found: %s", host.ID)
		}
		data, err := json.Marshal(host)
		if err != nil {
			return err
		}
		return b.Put([]byte(host.ID), data)
	})
}

func (s *BoltStore) DeleteHost(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHosts)
		return b.Delete([]byte(id))
	})
}

// User operations
func (s *BoltStore) CreateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.ID)) != nil {
			return errdefs.Newf(errdefs.KindConflict, "user already exists: %s", user.ID)
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.ID), data)
	})
}

func (s *BoltStore) GetUser(id string) (*types.User, error) {
	var user types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		data := b.Get([]byte(id))
		if data == nil {
			return errdefs.Newf(errdefs.KindNotFound, "user not found: %s", id)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *BoltStore) GetUserByUsername(username string) (*types.User, error) {
	var found *types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			if user.Username == username {
				found = &user
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, errdefs.Newf(errdefs.KindNotFound, "user not found: %s", username)
	}
	return found, nil
}

func (s *BoltStore) ListUsers() ([]*types.User, error) {
	var users []*types.User
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			var user types.User
			if err := json.Unmarshal(v, &user); err != nil {
				return err
			}
			users = append(users, &user)
			return nil
		})
	})
	return users, err
}

func (s *BoltStore) UpdateUser(user *types.User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		if b.Get([]byte(user.ID)) == nil {
			return errdefs.Newf(errdefs.KindNotFound, "user not found: %s", user.ID)
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		return b.Put([]byte(user.ID), data)
	})
}

func (s *BoltStore) DeleteUser(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.Delete([]byte(id))
	})
}

// Grant operations
func (s *BoltStore) PutGrant(grant *types.Grant) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrants)
		data, err := json.Marshal(grant)
		if err != nil {
			return err
		}
		return b.Put(grantKey(grant.UserID, grant.HostID), data)
	})
}

func (s *BoltStore) GetGrant(userID, hostID string) (*types.Grant, error) {
	var grant types.Grant
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrants)
		data := b.Get(grantKey(userID, hostID))
		if data == nil {
			return errdefs.Newf(errdefs.KindNotFound, "grant not found: %s on %s", userID, hostID)
		}
		return json.Unmarshal(data, &grant)
	})
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (s *BoltStore) ListGrantsForUser(userID string) ([]*types.Grant, error) {
	var grants []*types.Grant
	prefix := []byte(userID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketGrants).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var grant types.Grant
			if err := json.Unmarshal(v, &grant); err != nil {
				return err
			}
			grants = append(grants, &grant)
		}
		return nil
	})
	return grants, err
}

func (s *BoltStore) DeleteGrant(userID, hostID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketGrants)
		return b.Delete(grantKey(userID, hostID))
	})
}

// Credential operations. Values are always ciphertext; the store never
// sees plaintext credential material.
func (s *BoltStore) PutCredential(cred *types.Credential) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		data, err := json.Marshal(cred)
		if err != nil {
			return err
		}
		return b.Put(credentialKey(cred.HostID, cred.Kind), data)
	})
}

func (s *BoltStore) GetCredentials(hostID string) ([]*types.Credential, error) {
	var creds []*types.Credential
	prefix := []byte(hostID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketCredentials).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var cred types.Credential
			if err := json.Unmarshal(v, &cred); err != nil {
				return err
			}
			creds = append(creds, &cred)
		}
		return nil
	})
	return creds, err
}

func (s *BoltStore) DeleteCredentials(hostID string) error {
	prefix := []byte(hostID + "/")
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		c := b.Cursor()
		var keys [][]byte
		for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

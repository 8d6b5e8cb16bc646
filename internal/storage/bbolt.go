package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/illarion/walletcrypt/internal/keys"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	ConfigBucket    = []byte("config") // Wallet id, version, timestamps
	KeysBucket      = []byte("keys")   // Plaintext key records
	CryptedBucket   = []byte("ckeys")  // Encrypted key records
	WatchOnlyBucket = []byte("watch")  // Watch-only public keys
	MasterKeyBucket = []byte("mkeys")  // Wrapped master key records
	LabelsBucket    = []byte("labels") // Obfuscated key labels
)

var allBuckets = [][]byte{ConfigBucket, KeysBucket, CryptedBucket, WatchOnlyBucket, MasterKeyBucket, LabelsBucket}

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigWalletID = []byte("wallet_id")
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrCorruptRecord = errors.New("corrupt wallet record")
)

// Storage provides BBolt-based storage for a wallet file
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a wallet database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure and wallet id for a new wallet
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}
		if config.Get(ConfigWalletID) == nil {
			if err := config.Put(ConfigWalletID, []byte(uuid.NewString())); err != nil {
				return err
			}
		}

		now, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, now); err != nil {
			return err
		}
		return config.Put(ConfigModified, now)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// WalletID returns the wallet's UUID
func (s *Storage) WalletID() (string, error) {
	var id string
	err := s.db.View(func(tx *bolt.Tx) error {
		config, err := bucket(tx, ConfigBucket)
		if err != nil {
			return err
		}
		data := config.Get(ConfigWalletID)
		if data == nil {
			return fmt.Errorf("wallet_id: %w", ErrNotFound)
		}
		id = string(data)
		return nil
	})
	return id, err
}

// GetCreated retrieves the creation timestamp
func (s *Storage) GetCreated() (time.Time, error) {
	return s.getTime(ConfigCreated)
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	return s.getTime(ConfigModified)
}

func (s *Storage) getTime(key []byte) (time.Time, error) {
	var t time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		config, err := bucket(tx, ConfigBucket)
		if err != nil {
			return err
		}
		data := config.Get(key)
		if data == nil {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return t.UnmarshalBinary(data)
	})
	return t, err
}

// PutKey stores a plaintext key record
func (s *Storage) PutKey(rec KeyRecord) error {
	value, err := encodeKeyValue(rec.PubKey, rec.Secret)
	if err != nil {
		return err
	}
	defer clear(value)

	return s.update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, KeysBucket)
		if err != nil {
			return err
		}
		return b.Put(rec.ID[:], value)
	})
}

// Keys returns all plaintext key records. The caller must wipe the secrets.
func (s *Storage) Keys() ([]KeyRecord, error) {
	var records []KeyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, KeysBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			id, pub, secret, err := decodeKeyValue(k, v)
			if err != nil {
				return err
			}
			records = append(records, KeyRecord{ID: id, PubKey: pub, Secret: secret})
			return nil
		})
	})
	if err != nil {
		for _, rec := range records {
			clear(rec.Secret)
		}
		return nil, err
	}
	return records, nil
}

// PutCryptedKey stores an encrypted key record
func (s *Storage) PutCryptedKey(rec CryptedKeyRecord) error {
	value, err := encodeKeyValue(rec.PubKey, rec.Ciphertext)
	if err != nil {
		return err
	}

	return s.update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, CryptedBucket)
		if err != nil {
			return err
		}
		return b.Put(rec.ID[:], value)
	})
}

// CryptedKeys returns all encrypted key records
func (s *Storage) CryptedKeys() ([]CryptedKeyRecord, error) {
	var records []CryptedKeyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, CryptedBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			id, pub, ct, err := decodeKeyValue(k, v)
			if err != nil {
				return err
			}
			records = append(records, CryptedKeyRecord{ID: id, PubKey: pub, Ciphertext: ct})
			return nil
		})
	})
	return records, err
}

// PutWatchOnly stores a watch-only public key
func (s *Storage) PutWatchOnly(pub keys.PubKey) error {
	id := pub.ID()
	return s.update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, WatchOnlyBucket)
		if err != nil {
			return err
		}
		return b.Put(id[:], pub)
	})
}

// WatchOnly returns all watch-only public keys
func (s *Storage) WatchOnly() ([]keys.PubKey, error) {
	var pubs []keys.PubKey
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, WatchOnlyBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			pub := keys.PubKey(append([]byte(nil), v...))
			id := pub.ID()
			if string(id[:]) != string(k) {
				return fmt.Errorf("%w: watch-only key does not hash to %x", ErrCorruptRecord, k)
			}
			pubs = append(pubs, pub)
			return nil
		})
	})
	return pubs, err
}

// MasterKeys returns all master key records
func (s *Storage) MasterKeys() ([]MasterKeyRecord, error) {
	var records []MasterKeyRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, MasterKeyBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			if len(k) != 4 {
				return fmt.Errorf("%w: master key id length %d", ErrCorruptRecord, len(k))
			}
			rec, err := decodeMasterKey(binary.BigEndian.Uint32(k), v)
			if err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// UpdateMasterKey overwrites an existing master key record
func (s *Storage) UpdateMasterKey(rec MasterKeyRecord) error {
	data, err := encodeMasterKey(rec)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, MasterKeyBucket)
		if err != nil {
			return err
		}
		k := masterKeyID(rec.ID)
		if b.Get(k) == nil {
			return fmt.Errorf("master key %d: %w", rec.ID, ErrNotFound)
		}
		return b.Put(k, data)
	})
}

// IsEncrypted reports whether the wallet has a master key record
func (s *Storage) IsEncrypted() (bool, error) {
	var encrypted bool
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MasterKeyBucket)
		if b == nil {
			return nil
		}
		k, _ := b.Cursor().First()
		encrypted = k != nil
		return nil
	})
	return encrypted, err
}

// CommitEncryption writes the master key record and every encrypted key,
// then drops all plaintext keys, in one transaction. It returns the id
// assigned to the master key record.
func (s *Storage) CommitEncryption(mk MasterKeyRecord, crypted []CryptedKeyRecord) (uint32, error) {
	var id uint32
	err := s.update(func(tx *bolt.Tx) error {
		mkeys, err := bucket(tx, MasterKeyBucket)
		if err != nil {
			return err
		}
		seq, err := mkeys.NextSequence()
		if err != nil {
			return err
		}
		id = uint32(seq)
		mk.ID = id

		data, err := encodeMasterKey(mk)
		if err != nil {
			return err
		}
		if err := mkeys.Put(masterKeyID(id), data); err != nil {
			return err
		}

		ckeys, err := bucket(tx, CryptedBucket)
		if err != nil {
			return err
		}
		for _, rec := range crypted {
			value, err := encodeKeyValue(rec.PubKey, rec.Ciphertext)
			if err != nil {
				return err
			}
			if err := ckeys.Put(rec.ID[:], value); err != nil {
				return err
			}
		}

		if err := tx.DeleteBucket(KeysBucket); err != nil {
			return fmt.Errorf("failed to drop plaintext keys: %w", err)
		}
		_, err = tx.CreateBucket(KeysBucket)
		return err
	})
	return id, err
}

// PutLabel stores an obfuscated label for a key
func (s *Storage) PutLabel(id keys.KeyID, data []byte) error {
	return s.update(func(tx *bolt.Tx) error {
		b, err := bucket(tx, LabelsBucket)
		if err != nil {
			return err
		}
		return b.Put(id[:], data)
	})
}

// GetLabel retrieves the obfuscated label for a key
func (s *Storage) GetLabel(id keys.KeyID) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, LabelsBucket)
		if err != nil {
			return err
		}
		v := b.Get(id[:])
		if v == nil {
			return fmt.Errorf("label for %s: %w", id, ErrNotFound)
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

// Labels returns every stored label keyed by key id
func (s *Storage) Labels() (map[keys.KeyID][]byte, error) {
	labels := make(map[keys.KeyID][]byte)
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx, LabelsBucket)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var id keys.KeyID
			if len(k) != len(id) {
				return fmt.Errorf("%w: label key length %d", ErrCorruptRecord, len(k))
			}
			copy(id[:], k)
			labels[id] = append([]byte(nil), v...)
			return nil
		})
	})
	return labels, err
}

// update runs fn in a write transaction and bumps the modified timestamp
func (s *Storage) update(fn func(tx *bolt.Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		config, err := bucket(tx, ConfigBucket)
		if err != nil {
			return err
		}
		modified, _ := time.Now().MarshalBinary()
		return config.Put(ConfigModified, modified)
	})
}

func bucket(tx *bolt.Tx, name []byte) (*bolt.Bucket, error) {
	b := tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("%s bucket not found", name)
	}
	return b, nil
}

func masterKeyID(id uint32) []byte {
	k := make([]byte, 4)
	binary.BigEndian.PutUint32(k, id)
	return k
}

// Compact creates a compacted copy of the database, removing unused space.
// Run after CommitEncryption so freed pages holding plaintext secrets are
// not carried over.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				if err := dstBucket.SetSequence(srcBucket.Sequence()); err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})

	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	if err := replaceFile(srcPath, tmpPath); err != nil {
		os.Remove(tmpPath)
		return errors.Join(err, s.reopen(srcPath))
	}
	return s.reopen(srcPath)
}

// rename is swapped out in tests.
var rename = os.Rename

// replaceFile moves tmpPath over srcPath, keeping srcPath in place on failure.
func replaceFile(srcPath, tmpPath string) error {
	backupPath := srcPath + ".backup"
	if err := rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)
	return nil
}

func (s *Storage) reopen(path string) error {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	s.db = db
	return nil
}

package storage

import (
	"encoding/json"
	"fmt"

	"github.com/illarion/walletcrypt/internal/keys"
)

// KeyRecord is a plaintext key as stored in the keys bucket.
type KeyRecord struct {
	ID     keys.KeyID
	PubKey keys.PubKey
	Secret []byte
}

// CryptedKeyRecord is an encrypted key as stored in the ckeys bucket.
type CryptedKeyRecord struct {
	ID         keys.KeyID
	PubKey     keys.PubKey
	Ciphertext []byte
}

// MasterKeyRecord holds the wallet master key wrapped under a
// passphrase-derived key, together with the derivation parameters.
type MasterKeyRecord struct {
	ID         uint32 `json:"-"`
	CryptedKey []byte `json:"crypted_key"`
	Salt       []byte `json:"salt"`
	Method     uint32 `json:"method"`
	Rounds     uint32 `json:"rounds"`
}

// Values in the keys and ckeys buckets are a one-byte public key length,
// the public key, then the secret or ciphertext.
func encodeKeyValue(pub keys.PubKey, payload []byte) ([]byte, error) {
	if len(pub) == 0 || len(pub) > 0xff {
		return nil, fmt.Errorf("%w: public key length %d", ErrCorruptRecord, len(pub))
	}
	v := make([]byte, 0, 1+len(pub)+len(payload))
	v = append(v, byte(len(pub)))
	v = append(v, pub...)
	v = append(v, payload...)
	return v, nil
}

// decodeKeyValue copies out of v, which is only valid inside a transaction.
func decodeKeyValue(k, v []byte) (keys.KeyID, keys.PubKey, []byte, error) {
	var id keys.KeyID
	if len(k) != len(id) {
		return id, nil, nil, fmt.Errorf("%w: key id length %d", ErrCorruptRecord, len(k))
	}
	copy(id[:], k)

	if len(v) < 1 || len(v) < 1+int(v[0]) {
		return id, nil, nil, fmt.Errorf("%w: truncated record for %s", ErrCorruptRecord, id)
	}
	n := int(v[0])
	pub := keys.PubKey(append([]byte(nil), v[1:1+n]...))
	payload := append([]byte(nil), v[1+n:]...)

	if pub.ID() != id {
		return id, nil, nil, fmt.Errorf("%w: public key does not hash to %s", ErrCorruptRecord, id)
	}
	return id, pub, payload, nil
}

func encodeMasterKey(rec MasterKeyRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func decodeMasterKey(id uint32, data []byte) (MasterKeyRecord, error) {
	var rec MasterKeyRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("%w: master key %d: %v", ErrCorruptRecord, id, err)
	}
	rec.ID = id
	return rec, nil
}

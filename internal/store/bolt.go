package store

import (
	"time"

	"github.com/go-errors/errors"
	"github.com/go-logr/logr"
	"go.etcd.io/bbolt"
)

var (
	wifiBucket = []byte("roo/wifi")
	enabledKey = []byte("enabled")
	ssidKey    = []byte("ssid")
)

// BoltStore keeps settings in a single bbolt bucket. Passwords are keyed by
// a hash of the SSID, so SSIDs cannot be listed.
type BoltStore struct {
	*bbolt.DB
	log logr.Logger
}

// OpenBolt opens (creating if needed) the database at path.
func OpenBolt(log logr.Logger, path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Errorf("Could not open bolt database: %v", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(wifiBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Errorf("Could not create bucket: %v", err)
	}

	return &BoltStore{DB: db, log: log.WithName("BoltStore")}, nil
}

func (s *BoltStore) get(key []byte) ([]byte, error) {
	var value []byte
	err := s.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(wifiBucket)
		if bucket == nil {
			return nil
		}
		if v := bucket.Get(key); v != nil {
			value = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.New(err)
	}
	return value, nil
}

func (s *BoltStore) put(key, value []byte) error {
	err := s.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(wifiBucket)
		if err != nil {
			return err
		}
		return bucket.Put(key, value)
	})
	if err != nil {
		return errors.Errorf("Could not write %s: %v", key, err)
	}
	return nil
}

func (s *BoltStore) delete(key []byte) error {
	err := s.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(wifiBucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(key)
	})
	if err != nil {
		return errors.Errorf("Could not delete %s: %v", key, err)
	}
	return nil
}

func (s *BoltStore) Enabled() (bool, error) {
	v, err := s.get(enabledKey)
	if err != nil {
		return false, err
	}
	return len(v) == 1 && v[0] == 1, nil
}

func (s *BoltStore) SetEnabled(enabled bool) error {
	v := []byte{0}
	if enabled {
		v[0] = 1
	}
	return s.put(enabledKey, v)
}

func (s *BoltStore) DefaultSSID() (string, error) {
	v, err := s.get(ssidKey)
	return string(v), err
}

func (s *BoltStore) SetDefaultSSID(ssid string) error {
	return s.put(ssidKey, []byte(ssid))
}

func (s *BoltStore) ClearDefaultSSID() error {
	return s.delete(ssidKey)
}

func (s *BoltStore) Password(ssid string) (string, bool, error) {
	v, err := s.get([]byte(PasswordKey(ssid)))
	if err != nil || v == nil {
		return "", false, err
	}
	return string(v), true, nil
}

func (s *BoltStore) SetPassword(ssid, password string) error {
	return s.put([]byte(PasswordKey(ssid)), []byte(password))
}

func (s *BoltStore) ClearPassword(ssid string) error {
	return s.delete([]byte(PasswordKey(ssid)))
}

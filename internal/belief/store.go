package belief

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bbolt "go.etcd.io/bbolt"
	bberrors "go.etcd.io/bbolt/errors"

	"github.com/positivef/udo-sync/internal/domain"
)

var (
	bucketBeliefs  = []byte("beliefs")
	bucketProfiles = []byte("profiles")
)

// ErrNotFound is returned by Store.Load when no prior snapshot exists.
var ErrNotFound = errors.New("belief: no persisted snapshot")

// Store persists a Tracker's belief state to a bbolt database at
// <state_dir>/bayesian/<project>.json (spec.md §6). Each project has its own
// file; within it, entries are keyed by phase and dimension.
type Store struct {
	db *bbolt.DB
}

// OpenStore opens (or creates) a bbolt database at path and ensures its
// buckets exist.
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(ensureBuckets); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureBuckets(tx *bbolt.Tx) error {
	if _, err := tx.CreateBucketIfNotExists(bucketBeliefs); err != nil {
		return err
	}
	if _, err := tx.CreateBucketIfNotExists(bucketProfiles); err != nil {
		return err
	}
	return nil
}

// Close releases the underlying database file.
func (s *Store) Close() error { return s.db.Close() }

type beliefRecord struct {
	Alpha        float64   `json:"alpha"`
	Beta         float64   `json:"beta"`
	Observations int       `json:"observations"`
	LastUpdated  time.Time `json:"last_updated"`
}

type profileRecord struct {
	Errors []float64 `json:"errors"`
}

// Save writes a full snapshot of beliefs and profiles, replacing any prior
// content, in a single write transaction.
func (s *Store) Save(beliefs map[domain.Phase]map[domain.Dimension]domain.Belief, profiles map[domain.Phase]domain.BiasProfile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bb := tx.Bucket(bucketBeliefs)
		for phase, dims := range beliefs {
			for dim, b := range dims {
				rec := beliefRecord{Alpha: b.Alpha, Beta: b.Beta, Observations: b.Observations, LastUpdated: b.LastUpdated}
				raw, err := json.Marshal(rec)
				if err != nil {
					return fmt.Errorf("belief: encode (%s,%s): %w", phase, dim, err)
				}
				if err := bb.Put(beliefKey(phase, dim), raw); err != nil {
					return err
				}
			}
		}

		pb := tx.Bucket(bucketProfiles)
		for phase, profile := range profiles {
			raw, err := json.Marshal(profileRecord{Errors: profile.Errors})
			if err != nil {
				return fmt.Errorf("belief: encode profile (%s): %w", phase, err)
			}
			if err := pb.Put([]byte(phase), raw); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads a full snapshot. Reload is idempotent: calling Load twice
// without an intervening Save returns byte-identical results.
func (s *Store) Load() (map[domain.Phase]map[domain.Dimension]domain.Belief, map[domain.Phase]domain.BiasProfile, error) {
	beliefs := make(map[domain.Phase]map[domain.Dimension]domain.Belief)
	profiles := make(map[domain.Phase]domain.BiasProfile)

	err := s.db.View(func(tx *bbolt.Tx) error {
		bb := tx.Bucket(bucketBeliefs)
		if bb == nil {
			return bberrors.ErrBucketNotFound
		}
		if err := bb.ForEach(func(k, v []byte) error {
			phase, dim, err := splitBeliefKey(k)
			if err != nil {
				return nil // skip malformed keys rather than fail the whole load
			}
			var rec beliefRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			if beliefs[phase] == nil {
				beliefs[phase] = make(map[domain.Dimension]domain.Belief)
			}
			beliefs[phase][dim] = domain.Belief{
				Phase: phase, Dimension: dim,
				Alpha: rec.Alpha, Beta: rec.Beta,
				Observations: rec.Observations, LastUpdated: rec.LastUpdated,
			}
			return nil
		}); err != nil {
			return err
		}

		pb := tx.Bucket(bucketProfiles)
		if pb == nil {
			return bberrors.ErrBucketNotFound
		}
		return pb.ForEach(func(k, v []byte) error {
			var rec profileRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return nil
			}
			phase := domain.Phase(k)
			profiles[phase] = domain.BiasProfile{Phase: phase, Errors: rec.Errors}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, bberrors.ErrBucketNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	if len(beliefs) == 0 && len(profiles) == 0 {
		return nil, nil, ErrNotFound
	}
	return beliefs, profiles, nil
}

func beliefKey(phase domain.Phase, dim domain.Dimension) []byte {
	return []byte(string(phase) + "\x00" + string(dim))
}

func splitBeliefKey(k []byte) (domain.Phase, domain.Dimension, error) {
	for i, b := range k {
		if b == 0 {
			return domain.Phase(k[:i]), domain.Dimension(k[i+1:]), nil
		}
	}
	return "", "", fmt.Errorf("belief: malformed key %q", k)
}

// Package bolt provides a bbolt-backed cartsync.Store, the pure-Go
// alternative to the sqlite backend for builds without cgo. Records are
// stored as JSON values; pending actions are keyed by their ULID so bucket
// order is queue order.
package bolt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	cartsync "github.com/c0deZ3R0/go-cart-sync"
	"github.com/c0deZ3R0/go-cart-sync/entity"
	syncErrors "github.com/c0deZ3R0/go-cart-sync/errors"
)

var (
	bucketLists      = []byte("lists")
	bucketItems      = []byte("items")
	bucketCategories = []byte("categories")
	bucketActions    = []byte("actions")
	bucketMeta       = []byte("meta")

	metaKey = []byte("sync")
)

const (
	opOpen    syncErrors.Operation = "bolt.Open"
	opLists   syncErrors.Operation = "bolt.Lists"
	opItems   syncErrors.Operation = "bolt.Items"
	opCats    syncErrors.Operation = "bolt.Categories"
	opActions syncErrors.Operation = "bolt.Actions"
	opMeta    syncErrors.Operation = "bolt.Meta"
)

// Store implements cartsync.Store on a single bbolt file.
type Store struct {
	db *bbolt.DB
}

var _ cartsync.Store = (*Store)(nil)

// New opens (or creates) the database file and initializes the buckets.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, storageErr(opOpen, fmt.Errorf("failed to open boltdb: %w", err))
	}

	store := &Store{db: db}
	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, storageErr(opOpen, err)
	}
	return store, nil
}

func (s *Store) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketLists, bucketItems, bucketCategories, bucketActions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// Close closes the database file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func storageErr(op syncErrors.Operation, err error) error {
	e := syncErrors.NewStorageError(op, err)
	e.Component = "storage/bolt"
	return e
}

func (s *Store) GetList(ctx context.Context, id string) (*entity.ListWithCounts, error) {
	var list *entity.ListWithCounts
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketLists).Get([]byte(id))
		if data == nil {
			return nil
		}
		list = &entity.ListWithCounts{}
		return json.Unmarshal(data, list)
	})
	if err != nil {
		return nil, storageErr(opLists, err)
	}
	return list, nil
}

func (s *Store) SetList(ctx context.Context, list *entity.ListWithCounts) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(list)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketLists).Put([]byte(list.ID), data)
	})
	if err != nil {
		return storageErr(opLists, err)
	}
	return nil
}

func (s *Store) DeleteList(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketLists).Delete([]byte(id)); err != nil {
			return err
		}
		return deleteListItems(tx, id)
	})
	if err != nil {
		return storageErr(opLists, err)
	}
	return nil
}

func (s *Store) Lists(ctx context.Context) ([]entity.ListWithCounts, error) {
	var lists []entity.ListWithCounts
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketLists).ForEach(func(k, v []byte) error {
			var l entity.ListWithCounts
			if err := json.Unmarshal(v, &l); err != nil {
				return err
			}
			lists = append(lists, l)
			return nil
		})
	})
	if err != nil {
		return nil, storageErr(opLists, err)
	}
	sort.Slice(lists, func(i, j int) bool {
		if lists[i].CreatedAt != lists[j].CreatedAt {
			return lists[i].CreatedAt < lists[j].CreatedAt
		}
		return lists[i].ID < lists[j].ID
	})
	return lists, nil
}

func (s *Store) ReplaceLists(ctx context.Context, lists []entity.ListWithCounts) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := clearBucket(tx, bucketLists); err != nil {
			return err
		}
		bucket := tx.Bucket(bucketLists)
		for i := range lists {
			data, err := json.Marshal(&lists[i])
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(lists[i].ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageErr(opLists, err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, id string) (*entity.Item, error) {
	var item *entity.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketItems).Get([]byte(id))
		if data == nil {
			return nil
		}
		item = &entity.Item{}
		return json.Unmarshal(data, item)
	})
	if err != nil {
		return nil, storageErr(opItems, err)
	}
	return item, nil
}

func (s *Store) SetItem(ctx context.Context, item *entity.Item) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketItems).Put([]byte(item.ID), data)
	})
	if err != nil {
		return storageErr(opItems, err)
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).Delete([]byte(id))
	})
	if err != nil {
		return storageErr(opItems, err)
	}
	return nil
}

func (s *Store) ItemsByList(ctx context.Context, listID string) ([]entity.Item, error) {
	var items []entity.Item
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketItems).ForEach(func(k, v []byte) error {
			var it entity.Item
			if err := json.Unmarshal(v, &it); err != nil {
				return err
			}
			if it.ListID == listID {
				items = append(items, it)
			}
			return nil
		})
	})
	if err != nil {
		return nil, storageErr(opItems, err)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (s *Store) ReplaceListItems(ctx context.Context, listID string, items []entity.Item) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := deleteListItems(tx, listID); err != nil {
			return err
		}
		bucket := tx.Bucket(bucketItems)
		for i := range items {
			items[i].ListID = listID
			data, err := json.Marshal(&items[i])
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(items[i].ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageErr(opItems, err)
	}
	return nil
}

func (s *Store) Categories(ctx context.Context) ([]entity.Category, error) {
	var categories []entity.Category
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCategories).ForEach(func(k, v []byte) error {
			var c entity.Category
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			categories = append(categories, c)
			return nil
		})
	})
	if err != nil {
		return nil, storageErr(opCats, err)
	}
	sort.Slice(categories, func(i, j int) bool {
		if categories[i].SortOrder != categories[j].SortOrder {
			return categories[i].SortOrder < categories[j].SortOrder
		}
		return categories[i].ID < categories[j].ID
	})
	return categories, nil
}

func (s *Store) ReplaceCategories(ctx context.Context, categories []entity.Category) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := clearBucket(tx, bucketCategories); err != nil {
			return err
		}
		bucket := tx.Bucket(bucketCategories)
		for i := range categories {
			data, err := json.Marshal(&categories[i])
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(categories[i].ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storageErr(opCats, err)
	}
	return nil
}

func (s *Store) RecomputeListAggregates(ctx context.Context, listID string) error {
	items, err := s.ItemsByList(ctx, listID)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLists)
		data := bucket.Get([]byte(listID))
		if data == nil {
			return nil
		}
		var list entity.ListWithCounts
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		entity.ComputeAggregates(items).Apply(&list)
		updated, err := json.Marshal(&list)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(listID), updated)
	})
	if err != nil {
		return storageErr(opLists, err)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, action *cartsync.PendingAction) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(action)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketActions).Put([]byte(action.ID), data)
	})
	if err != nil {
		return storageErr(opActions, err)
	}
	return nil
}

func (s *Store) Pending(ctx context.Context) ([]cartsync.PendingAction, error) {
	var actions []cartsync.PendingAction
	err := s.db.View(func(tx *bbolt.Tx) error {
		// Keys are ULIDs, so cursor order is enqueue order.
		return tx.Bucket(bucketActions).ForEach(func(k, v []byte) error {
			var a cartsync.PendingAction
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			actions = append(actions, a)
			return nil
		})
	})
	if err != nil {
		return nil, storageErr(opActions, err)
	}
	return actions, nil
}

func (s *Store) Update(ctx context.Context, action *cartsync.PendingAction) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketActions)
		if bucket.Get([]byte(action.ID)) == nil {
			return fmt.Errorf("action %s not found", action.ID)
		}
		data, err := json.Marshal(action)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(action.ID), data)
	})
	if err != nil {
		return storageErr(opActions, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketActions).Delete([]byte(id))
	})
	if err != nil {
		return storageErr(opActions, err)
	}
	return nil
}

func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketActions).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, storageErr(opActions, err)
	}
	return count, nil
}

func (s *Store) LoadMeta(ctx context.Context) (*cartsync.SyncMeta, error) {
	var meta *cartsync.SyncMeta
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(metaKey)
		if data == nil {
			return nil
		}
		meta = &cartsync.SyncMeta{}
		return json.Unmarshal(data, meta)
	})
	if err != nil {
		return nil, storageErr(opMeta, err)
	}
	return meta, nil
}

func (s *Store) SaveMeta(ctx context.Context, meta *cartsync.SyncMeta) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(metaKey, data)
	})
	if err != nil {
		return storageErr(opMeta, err)
	}
	return nil
}

func clearBucket(tx *bbolt.Tx, name []byte) error {
	if err := tx.DeleteBucket(name); err != nil {
		return err
	}
	_, err := tx.CreateBucket(name)
	return err
}

func deleteListItems(tx *bbolt.Tx, listID string) error {
	bucket := tx.Bucket(bucketItems)
	var stale [][]byte
	err := bucket.ForEach(func(k, v []byte) error {
		var it entity.Item
		if err := json.Unmarshal(v, &it); err != nil {
			return err
		}
		if it.ListID == listID {
			stale = append(stale, bytes.Clone(k))
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range stale {
		if err := bucket.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

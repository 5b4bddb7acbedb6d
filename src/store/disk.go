package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/peterbourgon/diskv/v3"
)

const defaultDirMode = 0o755

// DiskConfig is the input configuration for disk storage of pastes.
type DiskConfig struct {
	// DataDir must be a writable directory for storing pastes and users.
	DataDir string
	// How much memory to use for k/v caches. This is x3 (3 caches).
	CacheSize uint64
	// The file mode given to new folders. Uses a sane default if omitted.
	DirMode os.FileMode
}

// DiskStore keeps every paste and user in its own file. It is the
// single-user, no-database option: a folder on the local disk is all it needs.
type DiskStore struct {
	users      *diskv.Diskv
	pastes     *diskv.Diskv
	userPastes *diskv.Diskv
	pasteCount int64
	userCount  int64
	sync.RWMutex
}

// Fail if the struct does not match the Interface.
var _ = Interface(&DiskStore{})

// NewDiskStorage should be called once on startup to initialize a disk storage backend for pastes.
func NewDiskStorage(config DiskConfig) (*DiskStore, error) {
	if err := makeDiskStorageFolders(&config); err != nil {
		return nil, err
	}

	store := &DiskStore{
		users: diskv.New(diskv.Options{
			BasePath:     filepath.Join(config.DataDir, "users"),
			CacheSizeMax: config.CacheSize,
		}),
		pastes: diskv.New(diskv.Options{
			BasePath:     filepath.Join(config.DataDir, "pastes"),
			CacheSizeMax: config.CacheSize,
		}),
		userPastes: diskv.New(diskv.Options{
			BasePath:     filepath.Join(config.DataDir, "user_pastes"),
			CacheSizeMax: config.CacheSize,
		}),
	}
	store.fillCounts()

	return store, nil
}

func makeDiskStorageFolders(config *DiskConfig) error {
	if config.DirMode == 0 {
		config.DirMode = defaultDirMode
	}

	dirStat, err := os.Stat(config.DataDir)
	if err != nil {
		return fmt.Errorf("data dir missing? %w", err)
	}

	if !dirStat.IsDir() {
		return fmt.Errorf("data dir is not a directory: %s", dirStat.Name())
	}

	// users stores user info only, pastes stores all paste rows and
	// user_pastes keeps a set of paste IDs for every user so that we do not
	// have to iterate every paste to get a user's list.
	for _, sub := range []string{"users", "pastes", "user_pastes"} {
		if err := os.MkdirAll(filepath.Join(config.DataDir, sub), config.DirMode); err != nil {
			return fmt.Errorf("creating %s data store: %w", sub, err)
		}
	}

	return nil
}

// Totals return total counts for pastes and users.
func (f *DiskStore) Totals(_ context.Context) (int64, int64, error) {
	f.RLock()
	defer f.RUnlock()

	return f.pasteCount, f.userCount, nil
}

// Create writes a new paste and adds it to the owner's index.
func (f *DiskStore) Create(_ context.Context, paste Paste) (Paste, error) {
	if paste.ID == "" || paste.UserID == "" {
		return Paste{}, fmt.Errorf("disk.Create: %w", ErrNoID)
	}

	f.Lock()
	defer f.Unlock()

	if f.pastes.Has(paste.ID) {
		return Paste{}, fmt.Errorf("disk.Create: paste [%s] already exists", paste.ID)
	}
	if err := f.saveToDisk(f.pastes, paste.ID, &paste); err != nil {
		return Paste{}, fmt.Errorf("disk.Create: %w", err)
	}
	if err := f.writeUserPaste(paste); err != nil {
		return Paste{}, fmt.Errorf("disk.Create: writing user-paste: %w", err)
	}
	f.pasteCount++

	return paste, nil
}

func (f *DiskStore) writeUserPaste(paste Paste) error {
	pasteList := make(map[string]struct{})
	_ = f.getFromDisk(f.userPastes, paste.UserID, &pasteList)
	pasteList[paste.ID] = struct{}{}

	return f.saveToDisk(f.userPastes, paste.UserID, &pasteList)
}

// Get paste by id if it belongs to the owner.
func (f *DiskStore) Get(_ context.Context, id, owner string) (Paste, error) {
	f.RLock()
	defer f.RUnlock()

	return f.get(id, owner)
}

func (f *DiskStore) get(id, owner string) (Paste, error) {
	if id == "" || !f.pastes.Has(id) {
		return Paste{}, fmt.Errorf("disk.Get: %w", ErrNotFound)
	}
	var paste Paste
	if err := f.getFromDisk(f.pastes, id, &paste); err != nil {
		return Paste{}, fmt.Errorf("disk.Get: %w", err)
	}
	if !owns(paste, owner) {
		return Paste{}, fmt.Errorf("disk.Get: %w", ErrNotFound)
	}

	return paste, nil
}

// Update overwrites an existing paste of the same owner.
func (f *DiskStore) Update(_ context.Context, paste Paste) (Paste, error) {
	f.Lock()
	defer f.Unlock()

	if _, err := f.get(paste.ID, paste.UserID); err != nil {
		return Paste{}, fmt.Errorf("disk.Update: %w", err)
	}
	if err := f.saveToDisk(f.pastes, paste.ID, &paste); err != nil {
		return Paste{}, fmt.Errorf("disk.Update: %w", err)
	}

	return paste, nil
}

// Delete paste by id.
func (f *DiskStore) Delete(_ context.Context, id, owner string) error {
	f.Lock()
	defer f.Unlock()

	paste, err := f.get(id, owner)
	if err != nil {
		return fmt.Errorf("disk.Delete: %w", err)
	}
	if err := f.pastes.Erase(paste.ID); err != nil {
		return fmt.Errorf("disk.Delete: %w", err)
	}
	f.pasteCount--

	ikeys := make(map[string]struct{})
	if err := f.getFromDisk(f.userPastes, paste.UserID, &ikeys); err != nil {
		return fmt.Errorf("disk.Delete (user-paste): %w", err)
	}
	delete(ikeys, paste.ID)
	if err := f.saveToDisk(f.userPastes, paste.UserID, &ikeys); err != nil {
		return fmt.Errorf("disk.Delete (save user-paste): %w", err)
	}

	return nil
}

// Find pastes of a user.
func (f *DiskStore) Find(_ context.Context, req FindRequest) ([]Paste, error) {
	pastes := []Paste{}
	if req.UserID == "" {
		return pastes, nil
	}

	f.RLock()
	defer f.RUnlock()

	ikeys := make(map[string]struct{})
	if err := f.getFromDisk(f.userPastes, req.UserID, &ikeys); err != nil {
		return pastes, nil //nolint:nilerr // user has no pastes, do not return an error
	}

	for key := range ikeys {
		var paste Paste
		if err := f.getFromDisk(f.pastes, key, &paste); err != nil {
			return nil, fmt.Errorf("disk.Find: %w", err)
		}
		pastes = append(pastes, paste)
	}
	sortPastes(req, pastes)

	return limitPastes(req, pastes), nil
}

// Count return pastes count for a user.
func (f *DiskStore) Count(_ context.Context, req FindRequest) (int64, error) {
	f.RLock()
	defer f.RUnlock()

	pasteList := make(map[string]struct{})
	if err := f.getFromDisk(f.userPastes, req.UserID, &pasteList); err != nil {
		return 0, nil //nolint:nilerr // no index means no pastes
	}

	return int64(len(pasteList)), nil
}

// SaveUser creates or updates a user.
func (f *DiskStore) SaveUser(_ context.Context, user User) (string, error) {
	if user.ID == "" {
		return "", fmt.Errorf("disk.SaveUser: %w", ErrNoUserID)
	}
	f.Lock()
	defer f.Unlock()

	exists := f.users.Has(user.ID)
	if err := f.saveToDisk(f.users, user.ID, &user); err != nil {
		return "", fmt.Errorf("disk.SaveUser: %w", err)
	}
	if !exists {
		f.userCount++
	}

	return user.ID, nil
}

// CreateUser stores a new user, it fails with ErrUserExists if the id is
// already taken.
func (f *DiskStore) CreateUser(_ context.Context, user User) error {
	if user.ID == "" {
		return fmt.Errorf("disk.CreateUser: %w", ErrNoUserID)
	}
	f.Lock()
	defer f.Unlock()

	if f.users.Has(user.ID) {
		return fmt.Errorf("disk.CreateUser: %w", ErrUserExists)
	}
	if err := f.saveToDisk(f.users, user.ID, &user); err != nil {
		return fmt.Errorf("disk.CreateUser: %w", err)
	}
	f.userCount++

	return nil
}

// User returns a user by id.
func (f *DiskStore) User(_ context.Context, userID string) (User, error) {
	var user User
	if userID == "" || !f.users.Has(userID) {
		return user, fmt.Errorf("disk.User: %w", ErrUserNotFound)
	}
	if err := f.getFromDisk(f.users, userID, &user); err != nil {
		return user, fmt.Errorf("disk.User: %w", err)
	}

	return user, nil
}

// Close is a no-op, every write is synced to disk.
func (f *DiskStore) Close() error {
	return nil
}

// fillCounts stores the user and paste counts in memory.
// This should only run once on startup.
func (f *DiskStore) fillCounts() {
	f.Lock()
	defer f.Unlock()

	for range f.users.Keys(nil) {
		f.userCount++
	}
	for range f.pastes.Keys(nil) {
		f.pasteCount++
	}
}

func (f *DiskStore) saveToDisk(disk *diskv.Diskv, storeID string, data interface{}) error {
	var (
		buf bytes.Buffer
		enc = gob.NewEncoder(&buf)
	)

	if err := enc.Encode(data); err != nil {
		return fmt.Errorf("encoding buffer: %w", err)
	}

	if err := disk.WriteStream(storeID, &buf, true); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}

	return nil
}

func (f *DiskStore) getFromDisk(disk *diskv.Diskv, storeID string, data interface{}) error {
	if storeID == "" {
		return errors.New("reading storage: empty id")
	}
	buf, err := disk.ReadStream(storeID, true)
	if err != nil {
		return fmt.Errorf("reading storage (id:%s): %w", storeID, err)
	}
	defer buf.Close()

	if err := gob.NewDecoder(buf).Decode(data); err != nil {
		return fmt.Errorf("decoding storage buffer: %w", err)
	}

	return nil
}

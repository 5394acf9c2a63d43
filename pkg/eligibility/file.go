package eligibility

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/capiscio/pledge-core/pkg/crypto"
	"gopkg.in/yaml.v3"
)

// allowList is the on-disk format of a FileOracle.
//
//	accounts:
//	  - 0x2c7536e3605d9c16a7a3d7b1898e529396a65c23
type allowList struct {
	Accounts []crypto.Address `yaml:"accounts"`
}

// FileOracle reads the eligible set from a YAML allow-list. The file is
// re-read whenever its modification time or size changes.
type FileOracle struct {
	path string

	mu      sync.Mutex
	set     *SetOracle
	modTime time.Time
	size    int64
}

// NewFileOracle creates a FileOracle and performs the initial load.
func NewFileOracle(path string) (*FileOracle, error) {
	o := &FileOracle{path: path, set: NewSetOracle()}
	if err := o.refresh(); err != nil {
		return nil, err
	}
	return o, nil
}

// IsEligible implements Oracle.
func (o *FileOracle) IsEligible(ctx context.Context, account crypto.Address) (bool, error) {
	if err := o.refresh(); err != nil {
		return false, err
	}
	return o.set.IsEligible(ctx, account)
}

// Len returns the size of the currently loaded set.
func (o *FileOracle) Len() int {
	return o.set.Len()
}

func (o *FileOracle) refresh() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	info, err := os.Stat(o.path)
	if err != nil {
		return fmt.Errorf("failed to stat allow-list: %w", err)
	}
	if info.ModTime().Equal(o.modTime) && info.Size() == o.size {
		return nil
	}

	data, err := os.ReadFile(o.path)
	if err != nil {
		return fmt.Errorf("failed to read allow-list: %w", err)
	}
	var list allowList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse allow-list: %w", err)
	}

	o.set.Replace(list.Accounts)
	o.modTime = info.ModTime()
	o.size = info.Size()
	return nil
}

// WriteAllowList writes accounts to path in the FileOracle format.
func WriteAllowList(path string, accounts []crypto.Address) error {
	data, err := yaml.Marshal(allowList{Accounts: accounts})
	if err != nil {
		return fmt.Errorf("failed to marshal allow-list: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write allow-list: %w", err)
	}
	return nil
}

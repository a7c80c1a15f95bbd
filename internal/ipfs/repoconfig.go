package ipfs

import (
	"encoding/json"
	"os"
	"path/filepath"

	"planet/internal/services"
)

// RepoConfigFile is the daemon configuration inside the repository.
const RepoConfigFile = "config"

// ReadRepoAddresses reads the API and gateway listeners from the on-disk
// repository configuration.
func ReadRepoAddresses(repoPath string) (Addresses, error) {
	data, err := os.ReadFile(filepath.Join(repoPath, RepoConfigFile))
	if err != nil {
		return Addresses{}, err
	}
	var doc struct {
		Addresses struct {
			API     multiString `json:"API"`
			Gateway multiString `json:"Gateway"`
		} `json:"Addresses"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return Addresses{}, services.Wrap(services.ErrDecode, "ipfs", "repo config", "decode", err)
	}
	return Addresses{API: doc.Addresses.API, Gateway: doc.Addresses.Gateway}, nil
}

// Ports returns the first API and gateway listener ports. ok is false when
// either is missing or unparsable.
func (a Addresses) Ports() (api, gateway uint16, ok bool) {
	if len(a.API) == 0 || len(a.Gateway) == 0 {
		return 0, 0, false
	}
	api, err := PortFromMultiaddr(a.API[0])
	if err != nil {
		return 0, 0, false
	}
	gateway, err = PortFromMultiaddr(a.Gateway[0])
	if err != nil {
		return 0, 0, false
	}
	return api, gateway, true
}

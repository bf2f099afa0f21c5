package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/mochilink/mochi-sync/internal/domain"
)

// FileShim is a development implementation of Bridge backed by a JSON file.
// It stands in for a real server connection so the coordinator can be run
// end to end without any Minecraft servers attached.
type FileShim struct {
	filePath string
	mu       sync.Mutex
}

// Ensure FileShim implements Bridge.
var _ Bridge = (*FileShim)(nil)

// shimState is the on-disk document of the shim.
type shimState struct {
	Whitelist []RemotePlayer `json:"whitelist"`
	Bans      []RemoteBan    `json:"bans"`
}

// NewFileShim creates a file-backed bridge handle.
func NewFileShim(filePath string) *FileShim {
	return &FileShim{filePath: filePath}
}

// IsReachable always reports true; the file is always there.
func (f *FileShim) IsReachable() bool { return true }

// HasCapability reports true for both managed capabilities.
func (f *FileShim) HasCapability(name string) bool {
	return name == domain.CapabilityWhitelist || name == domain.CapabilityBan
}

// FetchWhitelist reads the whitelist from the file.
func (f *FileShim) FetchWhitelist(ctx context.Context) ([]RemotePlayer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return nil, err
	}
	return state.Whitelist, nil
}

// FetchBanList reads the ban list from the file.
func (f *FileShim) FetchBanList(ctx context.Context) ([]RemoteBan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return nil, err
	}
	return state.Bans, nil
}

// ApplyWhitelistOp applies an add or remove to the file.
func (f *FileShim) ApplyWhitelistOp(ctx context.Context, op domain.WhitelistOp) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return false, err
	}

	kept := state.Whitelist[:0]
	for _, p := range state.Whitelist {
		if p.ID != op.PlayerID {
			kept = append(kept, p)
		}
	}
	state.Whitelist = kept
	if op.Type == domain.WhitelistOpAdd {
		ts := op.Timestamp
		state.Whitelist = append(state.Whitelist, RemotePlayer{
			ID:      op.PlayerID,
			Name:    op.PlayerName,
			AddedBy: op.Executor,
			AddedAt: &ts,
			Reason:  op.Reason,
		})
	}

	if err := f.save(state); err != nil {
		return false, err
	}
	slog.Debug("file shim applied whitelist op", "type", op.Type, "player", op.PlayerID, "path", f.filePath)
	return true, nil
}

// ApplyBanOp applies a ban or unban to the file.
func (f *FileShim) ApplyBanOp(ctx context.Context, op domain.BanOp) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, err := f.load()
	if err != nil {
		return false, err
	}

	kept := state.Bans[:0]
	for _, b := range state.Bans {
		if b.Type != op.BanType || b.Target != op.Target {
			kept = append(kept, b)
		}
	}
	state.Bans = kept
	if op.Type == domain.BanOpBan {
		ts := op.Timestamp
		state.Bans = append(state.Bans, RemoteBan{
			Type:       op.BanType,
			Target:     op.Target,
			TargetName: op.TargetName,
			Reason:     op.Reason,
			BannedBy:   op.Executor,
			CreatedAt:  &ts,
			ExpiresAt:  op.ExpiresAt(),
			Active:     true,
		})
	}

	if err := f.save(state); err != nil {
		return false, err
	}
	slog.Debug("file shim applied ban op", "type", op.Type, "target", op.Target, "path", f.filePath)
	return true, nil
}

// load reads the state file, treating a missing file as empty state.
func (f *FileShim) load() (*shimState, error) {
	data, err := os.ReadFile(f.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &shimState{}, nil
		}
		return nil, fmt.Errorf("reading shim file: %w", err)
	}
	var state shimState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing shim file: %w", err)
	}
	return &state, nil
}

// save writes the state file with indentation for readability.
func (f *FileShim) save(state *shimState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling shim state: %w", err)
	}
	if err := os.WriteFile(f.filePath, data, 0644); err != nil {
		return fmt.Errorf("writing shim file: %w", err)
	}
	return nil
}

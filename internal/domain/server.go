package domain

import (
	"slices"
	"time"
)

// Capability names a remote feature a server's bridge connection advertises.
const (
	CapabilityWhitelist = "whitelist_management"
	CapabilityBan       = "ban_management"
)

// ListType discriminates the two access lists this coordinator manages.
// It keys pending-operation logs and snapshots in storage.
type ListType string

const (
	ListTypeWhitelist ListType = "whitelist"
	ListTypeBan       ListType = "ban"
)

// ListTypes returns all managed list types.
func ListTypes() []ListType {
	return []ListType{ListTypeWhitelist, ListTypeBan}
}

// Server is a registry entry for one managed Minecraft server.
type Server struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Address      string    `json:"address" db:"address"`
	Capabilities []string  `json:"capabilities" db:"-"` // stored as a JSON column
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// HasCapability reports whether the registry entry declares the capability.
// The live bridge connection has the final say; this is the configured view.
func (s *Server) HasCapability(name string) bool {
	return slices.Contains(s.Capabilities, name)
}

// CreateServerRequest is the request body for registering a server.
type CreateServerRequest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// UpdateServerRequest is the request body for updating a server registration.
type UpdateServerRequest struct {
	Name         *string  `json:"name,omitempty"`
	Address      *string  `json:"address,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
}

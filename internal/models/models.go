// Package models defines the data structures shared by the protocol client, schedulers and storage.
package models

import (
	"fmt"
	"time"
)

// Status is the decoded Status Response of a server (handshake phase A).
type Status struct {
	VersionName        string         `json:"version_name"`
	MOTD               string         `json:"motd"`
	Sample             []SamplePlayer `json:"sample,omitempty"`
	Protocol           int            `json:"protocol"`
	Online             int            `json:"online"`
	Max                int            `json:"max"`
	HasFavicon         bool           `json:"has_favicon"`
	EnforcesSecureChat bool           `json:"enforces_secure_chat"`
}

// SamplePlayer is one entry of the online players sample reported by a server.
type SamplePlayer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Access is the result of the login probe (handshake phase B).
type Access uint8

// Access classes. AccessUndetermined is the zero value.
const (
	AccessUndetermined Access = iota
	AccessLicensed
	AccessWhitelisted
	AccessOpen
)

// String returns the name stored in the database.
func (a Access) String() string {
	switch a {
	case AccessLicensed:
		return "licensed"
	case AccessWhitelisted:
		return "whitelisted"
	case AccessOpen:
		return "open"
	default:
		return "undetermined"
	}
}

// License reports whether the server requires centrally issued accounts.
func (a Access) License() bool { return a == AccessLicensed }

// Whitelist reports whether the server rejected the probe by its allow-list.
func (a Access) Whitelist() bool { return a == AccessWhitelisted }

// ParseAccess is the inverse of Access.String. Unknown names map to AccessUndetermined.
func ParseAccess(s string) Access {
	switch s {
	case "licensed":
		return AccessLicensed
	case "whitelisted":
		return AccessWhitelisted
	case "open":
		return AccessOpen
	default:
		return AccessUndetermined
	}
}

// ServerRecord is one sighting of a server. A new row is stored on every
// successful discovery; rows are not deduplicated by address.
type ServerRecord struct {
	DiscoveredAt time.Time `json:"discovered_at"`
	Address      string    `json:"address"`
	VersionName  string    `json:"version_name"`
	MOTD         string    `json:"motd"`
	CountryCode  string    `json:"country_code"`
	ID           int64     `json:"id"`
	Online       int       `json:"online"`
	Max          int       `json:"max"`
	Protocol     int       `json:"protocol"`
	Port         uint16    `json:"port"`
	Access       Access    `json:"access"`
	License      bool      `json:"license"`
	WhiteList    bool      `json:"white_list"`
}

// Endpoint returns the host:port the record was observed on.
func (s ServerRecord) Endpoint() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// PlayerRecord is a player seen on a specific ServerRecord.
// (Name, ServerID) is unique.
type PlayerRecord struct {
	LastSeen time.Time `json:"last_seen"`
	UUID     string    `json:"uuid"`
	Name     string    `json:"name"`
	ServerID int64     `json:"server_id"`
}

// NewServerRecord builds the sighting row for a status reply and access class.
func NewServerRecord(address string, port uint16, st *Status, access Access, seen time.Time) ServerRecord {
	return ServerRecord{
		Address:      address,
		Port:         port,
		Online:       st.Online,
		Max:          st.Max,
		VersionName:  st.VersionName,
		Protocol:     st.Protocol,
		MOTD:         st.MOTD,
		Access:       access,
		License:      access.License(),
		WhiteList:    access.Whitelist(),
		DiscoveredAt: seen,
	}
}

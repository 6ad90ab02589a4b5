package protocol

import (
	"crypto/md5"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/woozymasta/mclookup/internal/models"
)

// Handshake next states.
const (
	StateStatus int32 = 1
	StateLogin  int32 = 2
)

// Serverbound packet ids.
const (
	idHandshake     int32 = 0x00
	idStatusRequest int32 = 0x00
	idLoginStart    int32 = 0x00
)

// Clientbound packet ids.
const (
	idStatusResponse    int32 = 0x00
	idLoginDisconnect   int32 = 0x00
	idEncryptionRequest int32 = 0x01
	idLoginSuccess      int32 = 0x02
	idSetCompression    int32 = 0x03
)

// Protocol numbers where the Login Start layout changed.
const (
	proto1_19   = 759
	proto1_19_1 = 760
	proto1_20_2 = 764
)

// AppendHandshake appends a Handshake frame.
func AppendHandshake(dst []byte, protocol int32, host string, port uint16, next int32) []byte {
	payload := AppendVarInt(nil, protocol)
	payload = appendString(payload, host)
	payload = appendUint16(payload, port)
	payload = AppendVarInt(payload, next)

	return appendPacket(dst, idHandshake, payload)
}

// AppendStatusRequest appends the empty Status Request frame.
func AppendStatusRequest(dst []byte) []byte {
	return appendPacket(dst, idStatusRequest, nil)
}

// AppendLoginStart appends a Login Start frame laid out for the given protocol number.
func AppendLoginStart(dst []byte, protocol int32, name string) []byte {
	id := OfflineUUID(name)
	payload := appendString(nil, name)

	switch {
	case protocol < proto1_19:
	case protocol == proto1_19:
		payload = append(payload, 0) // no signature data
	case protocol == proto1_19_1:
		payload = append(payload, 0, 1)
		payload = append(payload, id[:]...)
	case protocol < proto1_20_2:
		payload = append(payload, 1)
		payload = append(payload, id[:]...)
	default:
		payload = append(payload, id[:]...)
	}

	return appendPacket(dst, idLoginStart, payload)
}

// OfflineUUID returns the identity an offline-mode server assigns to name.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80

	return uuid.UUID(sum)
}

type statusJSON struct {
	Version struct {
		Name     string `json:"name"`
		Protocol int    `json:"protocol"`
	} `json:"version"`
	Players *struct {
		Sample []models.SamplePlayer `json:"sample"`
		Max    int                   `json:"max"`
		Online int                   `json:"online"`
	} `json:"players"`
	Description        json.RawMessage `json:"description"`
	Favicon            string          `json:"favicon"`
	EnforcesSecureChat bool            `json:"enforcesSecureChat"`
}

// DecodeStatus parses the JSON text carried by a Status Response.
func DecodeStatus(text string) (*models.Status, error) {
	var raw statusJSON
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, protocolErrorf("status json: %v", err)
	}
	if raw.Version.Name == "" && raw.Players == nil {
		return nil, protocolErrorf("status json has neither version nor players")
	}

	st := &models.Status{
		VersionName:        raw.Version.Name,
		Protocol:           raw.Version.Protocol,
		MOTD:               FlattenChat(raw.Description),
		HasFavicon:         raw.Favicon != "",
		EnforcesSecureChat: raw.EnforcesSecureChat,
	}
	if raw.Players != nil {
		st.Online = raw.Players.Online
		st.Max = raw.Players.Max
		st.Sample = raw.Players.Sample
	}

	return st, nil
}

// ValidSample returns the sample entries that describe real players.
// Servers often abuse the sample for decorative lines with a nil or invalid id.
func ValidSample(st *models.Status) []models.SamplePlayer {
	if st == nil {
		return nil
	}

	out := make([]models.SamplePlayer, 0, len(st.Sample))
	for _, p := range st.Sample {
		id, err := uuid.Parse(p.ID)
		if err != nil || id == uuid.Nil || p.Name == "" {
			continue
		}
		out = append(out, models.SamplePlayer{ID: id.String(), Name: p.Name})
	}

	return out
}

var whitelistMarkers = []string{"whitelist", "white-list", "white list"}

// IsWhitelistReason reports whether a disconnect reason points at an allow-list.
func IsWhitelistReason(reason string) bool {
	reason = strings.ToLower(reason)
	for _, m := range whitelistMarkers {
		if strings.Contains(reason, m) {
			return true
		}
	}

	return false
}

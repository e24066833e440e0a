package auth

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lablane/procure/internal/principal"
	"github.com/lablane/procure/pkg/errorbank"
)

// Identity headers set by the authenticating gateway in front of this
// service. Authentication itself happens upstream; the core only reads the
// resolved identity.
const (
	HeaderUserID         = "X-User-ID"
	HeaderOrganizationID = "X-Org-ID"
	HeaderRole           = "X-User-Role"
)

// Resolve extracts the caller principal from gateway identity headers.
func Resolve(c echo.Context) (principal.Principal, error) {
	raw := c.Request().Header.Get(HeaderUserID)
	if raw == "" {
		return principal.Principal{}, errorbank.Unauthorized("missing identity")
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return principal.Principal{}, errorbank.Unauthorized("invalid identity")
	}

	p := principal.Principal{
		UserID: userID,
		Role:   c.Request().Header.Get(HeaderRole),
	}
	if rawOrg := c.Request().Header.Get(HeaderOrganizationID); rawOrg != "" {
		orgID, err := strconv.ParseInt(rawOrg, 10, 64)
		if err != nil || orgID <= 0 {
			return principal.Principal{}, errorbank.Unauthorized("invalid organization")
		}
		p.OrganizationID = &orgID
	}
	return p, nil
}

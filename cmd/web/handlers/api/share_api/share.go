// package share_api creates and resolves short links to stored artifacts.
package share_api

import (
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/relay/cmd/web/handlers/common"
	"thirdcoast.systems/relay/internal/store"
)

const (
	codeLength   = 8
	codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	codeAttempts = 5
)

// newCode returns a random base62 code. Bytes at or above 248 are redrawn so
// every symbol is equally likely.
func newCode() (string, error) {
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 248 {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out), nil
}

type shareResponse struct {
	Code       string `json:"code"`
	ArtifactID string `json:"artifact_id"`
	URL        string `json:"url"`
}

// HandleCreate issues a share code for an artifact.
func HandleCreate(st store.Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, err := common.RequireUUIDParam(c, "id")
		if err != nil {
			return err
		}
		ctx := c.Request().Context()
		if _, err := st.GetArtifact(ctx, id); err != nil {
			return common.FromError(err)
		}

		for range codeAttempts {
			code, err := newCode()
			if err != nil {
				return common.FromError(err)
			}
			link, err := st.CreateShareLink(ctx, code, id)
			if errors.Is(err, store.ErrConflict) {
				continue
			}
			if err != nil {
				return common.FromError(err)
			}
			slog.Info("Share link created", "code", link.Code, "artifact_id", id)
			return c.JSON(http.StatusCreated, shareResponse{
				Code:       link.Code,
				ArtifactID: link.ArtifactID.String(),
				URL:        "/s/" + link.Code,
			})
		}
		return common.ErrInternal("could not allocate a share code")
	}
}

// HandleRedirect sends a share code to the artifact's stream, keeping the
// query string so ?profile= and ?part= pass through.
func HandleRedirect(st store.ShareStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		link, err := st.GetShareLink(c.Request().Context(), c.Param("code"))
		if err != nil {
			return common.FromError(err)
		}
		target := url.URL{Path: "/stream/" + link.ArtifactID.String(), RawQuery: c.QueryString()}
		return c.Redirect(http.StatusFound, target.String())
	}
}
